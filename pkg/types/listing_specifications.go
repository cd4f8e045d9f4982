package types

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
)

// VehicleSpecs holds the dealer supplied attributes of a listed vehicle.
type VehicleSpecs struct {
	MileageKM    *int              `json:"mileage_km,omitempty"`
	Transmission string            `json:"transmission,omitempty"`
	FuelType     string            `json:"fuel_type,omitempty"`
	BodyType     string            `json:"body_type,omitempty"`
	Color        string            `json:"color,omitempty"`
	VIN          string            `json:"vin,omitempty"`
	Location     string            `json:"location,omitempty"`
	Extras       map[string]string `json:"extras,omitempty"`
}

// ListingApproval is present once a moderator approved the listing.
type ListingApproval struct {
	ApprovedBy uuid.UUID `json:"approved_by"`
	ApprovedAt time.Time `json:"approved_at"`
}

// ListingRejection is present once a moderator rejected the listing.
type ListingRejection struct {
	RejectionReason string    `json:"rejection_reason"`
	RejectedBy      uuid.UUID `json:"rejected_by"`
	RejectedAt      time.Time `json:"rejected_at"`
}

// ListingSpecifications is the listings.specifications JSONB column. The
// moderation shapes flatten into the same object as the vehicle attributes,
// so a rejected listing reads specifications.rejection_reason directly.
type ListingSpecifications struct {
	VehicleSpecs
	*ListingApproval
	*ListingRejection
}

// WithRejection returns a copy carrying r while keeping every other field.
func (s ListingSpecifications) WithRejection(r ListingRejection) ListingSpecifications {
	s.ListingRejection = &r
	return s
}

// WithApproval returns a copy carrying a while keeping every other field.
func (s ListingSpecifications) WithApproval(a ListingApproval) ListingSpecifications {
	s.ListingApproval = &a
	return s
}

// Value marshals the specifications for the driver.
func (s ListingSpecifications) Value() (driver.Value, error) {
	return marshalJSONB(s)
}

// Scan decodes the JSONB column.
func (s *ListingSpecifications) Scan(value interface{}) error {
	var decoded ListingSpecifications
	if err := scanJSONB(value, &decoded, "listing specifications"); err != nil {
		return err
	}
	*s = decoded
	return nil
}
