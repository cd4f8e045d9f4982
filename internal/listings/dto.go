package listings

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/carbridge-backend/pkg/db/models"
	"github.com/angelmondragon/carbridge-backend/pkg/enums"
	"github.com/angelmondragon/carbridge-backend/pkg/pagination"
	"github.com/angelmondragon/carbridge-backend/pkg/types"
)

// MinRejectionReasonLength is the shortest accepted rejection reason after trimming.
const MinRejectionReasonLength = 10

// ListingDTO is the API shape of a listing.
type ListingDTO struct {
	ID             uuid.UUID                   `json:"id"`
	DealerID       uuid.UUID                   `json:"dealer_id"`
	Title          string                      `json:"title"`
	Make           string                      `json:"make"`
	Model          string                      `json:"model"`
	Year           int                         `json:"year"`
	Price          float64                     `json:"price"`
	Currency       enums.Currency              `json:"currency"`
	Status         enums.ListingStatus         `json:"status"`
	Specifications types.ListingSpecifications `json:"specifications"`
	ApprovedAt     *time.Time                  `json:"approved_at,omitempty"`
	ApprovedBy     *uuid.UUID                  `json:"approved_by,omitempty"`
	CreatedAt      time.Time                   `json:"created_at"`
	UpdatedAt      time.Time                   `json:"updated_at"`
}

// FromModel maps a listing row to its API shape.
func FromModel(l *models.Listing) *ListingDTO {
	if l == nil {
		return nil
	}
	return &ListingDTO{
		ID:             l.ID,
		DealerID:       l.DealerID,
		Title:          l.Title,
		Make:           l.Make,
		Model:          l.Model,
		Year:           l.Year,
		Price:          l.Price.InexactFloat64(),
		Currency:       l.Currency,
		Status:         l.Status,
		Specifications: l.Specifications,
		ApprovedAt:     l.ApprovedAt,
		ApprovedBy:     l.ApprovedBy,
		CreatedAt:      l.CreatedAt,
		UpdatedAt:      l.UpdatedAt,
	}
}

// CreateInput is a dealer submission.
type CreateInput struct {
	Title          string
	Make           string
	Model          string
	Year           int
	Price          string
	Currency       string
	Specifications types.VehicleSpecs
}

// RejectInput carries the moderator's reason.
type RejectInput struct {
	ListingID uuid.UUID
	Reason    string
}

// ListQuery filters the moderation queue.
type ListQuery struct {
	Status *enums.ListingStatus
	Page   int
	Limit  int
}

// ListPage is one page of the moderation queue.
type ListPage struct {
	Listings   []ListingDTO    `json:"listings"`
	Pagination pagination.Page `json:"pagination"`
}
