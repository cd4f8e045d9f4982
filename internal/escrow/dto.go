package escrow

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/carbridge-backend/pkg/db/models"
	"github.com/angelmondragon/carbridge-backend/pkg/enums"
)

// CreateInput is the buyer's checkout request.
type CreateInput struct {
	ListingID uuid.UUID
	DealerID  uuid.UUID
	Amount    string
	Currency  string
}

// CreateResult carries what the client needs to confirm payment.
type CreateResult struct {
	ClientSecret string    `json:"clientSecret"`
	EscrowID     uuid.UUID `json:"escrowId"`
}

// EscrowDTO is the API shape of an escrow.
type EscrowDTO struct {
	ID              uuid.UUID          `json:"id"`
	ListingID       uuid.UUID          `json:"listing_id"`
	DealerID        uuid.UUID          `json:"dealer_id"`
	BuyerID         uuid.UUID          `json:"buyer_id"`
	Amount          float64            `json:"amount"`
	Currency        enums.Currency     `json:"currency"`
	Status          enums.EscrowStatus `json:"status"`
	PaymentIntentID string             `json:"payment_intent_id"`
	FundedAt        *time.Time         `json:"funded_at,omitempty"`
	ReleasedAt      *time.Time         `json:"released_at,omitempty"`
	CanceledAt      *time.Time         `json:"canceled_at,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// FromModel maps an escrow row to its API shape.
func FromModel(e *models.Escrow) *EscrowDTO {
	if e == nil {
		return nil
	}
	return &EscrowDTO{
		ID:              e.ID,
		ListingID:       e.ListingID,
		DealerID:        e.DealerID,
		BuyerID:         e.BuyerID,
		Amount:          e.Amount.InexactFloat64(),
		Currency:        e.Currency,
		Status:          e.Status,
		PaymentIntentID: e.PaymentIntentID,
		FundedAt:        e.FundedAt,
		ReleasedAt:      e.ReleasedAt,
		CanceledAt:      e.CanceledAt,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
}

// CanView reports whether the buyer, the owning dealer or an admin is asking.
func CanView(e *models.Escrow, userID uuid.UUID, role enums.Role, dealerID *uuid.UUID) bool {
	switch role {
	case enums.RoleAdmin:
		return true
	case enums.RoleBuyer:
		return e.BuyerID == userID
	case enums.RoleDealer:
		return dealerID != nil && *dealerID == e.DealerID
	}
	return false
}
