package transactions

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/carbridge-backend/pkg/db/models"
	"github.com/angelmondragon/carbridge-backend/pkg/enums"
	"github.com/angelmondragon/carbridge-backend/pkg/pagination"
	"github.com/angelmondragon/carbridge-backend/pkg/types"
)

// Sortable columns for ListTransactions.
var sortColumns = map[string]struct{}{
	"created_at": {},
	"updated_at": {},
	"amount":     {},
	"status":     {},
}

const defaultSort = "created_at"

// TransactionDTO is the API shape of a transaction.
type TransactionDTO struct {
	ID              uuid.UUID                 `json:"id"`
	ListingID       uuid.UUID                 `json:"listing_id"`
	DealerID        uuid.UUID                 `json:"dealer_id"`
	BuyerID         uuid.UUID                 `json:"buyer_id"`
	EscrowID        *uuid.UUID                `json:"escrow_id,omitempty"`
	Amount          float64                   `json:"amount"`
	Currency        enums.Currency            `json:"currency"`
	Status          enums.TransactionStatus   `json:"status"`
	PaymentIntentID *string                   `json:"payment_intent_id,omitempty"`
	BuyerEmail      string                    `json:"buyer_email"`
	BuyerName       string                    `json:"buyer_name"`
	BuyerPhone      *string                   `json:"buyer_phone,omitempty"`
	BuyerCountry    *string                   `json:"buyer_country,omitempty"`
	ShippingAddress *string                   `json:"shipping_address,omitempty"`
	Metadata        types.TransactionMetadata `json:"metadata"`
	CreatedAt       time.Time                 `json:"created_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}

// FromModel maps a transaction row to its API shape.
func FromModel(t *models.Transaction) *TransactionDTO {
	if t == nil {
		return nil
	}
	return &TransactionDTO{
		ID:              t.ID,
		ListingID:       t.ListingID,
		DealerID:        t.DealerID,
		BuyerID:         t.BuyerID,
		EscrowID:        t.EscrowID,
		Amount:          t.Amount.InexactFloat64(),
		Currency:        t.Currency,
		Status:          t.Status,
		PaymentIntentID: t.PaymentIntentID,
		BuyerEmail:      t.BuyerEmail,
		BuyerName:       t.BuyerName,
		BuyerPhone:      t.BuyerPhone,
		BuyerCountry:    t.BuyerCountry,
		ShippingAddress: t.ShippingAddress,
		Metadata:        t.Metadata,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

// CreateInput is a buyer checkout.
type CreateInput struct {
	ListingID       uuid.UUID
	Amount          string
	Currency        string
	BuyerEmail      string
	BuyerName       string
	BuyerPhone      *string
	BuyerCountry    *string
	ShippingAddress *string
	Source          string
}

// ListQuery holds the raw filters of ListTransactions.
type ListQuery struct {
	Status string
	Page   int
	Limit  int
	Sort   string
	Order  string
}

// ListResult is one scoped page of transactions.
type ListResult struct {
	Transactions []TransactionDTO `json:"transactions"`
	Pagination   pagination.Page  `json:"pagination"`
	Role         enums.Role       `json:"role"`
}

// RefundInput is an admin refund request. A nil Amount refunds in full.
type RefundInput struct {
	TransactionID uuid.UUID
	Reason        string
	Amount        *decimal.Decimal
}

// RefundSummary describes the processor refund.
type RefundSummary struct {
	ID       string         `json:"id"`
	Amount   float64        `json:"amount"`
	Currency enums.Currency `json:"currency"`
	Status   string         `json:"status"`
	Reason   string         `json:"reason"`
}

// RefundedTransaction is the slim transaction view returned after a refund.
type RefundedTransaction struct {
	ID        uuid.UUID               `json:"id"`
	Status    enums.TransactionStatus `json:"status"`
	ListingID uuid.UUID               `json:"listing_id"`
}

// RefundResult is the refund response body.
type RefundResult struct {
	Success     bool                `json:"success"`
	Refund      RefundSummary       `json:"refund"`
	Transaction RefundedTransaction `json:"transaction"`
}

// PaymentOutcome is a processor payment intent result.
type PaymentOutcome struct {
	PaymentIntentID string
	ChargeID        string
	FailureCode     string
	FailureMessage  string
	OccurredAt      time.Time
}

// RefundOutcome is a refund observed at the processor.
type RefundOutcome struct {
	PaymentIntentID string
	RefundID        string
	AmountMinor     int64
	Reason          string
	Status          string
}
