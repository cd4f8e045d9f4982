package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/carbridge-backend/pkg/enums"
	"github.com/angelmondragon/carbridge-backend/pkg/types"
)

// Transaction records a buyer payment for a listing and its refund state.
type Transaction struct {
	ID              uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	ListingID       uuid.UUID                 `gorm:"column:listing_id;type:uuid;not null;index"`
	DealerID        uuid.UUID                 `gorm:"column:dealer_id;type:uuid;not null;index"`
	BuyerID         uuid.UUID                 `gorm:"column:buyer_id;type:uuid;not null;index"`
	EscrowID        *uuid.UUID                `gorm:"column:escrow_id;type:uuid"`
	Amount          decimal.Decimal           `gorm:"column:amount;type:numeric(14,3);not null"`
	Currency        enums.Currency            `gorm:"column:currency;type:text;not null"`
	Status          enums.TransactionStatus   `gorm:"column:status;type:transaction_status;not null;index"`
	PaymentIntentID *string                   `gorm:"column:payment_intent_id;index"`
	BuyerEmail      string                    `gorm:"column:buyer_email;not null"`
	BuyerName       string                    `gorm:"column:buyer_name;not null"`
	BuyerPhone      *string                   `gorm:"column:buyer_phone"`
	BuyerCountry    *string                   `gorm:"column:buyer_country"`
	ShippingAddress *string                   `gorm:"column:shipping_address"`
	Metadata        types.TransactionMetadata `gorm:"column:metadata;type:jsonb;not null"`
	CreatedAt       time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}
