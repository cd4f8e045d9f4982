package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/carbridge-backend/pkg/enums"
)

// Escrow holds buyer funds against a processor payment intent until release.
type Escrow struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	ListingID       uuid.UUID          `gorm:"column:listing_id;type:uuid;not null;index"`
	DealerID        uuid.UUID          `gorm:"column:dealer_id;type:uuid;not null"`
	BuyerID         uuid.UUID          `gorm:"column:buyer_id;type:uuid;not null"`
	Amount          decimal.Decimal    `gorm:"column:amount;type:numeric(14,3);not null"`
	Currency        enums.Currency     `gorm:"column:currency;type:text;not null"`
	Status          enums.EscrowStatus `gorm:"column:status;type:escrow_status;not null;index"`
	PaymentIntentID string             `gorm:"column:payment_intent_id;not null;uniqueIndex"`
	FundedAt        *time.Time         `gorm:"column:funded_at"`
	ReleasedAt      *time.Time         `gorm:"column:released_at"`
	CanceledAt      *time.Time         `gorm:"column:canceled_at"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderTrackingStage is one shipment milestone of an escrow.
type OrderTrackingStage struct {
	ID          uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	EscrowID    uuid.UUID                 `gorm:"column:escrow_id;type:uuid;not null;uniqueIndex:ux_tracking_escrow_stage"`
	StageType   enums.TrackingStageType   `gorm:"column:stage_type;type:tracking_stage_type;not null;uniqueIndex:ux_tracking_escrow_stage"`
	Status      enums.TrackingStageStatus `gorm:"column:status;type:tracking_stage_status;not null"`
	Location    *string                   `gorm:"column:location"`
	ETA         *time.Time                `gorm:"column:eta"`
	Notes       *string                   `gorm:"column:notes"`
	StartedAt   *time.Time                `gorm:"column:started_at"`
	CompletedAt *time.Time                `gorm:"column:completed_at"`
	UpdatedBy   *uuid.UUID                `gorm:"column:updated_by;type:uuid"`
	CreatedAt   time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}
