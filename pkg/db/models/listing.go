package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/carbridge-backend/pkg/enums"
	"github.com/angelmondragon/carbridge-backend/pkg/types"
)

// Listing is a vehicle offered by a dealer.
type Listing struct {
	ID             uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	DealerID       uuid.UUID                   `gorm:"column:dealer_id;type:uuid;not null;index"`
	Title          string                      `gorm:"column:title;not null"`
	Make           string                      `gorm:"column:make;not null"`
	Model          string                      `gorm:"column:model;not null"`
	Year           int                         `gorm:"column:year;not null"`
	Price          decimal.Decimal             `gorm:"column:price;type:numeric(14,3);not null"`
	Currency       enums.Currency              `gorm:"column:currency;type:text;not null"`
	Status         enums.ListingStatus         `gorm:"column:status;type:listing_status;not null;index"`
	Specifications types.ListingSpecifications `gorm:"column:specifications;type:jsonb;not null"`
	ApprovedAt     *time.Time                  `gorm:"column:approved_at"`
	ApprovedBy     *uuid.UUID                  `gorm:"column:approved_by;type:uuid"`
	CreatedAt      time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}
