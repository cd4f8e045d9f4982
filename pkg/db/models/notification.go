package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/carbridge-backend/pkg/enums"
)

// NotificationDelivery records the outcome of one best-effort notification send.
type NotificationDelivery struct {
	ID                uuid.UUID                        `gorm:"column:id;type:uuid;primaryKey"`
	EventID           uuid.UUID                        `gorm:"column:event_id;type:uuid;not null;index"`
	Channel           enums.NotificationChannel        `gorm:"column:channel;type:text;not null"`
	Recipient         string                           `gorm:"column:recipient;not null"`
	Template          string                           `gorm:"column:template;not null"`
	Status            enums.NotificationDeliveryStatus `gorm:"column:status;type:text;not null"`
	ProviderMessageID *string                          `gorm:"column:provider_message_id"`
	Error             *string                          `gorm:"column:error"`
	CreatedAt         time.Time                        `gorm:"column:created_at;autoCreateTime"`
}
