package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Primary keys are assigned client side so inserts behave the same on
// Postgres and sqlite; migrations still declare gen_random_uuid() defaults.

func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (m *User) BeforeCreate(*gorm.DB) error                 { assignID(&m.ID); return nil }
func (m *Dealer) BeforeCreate(*gorm.DB) error               { assignID(&m.ID); return nil }
func (m *Listing) BeforeCreate(*gorm.DB) error              { assignID(&m.ID); return nil }
func (m *Transaction) BeforeCreate(*gorm.DB) error          { assignID(&m.ID); return nil }
func (m *Escrow) BeforeCreate(*gorm.DB) error               { assignID(&m.ID); return nil }
func (m *OrderTrackingStage) BeforeCreate(*gorm.DB) error   { assignID(&m.ID); return nil }
func (m *DealJourneyState) BeforeCreate(*gorm.DB) error     { assignID(&m.ID); return nil }
func (m *DealJourneyEvent) BeforeCreate(*gorm.DB) error     { assignID(&m.ID); return nil }
func (m *WorkflowTask) BeforeCreate(*gorm.DB) error         { assignID(&m.ID); return nil }
func (m *AuditLogEntry) BeforeCreate(*gorm.DB) error        { assignID(&m.ID); return nil }
func (m *NotificationDelivery) BeforeCreate(*gorm.DB) error { assignID(&m.ID); return nil }
func (m *OutboxEvent) BeforeCreate(*gorm.DB) error          { assignID(&m.ID); return nil }
func (m *OutboxDLQ) BeforeCreate(*gorm.DB) error            { assignID(&m.ID); return nil }
