package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/carbridge-backend/pkg/enums"
	"github.com/angelmondragon/carbridge-backend/pkg/types"
)

// DealJourneyState is the projection of the latest pipeline state per deal.
type DealJourneyState struct {
	ID             uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	ListingID      uuid.UUID              `gorm:"column:listing_id;type:uuid;not null;uniqueIndex:ux_journey_listing_buyer"`
	BuyerID        uuid.UUID              `gorm:"column:buyer_id;type:uuid;not null;uniqueIndex:ux_journey_listing_buyer"`
	DealerID       uuid.UUID              `gorm:"column:dealer_id;type:uuid;not null"`
	TransactionID  *uuid.UUID             `gorm:"column:transaction_id;type:uuid"`
	EscrowID       *uuid.UUID             `gorm:"column:escrow_id;type:uuid"`
	AgentID        *uuid.UUID             `gorm:"column:agent_id;type:uuid"`
	State          enums.DealJourneyState `gorm:"column:state;type:deal_journey_state;not null;index"`
	StateEnteredAt time.Time              `gorm:"column:state_entered_at;not null"`
	CreatedAt      time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the singular table name used by migrations.
func (DealJourneyState) TableName() string {
	return "deal_journey_state"
}

// DealJourneyEvent is an append-only journey log entry.
type DealJourneyEvent struct {
	ID         uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	JourneyID  uuid.UUID                 `gorm:"column:journey_id;type:uuid;not null;index"`
	EventType  enums.JourneyEventType    `gorm:"column:event_type;type:text;not null"`
	FromState  *enums.DealJourneyState   `gorm:"column:from_state;type:deal_journey_state"`
	ToState    enums.DealJourneyState    `gorm:"column:to_state;type:deal_journey_state;not null"`
	Payload    types.JourneyEventPayload `gorm:"column:payload;type:jsonb;not null"`
	ActorID    *uuid.UUID                `gorm:"column:actor_id;type:uuid"`
	OccurredAt time.Time                 `gorm:"column:occurred_at;not null;index"`
}

// WorkflowTask is an agent task attached to a deal journey.
type WorkflowTask struct {
	ID          uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	JourneyID   uuid.UUID                `gorm:"column:journey_id;type:uuid;not null;index"`
	AgentID     uuid.UUID                `gorm:"column:agent_id;type:uuid;not null;index"`
	Title       string                   `gorm:"column:title;not null"`
	Status      enums.WorkflowTaskStatus `gorm:"column:status;type:workflow_task_status;not null"`
	DueAt       *time.Time               `gorm:"column:due_at"`
	CompletedAt *time.Time               `gorm:"column:completed_at"`
	CreatedAt   time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
