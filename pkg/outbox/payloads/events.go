package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/carbridge-backend/pkg/enums"
)

// ListingDecisionEvent is emitted when an admin approves or rejects a listing.
type ListingDecisionEvent struct {
	ListingID uuid.UUID           `json:"listing_id"`
	DealerID  uuid.UUID           `json:"dealer_id"`
	Title     string              `json:"title"`
	Status    enums.ListingStatus `json:"status"`
	Reason    string              `json:"reason,omitempty"`
}

// TransactionEvent covers creation and payment outcomes of a transaction.
type TransactionEvent struct {
	TransactionID uuid.UUID               `json:"transaction_id"`
	ListingID     uuid.UUID               `json:"listing_id"`
	DealerID      uuid.UUID               `json:"dealer_id"`
	BuyerID       uuid.UUID               `json:"buyer_id"`
	BuyerEmail    string                  `json:"buyer_email"`
	Amount        float64                 `json:"amount"`
	Currency      enums.Currency          `json:"currency"`
	Status        enums.TransactionStatus `json:"status"`
	FailureReason string                  `json:"failure_reason,omitempty"`
}

// TransactionRefundedEvent carries what both parties need in the refund email.
type TransactionRefundedEvent struct {
	TransactionID uuid.UUID      `json:"transaction_id"`
	ListingID     uuid.UUID      `json:"listing_id"`
	DealerID      uuid.UUID      `json:"dealer_id"`
	BuyerID       uuid.UUID      `json:"buyer_id"`
	BuyerEmail    string         `json:"buyer_email"`
	RefundID      string         `json:"refund_id"`
	RefundAmount  float64        `json:"refund_amount"`
	Currency      enums.Currency `json:"currency"`
	Reason        string         `json:"reason"`
	RefundedAt    time.Time      `json:"refunded_at"`
}

// EscrowEvent covers escrow creation, release and cancellation.
type EscrowEvent struct {
	EscrowID  uuid.UUID          `json:"escrow_id"`
	ListingID uuid.UUID          `json:"listing_id"`
	DealerID  uuid.UUID          `json:"dealer_id"`
	BuyerID   uuid.UUID          `json:"buyer_id"`
	Amount    float64            `json:"amount"`
	Currency  enums.Currency     `json:"currency"`
	Status    enums.EscrowStatus `json:"status"`
}

// TrackingStageUpdatedEvent is emitted for each admin stage update.
type TrackingStageUpdatedEvent struct {
	EscrowID  uuid.UUID                 `json:"escrow_id"`
	StageID   uuid.UUID                 `json:"stage_id"`
	StageType enums.TrackingStageType   `json:"stage_type"`
	Status    enums.TrackingStageStatus `json:"status"`
	Location  *string                   `json:"location,omitempty"`
	ETA       *time.Time                `json:"eta,omitempty"`
	BuyerID   uuid.UUID                 `json:"buyer_id"`
	DealerID  uuid.UUID                 `json:"dealer_id"`
}

// JourneyTransitionedEvent mirrors one deal_journey_events row for the warehouse.
type JourneyTransitionedEvent struct {
	JourneyEventID uuid.UUID               `json:"journey_event_id"`
	JourneyID      uuid.UUID               `json:"journey_id"`
	EventType      enums.JourneyEventType  `json:"event_type"`
	FromState      *enums.DealJourneyState `json:"from_state,omitempty"`
	ToState        enums.DealJourneyState  `json:"to_state"`
	ListingID      uuid.UUID               `json:"listing_id"`
	BuyerID        uuid.UUID               `json:"buyer_id"`
	DealerID       uuid.UUID               `json:"dealer_id"`
	ActorID        *uuid.UUID              `json:"actor_id,omitempty"`
	TransactionID  *uuid.UUID              `json:"transaction_id,omitempty"`
	EscrowID       *uuid.UUID              `json:"escrow_id,omitempty"`
	Note           string                  `json:"note,omitempty"`
	OccurredAt     time.Time               `json:"occurred_at"`
}
