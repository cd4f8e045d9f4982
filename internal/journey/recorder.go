package journey

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/carbridge-backend/pkg/db"
	"github.com/angelmondragon/carbridge-backend/pkg/db/models"
	"github.com/angelmondragon/carbridge-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/carbridge-backend/pkg/errors"
	"github.com/angelmondragon/carbridge-backend/pkg/outbox"
	"github.com/angelmondragon/carbridge-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/carbridge-backend/pkg/types"
)

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type transitionObserver interface {
	ObserveTransition(entity, from, to string)
}

// Key identifies the deal between one buyer and one listing.
type Key struct {
	ListingID uuid.UUID
	BuyerID   uuid.UUID
	DealerID  uuid.UUID
}

// Step describes one journey event and the state it leads to.
type Step struct {
	To            enums.DealJourneyState
	EventType     enums.JourneyEventType
	ActorID       *uuid.UUID
	TransactionID *uuid.UUID
	EscrowID      *uuid.UUID
	Payload       types.JourneyEventPayload
}

// Recorder writes journey transitions on the caller's transaction. Every
// applied transition appends exactly one event and queues it for the warehouse.
type Recorder struct {
	repo    Repository
	outbox  outboxPublisher
	metrics transitionObserver
	now     func() time.Time
}

// NewRecorder builds a recorder. metrics may be nil.
func NewRecorder(repo Repository, outbox outboxPublisher, metrics transitionObserver) (*Recorder, error) {
	if repo == nil {
		return nil, fmt.Errorf("journey repository required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if metrics == nil {
		metrics = nopObserver{}
	}
	return &Recorder{
		repo:    repo,
		outbox:  outbox,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Ensure returns the journey for key, opening it at LEAD when none exists.
func (r *Recorder) Ensure(ctx context.Context, tx *gorm.DB, key Key, actorID *uuid.UUID) (*models.DealJourneyState, error) {
	repo := r.repo.WithTx(tx)
	journey, err := repo.FindByListingBuyer(ctx, key.ListingID, key.BuyerID)
	if err == nil {
		return journey, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := r.now()
	journey = &models.DealJourneyState{
		ListingID:      key.ListingID,
		BuyerID:        key.BuyerID,
		DealerID:       key.DealerID,
		State:          enums.JourneyStateLead,
		StateEnteredAt: now,
	}
	if err := repo.Create(ctx, journey); err != nil {
		if dbpkg.IsUniqueViolation(err, "ux_journey_listing_buyer") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "deal journey already opened for this buyer")
		}
		return nil, err
	}
	if _, err := r.appendEvent(ctx, tx, journey, nil, Step{
		To:        enums.JourneyStateLead,
		EventType: enums.JourneyEventCreated,
		ActorID:   actorID,
	}, now); err != nil {
		return nil, err
	}
	return journey, nil
}

// Transition applies step to journey through the state guard. A disallowed
// transition, or one that lost a race, is a state conflict.
func (r *Recorder) Transition(ctx context.Context, tx *gorm.DB, journey *models.DealJourneyState, step Step) (*models.DealJourneyEvent, error) {
	if journey == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "journey not found")
	}
	if !step.To.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid journey state")
	}
	if !journey.State.CanTransitionTo(step.To) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("journey cannot move from %s to %s", journey.State, step.To)).
			WithDetails(map[string]any{"from": journey.State, "to": step.To})
	}

	now := r.now()
	from := journey.State
	rows, err := r.repo.WithTx(tx).UpdateState(ctx, journey.ID, from, step.To, now, Links{
		TransactionID: step.TransactionID,
		EscrowID:      step.EscrowID,
	})
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "journey already transitioned")
	}

	journey.State = step.To
	journey.StateEnteredAt = now
	if step.TransactionID != nil {
		journey.TransactionID = step.TransactionID
	}
	if step.EscrowID != nil {
		journey.EscrowID = step.EscrowID
	}
	r.metrics.ObserveTransition("deal_journey", string(from), string(step.To))
	return r.appendEvent(ctx, tx, journey, &from, step, now)
}

// Advance opens the journey for key when needed and applies step when the
// guard allows it. A step the journey has already passed is a no-op, which
// keeps replayed system events idempotent.
func (r *Recorder) Advance(ctx context.Context, tx *gorm.DB, key Key, step Step) (*models.DealJourneyState, error) {
	journey, err := r.Ensure(ctx, tx, key, step.ActorID)
	if err != nil {
		return nil, err
	}
	if !journey.State.CanTransitionTo(step.To) {
		return journey, nil
	}
	if _, err := r.Transition(ctx, tx, journey, step); err != nil {
		return nil, err
	}
	return journey, nil
}

// Note appends an event that leaves the journey in its current state.
func (r *Recorder) Note(ctx context.Context, tx *gorm.DB, journey *models.DealJourneyState, step Step) (*models.DealJourneyEvent, error) {
	if journey == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "journey not found")
	}
	current := journey.State
	step.To = current
	return r.appendEvent(ctx, tx, journey, &current, step, r.now())
}

func (r *Recorder) appendEvent(ctx context.Context, tx *gorm.DB, journey *models.DealJourneyState, from *enums.DealJourneyState, step Step, at time.Time) (*models.DealJourneyEvent, error) {
	payload := step.Payload
	if payload.TransactionID == nil {
		payload.TransactionID = step.TransactionID
	}
	if payload.EscrowID == nil {
		payload.EscrowID = step.EscrowID
	}

	event := &models.DealJourneyEvent{
		JourneyID:  journey.ID,
		EventType:  step.EventType,
		FromState:  from,
		ToState:    step.To,
		Payload:    payload,
		ActorID:    step.ActorID,
		OccurredAt: at,
	}
	if err := r.repo.WithTx(tx).InsertEvent(ctx, event); err != nil {
		return nil, err
	}

	err := r.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventJourneyTransitioned,
		AggregateType: enums.AggregateDealJourney,
		AggregateID:   journey.ID,
		OccurredAt:    at,
		Data: payloads.JourneyTransitionedEvent{
			JourneyEventID: event.ID,
			JourneyID:      journey.ID,
			EventType:      event.EventType,
			FromState:      from,
			ToState:        event.ToState,
			ListingID:      journey.ListingID,
			BuyerID:        journey.BuyerID,
			DealerID:       journey.DealerID,
			ActorID:        step.ActorID,
			TransactionID:  payload.TransactionID,
			EscrowID:       payload.EscrowID,
			Note:           payload.Note,
			OccurredAt:     at,
		},
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

type nopObserver struct{}

func (nopObserver) ObserveTransition(string, string, string) {}
