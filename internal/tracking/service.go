package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/carbridge-backend/internal/audit"
	"github.com/angelmondragon/carbridge-backend/internal/escrow"
	"github.com/angelmondragon/carbridge-backend/internal/journey"
	"github.com/angelmondragon/carbridge-backend/pkg/auth"
	"github.com/angelmondragon/carbridge-backend/pkg/db/models"
	"github.com/angelmondragon/carbridge-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/carbridge-backend/pkg/errors"
	"github.com/angelmondragon/carbridge-backend/pkg/logger"
	"github.com/angelmondragon/carbridge-backend/pkg/outbox"
	"github.com/angelmondragon/carbridge-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type auditRecorder interface {
	Record(ctx context.Context, tx *gorm.DB, entry audit.Entry) error
}

type journeyAdvancer interface {
	Advance(ctx context.Context, tx *gorm.DB, key journey.Key, step journey.Step) (*models.DealJourneyState, error)
}

type transitionObserver interface {
	ObserveTransition(entity, from, to string)
}

// Broker fans stage changes out to live subscribers.
type Broker interface {
	TrackingChannel(escrowID string) string
	Publish(ctx context.Context, channel string, payload any) error
	Subscribe(ctx context.Context, channel string) (<-chan string, func() error, error)
}

// Service reads and updates escrow tracking timelines.
type Service interface {
	Timeline(ctx context.Context, actor auth.Actor, escrowID uuid.UUID) (*Timeline, error)
	UpdateStage(ctx context.Context, actor auth.Actor, input UpdateInput) (*StageDTO, error)
	Subscribe(ctx context.Context, actor auth.Actor, escrowID uuid.UUID) (<-chan string, func() error, error)
}

// ServiceParams bundles the tracking service dependencies. Metrics may be nil.
type ServiceParams struct {
	Escrows escrow.Repository
	Tx      txRunner
	Outbox  outboxPublisher
	Audit   auditRecorder
	Journey journeyAdvancer
	Broker  Broker
	Metrics transitionObserver
	Logger  *logger.Logger
}

type service struct {
	escrows escrow.Repository
	tx      txRunner
	outbox  outboxPublisher
	audit   auditRecorder
	journey journeyAdvancer
	broker  Broker
	metrics transitionObserver
	logg    *logger.Logger
	now     func() time.Time
}

// NewService builds the tracking service.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Escrows == nil:
		return nil, fmt.Errorf("escrow repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.Audit == nil:
		return nil, fmt.Errorf("audit writer required")
	case params.Journey == nil:
		return nil, fmt.Errorf("journey recorder required")
	case params.Broker == nil:
		return nil, fmt.Errorf("broker required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	metrics := params.Metrics
	if metrics == nil {
		metrics = nopObserver{}
	}
	return &service{
		escrows: params.Escrows,
		tx:      params.Tx,
		outbox:  params.Outbox,
		audit:   params.Audit,
		journey: params.Journey,
		broker:  params.Broker,
		metrics: metrics,
		logg:    params.Logger,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Timeline(ctx context.Context, actor auth.Actor, escrowID uuid.UUID) (*Timeline, error) {
	record, err := s.visibleEscrow(ctx, s.escrows, actor, escrowID)
	if err != nil {
		return nil, err
	}
	stages, err := s.escrows.ListStages(ctx, record.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tracking stages")
	}
	return &Timeline{EscrowID: record.ID, Stages: orderStages(record.ID, stages)}, nil
}

// Subscribe returns the live change feed of a visible escrow.
func (s *service) Subscribe(ctx context.Context, actor auth.Actor, escrowID uuid.UUID) (<-chan string, func() error, error) {
	record, err := s.visibleEscrow(ctx, s.escrows, actor, escrowID)
	if err != nil {
		return nil, nil, err
	}
	messages, closer, err := s.broker.Subscribe(ctx, s.broker.TrackingChannel(record.ID.String()))
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "subscribe to tracking updates")
	}
	return messages, closer, nil
}

func (s *service) UpdateStage(ctx context.Context, actor auth.Actor, input UpdateInput) (*StageDTO, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin access required")
	}
	stageType, err := enums.ParseTrackingStageType(strings.ToLower(strings.TrimSpace(input.StageType)))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid tracking stage").
			WithDetails(map[string]string{"stage": "must be one of payment, documentation, shipping, customs, delivery"})
	}
	status, err := enums.ParseTrackingStageStatus(strings.ToLower(strings.TrimSpace(input.Status)))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid tracking status").
			WithDetails(map[string]string{"status": "must be one of pending, in_progress, completed, failed"})
	}

	var (
		updated models.OrderTrackingStage
		record  *models.Escrow
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.escrows.WithTx(tx)
		var err error
		record, err = s.visibleEscrow(ctx, repo, actor, input.EscrowID)
		if err != nil {
			return err
		}
		stages, err := repo.ListStages(ctx, record.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tracking stages")
		}
		var current *models.OrderTrackingStage
		for i := range stages {
			if stages[i].StageType == stageType {
				current = &stages[i]
				break
			}
		}
		if current == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "tracking stage not found")
		}
		if !current.Status.CanTransitionTo(status) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot move %s stage from %s to %s", stageType, current.Status, status))
		}
		if status == enums.TrackingStatusInProgress || status == enums.TrackingStatusCompleted {
			if blocker, blocked := blockingStage(stageType, stages); blocked {
				return pkgerrors.New(pkgerrors.CodeStateConflict,
					fmt.Sprintf("%s stage must be completed first", blocker))
			}
		}

		now := s.now()
		actorID := actor.UserID
		updates := map[string]any{
			"status":     status,
			"updated_by": actorID,
			"updated_at": now,
		}
		next := *current
		next.Status = status
		next.UpdatedBy = &actorID
		next.UpdatedAt = now
		if input.Location != nil {
			updates["location"] = *input.Location
			next.Location = input.Location
		}
		if input.ETA != nil {
			eta := input.ETA.UTC()
			updates["eta"] = eta
			next.ETA = &eta
		}
		if input.Notes != nil {
			updates["notes"] = *input.Notes
			next.Notes = input.Notes
		}
		if status == enums.TrackingStatusInProgress || (status == enums.TrackingStatusCompleted && current.StartedAt == nil) {
			updates["started_at"] = now
			next.StartedAt = &now
		}
		if status == enums.TrackingStatusCompleted {
			updates["completed_at"] = now
			next.CompletedAt = &now
		}

		rows, err := repo.UpdateStage(ctx, current.ID, current.Status, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update tracking stage")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "tracking stage already updated")
		}
		s.metrics.ObserveTransition("tracking_stage", current.Status.String(), status.String())
		updated = next

		if err := s.audit.Record(ctx, tx, audit.Entry{
			Action:       enums.AuditTrackingStageUpdated,
			ResourceType: enums.AuditResourceTrackingStage,
			ResourceID:   current.ID,
			Actor:        actor,
			Details: map[string]any{
				"escrow_id":  record.ID.String(),
				"stage_type": stageType,
				"from":       current.Status,
				"to":         status,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write audit log")
		}

		if err := s.advanceJourney(ctx, tx, actor, record, stageType, status); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTrackingStageUpdated,
			AggregateType: enums.AggregateTrackingStage,
			AggregateID:   current.ID,
			Actor:         outbox.ActorOf(actor),
			Data: payloads.TrackingStageUpdatedEvent{
				EscrowID:  record.ID,
				StageID:   current.ID,
				StageType: stageType,
				Status:    status,
				Location:  next.Location,
				ETA:       next.ETA,
				BuyerID:   record.BuyerID,
				DealerID:  record.DealerID,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit tracking event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	dto := StageFromModel(updated)
	s.publish(ctx, record.ID, dto)
	return &dto, nil
}

func (s *service) advanceJourney(ctx context.Context, tx *gorm.DB, actor auth.Actor, record *models.Escrow, stageType enums.TrackingStageType, status enums.TrackingStageStatus) error {
	var step journey.Step
	switch {
	case stageType == enums.TrackingStageShipping && status == enums.TrackingStatusInProgress:
		step = journey.Step{To: enums.JourneyStateShipping, EventType: enums.JourneyEventShipmentStarted}
	case stageType == enums.TrackingStageDelivery && status == enums.TrackingStatusCompleted:
		step = journey.Step{To: enums.JourneyStateDelivered, EventType: enums.JourneyEventDelivered}
	default:
		return nil
	}
	actorID := actor.UserID
	escrowID := record.ID
	step.ActorID = &actorID
	step.EscrowID = &escrowID
	step.Payload.StageType = stageType.String()
	_, err := s.journey.Advance(ctx, tx, journey.Key{
		ListingID: record.ListingID,
		BuyerID:   record.BuyerID,
		DealerID:  record.DealerID,
	}, step)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record journey")
	}
	return nil
}

// publish is best-effort: the update is already committed.
func (s *service) publish(ctx context.Context, escrowID uuid.UUID, stage StageDTO) {
	payload, err := json.Marshal(StageChange{Type: stageChangeType, EscrowID: escrowID, Stage: stage})
	if err == nil {
		err = s.broker.Publish(ctx, s.broker.TrackingChannel(escrowID.String()), payload)
	}
	if err != nil {
		logCtx := s.logg.WithField(ctx, "escrow_id", escrowID.String())
		s.logg.Error(logCtx, "tracking.publish_failed", err)
	}
}

func (s *service) visibleEscrow(ctx context.Context, repo escrow.Repository, actor auth.Actor, escrowID uuid.UUID) (*models.Escrow, error) {
	if escrowID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "escrow id required")
	}
	record, err := repo.FindByID(ctx, escrowID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "escrow not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load escrow")
	}
	if !escrow.CanView(record, actor.UserID, actor.Role, actor.DealerID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "escrow not found")
	}
	return record, nil
}

type nopObserver struct{}

func (nopObserver) ObserveTransition(string, string, string) {}
