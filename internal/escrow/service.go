package escrow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/carbridge-backend/internal/audit"
	"github.com/angelmondragon/carbridge-backend/internal/journey"
	"github.com/angelmondragon/carbridge-backend/internal/listings"
	"github.com/angelmondragon/carbridge-backend/pkg/auth"
	"github.com/angelmondragon/carbridge-backend/pkg/db/models"
	"github.com/angelmondragon/carbridge-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/carbridge-backend/pkg/errors"
	"github.com/angelmondragon/carbridge-backend/pkg/logger"
	"github.com/angelmondragon/carbridge-backend/pkg/money"
	"github.com/angelmondragon/carbridge-backend/pkg/outbox"
	"github.com/angelmondragon/carbridge-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/carbridge-backend/pkg/stripe"
)

// compensateTimeout bounds the intent cancel, which outlives the request.
const compensateTimeout = 10 * time.Second

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

// PaymentIntents is the processor surface used for escrow funding.
type PaymentIntents interface {
	CreatePaymentIntent(ctx context.Context, in stripe.PaymentIntentInput) (*stripe.PaymentIntentResult, error)
	CancelPaymentIntent(ctx context.Context, id string) error
}

// TransactionLinker attaches a new escrow to the buyer's transaction for the
// listing, creating one when the buyer skipped checkout.
type TransactionLinker interface {
	LinkEscrow(ctx context.Context, tx *gorm.DB, escrow *models.Escrow, buyer auth.Actor) (*models.Transaction, error)
}

// Service creates, reads and releases escrows.
type Service interface {
	Create(ctx context.Context, actor auth.Actor, input CreateInput) (*CreateResult, error)
	Get(ctx context.Context, actor auth.Actor, escrowID uuid.UUID) (*EscrowDTO, error)
	Release(ctx context.Context, actor auth.Actor, escrowID uuid.UUID) (*EscrowDTO, error)
}

// ServiceParams bundles the escrow service dependencies.
type ServiceParams struct {
	Repo     Repository
	Listings listings.Repository
	Tx       txRunner
	Outbox   outboxPublisher
	Audit    auditRecorder
	Journey  journeyAdvancer
	Payments PaymentIntents
	Linker   TransactionLinker
	Logger   *logger.Logger
}

type service struct {
	repo     Repository
	listings listings.Repository
	tx       txRunner
	outbox   outboxPublisher
	audit    auditRecorder
	journey  journeyAdvancer
	payments PaymentIntents
	linker   TransactionLinker
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the escrow service.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("escrow repository required")
	case params.Listings == nil:
		return nil, fmt.Errorf("listings repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.Audit == nil:
		return nil, fmt.Errorf("audit writer required")
	case params.Journey == nil:
		return nil, fmt.Errorf("journey recorder required")
	case params.Payments == nil:
		return nil, fmt.Errorf("payment processor required")
	case params.Linker == nil:
		return nil, fmt.Errorf("transaction linker required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     params.Repo,
		listings: params.Listings,
		tx:       params.Tx,
		outbox:   params.Outbox,
		audit:    params.Audit,
		journey:  params.Journey,
		payments: params.Payments,
		linker:   params.Linker,
		logg:     params.Logger,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Create(ctx context.Context, actor auth.Actor, input CreateInput) (*CreateResult, error) {
	if actor.Role != enums.RoleBuyer {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "buyer access required")
	}

	fields := map[string]string{}
	if input.ListingID == uuid.Nil {
		fields["listingId"] = "is required"
	}
	if input.DealerID == uuid.Nil {
		fields["dealerId"] = "is required"
	}
	currency, err := enums.ParseCurrency(input.Currency)
	if err != nil {
		fields["currency"] = "is not supported"
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(input.Amount))
	if err != nil || !amount.IsPositive() {
		fields["amount"] = "must be greater than zero"
	}
	if len(fields) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(fields)
	}
	amountMinor, err := money.ToMinorUnits(amount, currency.String())
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
			WithDetails(map[string]string{"amount": err.Error()})
	}

	listing, err := s.listings.FindByID(ctx, input.ListingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listing")
	}
	if listing.DealerID != input.DealerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
	}
	if listing.Status != enums.ListingStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "listing is not available for purchase")
	}
	if listing.Currency != currency {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "currency does not match listing")
	}
	if !money.Round(amount, currency.String()).Equal(listing.Price) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount does not match listing price").
			WithDetails(map[string]string{"amount": "must equal " + listing.Price.String()})
	}

	escrowID := uuid.New()
	intent, err := s.payments.CreatePaymentIntent(ctx, stripe.PaymentIntentInput{
		AmountMinor:  amountMinor,
		Currency:     currency.String(),
		Description:  listing.Title,
		ReceiptEmail: actor.Email,
		Metadata: map[string]string{
			"escrow_id":  escrowID.String(),
			"listing_id": listing.ID.String(),
			"buyer_id":   actor.UserID.String(),
		},
		IdempotencyKey: "escrow-" + escrowID.String(),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
	}

	record := &models.Escrow{
		ID:              escrowID,
		ListingID:       listing.ID,
		DealerID:        listing.DealerID,
		BuyerID:         actor.UserID,
		Amount:          money.Round(amount, currency.String()),
		Currency:        currency,
		Status:          enums.EscrowStatusCreated,
		PaymentIntentID: intent.ID,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, record); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create escrow")
		}
		if err := repo.CreateStages(ctx, NewStages(record.ID)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create tracking stages")
		}
		txn, err := s.linker.LinkEscrow(ctx, tx, record, actor)
		if err != nil {
			return err
		}

		actorID := actor.UserID
		escrowRef := record.ID
		txnRef := txn.ID
		amountValue := record.Amount.InexactFloat64()
		step := journey.Step{
			To:            enums.JourneyStateDeposit,
			EventType:     enums.JourneyEventEscrowCreated,
			ActorID:       &actorID,
			TransactionID: &txnRef,
			EscrowID:      &escrowRef,
		}
		step.Payload.Amount = &amountValue
		step.Payload.Currency = record.Currency.String()
		if _, err := s.journey.Advance(ctx, tx, journey.Key{
			ListingID: record.ListingID,
			BuyerID:   record.BuyerID,
			DealerID:  record.DealerID,
		}, step); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record journey")
		}

		return s.emit(ctx, tx, actor, record, enums.EventEscrowCreated)
	})
	if err != nil {
		s.compensate(ctx, intent.ID, err)
		return nil, err
	}

	return &CreateResult{ClientSecret: intent.ClientSecret, EscrowID: record.ID}, nil
}

// compensate cancels an intent whose escrow never persisted. Its own failure
// is logged and the original error is what the caller sees.
func (s *service) compensate(ctx context.Context, intentID string, cause error) {
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"payment_intent_id": intentID,
		"cause":             cause.Error(),
	})
	cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensateTimeout)
	defer cancel()
	if err := s.payments.CancelPaymentIntent(cancelCtx, intentID); err != nil {
		s.logg.Error(logCtx, "escrow.intent_cancel_failed", err)
		return
	}
	s.logg.Warn(logCtx, "escrow.intent_canceled_after_persist_failure")
}

func (s *service) Get(ctx context.Context, actor auth.Actor, escrowID uuid.UUID) (*EscrowDTO, error) {
	record, err := s.load(ctx, s.repo, actor, escrowID)
	if err != nil {
		return nil, err
	}
	return FromModel(record), nil
}

func (s *service) load(ctx context.Context, repo Repository, actor auth.Actor, escrowID uuid.UUID) (*models.Escrow, error) {
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
	if !CanView(record, actor.UserID, actor.Role, actor.DealerID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "escrow not found")
	}
	return record, nil
}

// Release pays out a funded escrow once delivery is confirmed.
func (s *service) Release(ctx context.Context, actor auth.Actor, escrowID uuid.UUID) (*EscrowDTO, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin access required")
	}

	var record *models.Escrow
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := s.load(ctx, repo, actor, escrowID)
		if err != nil {
			return err
		}
		if current.Status != enums.EscrowStatusFunded {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "escrow is not funded")
		}
		delivery, err := repo.FindStage(ctx, current.ID, enums.TrackingStageDelivery)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivery stage")
		}
		if delivery == nil || delivery.Status != enums.TrackingStatusCompleted {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "delivery has not been completed")
		}

		now := s.now()
		rows, err := repo.TransitionStatus(ctx, current.ID, enums.EscrowStatusFunded, enums.EscrowStatusReleased, map[string]any{
			"released_at": now,
			"updated_at":  now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release escrow")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "escrow already processed")
		}
		current.Status = enums.EscrowStatusReleased
		current.ReleasedAt = &now
		current.UpdatedAt = now

		if err := s.audit.Record(ctx, tx, audit.Entry{
			Action:       enums.AuditEscrowReleased,
			ResourceType: enums.AuditResourceEscrow,
			ResourceID:   current.ID,
			Actor:        actor,
			Details: map[string]any{
				"listing_id": current.ListingID.String(),
				"amount":     current.Amount.String(),
				"currency":   current.Currency,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write audit log")
		}
		if err := s.emit(ctx, tx, actor, current, enums.EventEscrowReleased); err != nil {
			return err
		}
		record = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return FromModel(record), nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, actor auth.Actor, record *models.Escrow, eventType enums.OutboxEventType) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateEscrow,
		AggregateID:   record.ID,
		Actor:         outbox.ActorOf(actor),
		Data:          EventPayload(record),
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit escrow event")
	}
	return nil
}

// EventPayload builds the outbox payload describing record.
func EventPayload(record *models.Escrow) payloads.EscrowEvent {
	return payloads.EscrowEvent{
		EscrowID:  record.ID,
		ListingID: record.ListingID,
		DealerID:  record.DealerID,
		BuyerID:   record.BuyerID,
		Amount:    record.Amount.InexactFloat64(),
		Currency:  record.Currency,
		Status:    record.Status,
	}
}
