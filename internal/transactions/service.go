package transactions

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
	"github.com/angelmondragon/carbridge-backend/internal/escrow"
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
	"github.com/angelmondragon/carbridge-backend/pkg/pagination"
	"github.com/angelmondragon/carbridge-backend/pkg/stripe"
	"github.com/angelmondragon/carbridge-backend/pkg/types"
)

const alreadyRefundedMessage = "transaction already refunded"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type auditRecorder interface {
	Record(ctx context.Context, tx *gorm.DB, entry audit.Entry) error
}

type journeyRecorder interface {
	Ensure(ctx context.Context, tx *gorm.DB, key journey.Key, actorID *uuid.UUID) (*models.DealJourneyState, error)
	Advance(ctx context.Context, tx *gorm.DB, key journey.Key, step journey.Step) (*models.DealJourneyState, error)
	Note(ctx context.Context, tx *gorm.DB, journey *models.DealJourneyState, step journey.Step) (*models.DealJourneyEvent, error)
}

// Refunder issues processor refunds.
type Refunder interface {
	CreateRefund(ctx context.Context, in stripe.RefundInput) (*stripe.RefundResult, error)
}

type domainMetrics interface {
	ObserveTransition(entity, from, to string)
	IncRefund(outcome string)
}

// Service covers checkout, role-scoped reads, refunds and processor results.
type Service interface {
	Create(ctx context.Context, actor auth.Actor, input CreateInput) (*TransactionDTO, error)
	List(ctx context.Context, actor auth.Actor, query ListQuery) (*ListResult, error)
	Refund(ctx context.Context, actor auth.Actor, input RefundInput) (*RefundResult, error)
	ApplyPaymentSucceeded(ctx context.Context, outcome PaymentOutcome) error
	ApplyPaymentFailed(ctx context.Context, outcome PaymentOutcome) error
	ApplyPaymentCanceled(ctx context.Context, outcome PaymentOutcome) error
	ReconcileRefund(ctx context.Context, outcome RefundOutcome) error
}

// ServiceParams bundles the transaction service dependencies.
type ServiceParams struct {
	Repo     Repository
	Listings listings.Repository
	Escrows  escrow.Repository
	Tx       txRunner
	Outbox   outboxPublisher
	Audit    auditRecorder
	Journey  journeyRecorder
	Refunder Refunder
	Metrics  domainMetrics
	Logger   *logger.Logger
}

type service struct {
	repo     Repository
	listings listings.Repository
	escrows  escrow.Repository
	tx       txRunner
	outbox   outboxPublisher
	audit    auditRecorder
	journey  journeyRecorder
	refunder Refunder
	metrics  domainMetrics
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the transaction service.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("transactions repository required")
	case params.Listings == nil:
		return nil, fmt.Errorf("listings repository required")
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
	case params.Refunder == nil:
		return nil, fmt.Errorf("refunder required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	metrics := params.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &service{
		repo:     params.Repo,
		listings: params.Listings,
		escrows:  params.Escrows,
		tx:       params.Tx,
		outbox:   params.Outbox,
		audit:    params.Audit,
		journey:  params.Journey,
		refunder: params.Refunder,
		metrics:  metrics,
		logg:     params.Logger,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Create(ctx context.Context, actor auth.Actor, input CreateInput) (*TransactionDTO, error) {
	if actor.Role != enums.RoleBuyer {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "buyer access required")
	}

	fields := map[string]string{}
	if input.ListingID == uuid.Nil {
		fields["listing_id"] = "is required"
	}
	email := strings.ToLower(strings.TrimSpace(input.BuyerEmail))
	if email == "" {
		fields["buyer_email"] = "is required"
	}
	name := strings.TrimSpace(input.BuyerName)
	if name == "" {
		fields["buyer_name"] = "is required"
	}
	currency, err := enums.ParseCurrency(input.Currency)
	if err != nil {
		fields["currency"] = "is not supported"
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(input.Amount))
	if err != nil || !amount.IsPositive() {
		fields["amount"] = "must be greater than zero"
	} else if currency != "" {
		if _, err := money.ToMinorUnits(amount, currency.String()); err != nil {
			fields["amount"] = err.Error()
		}
	}
	if len(fields) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(fields)
	}

	listing, err := s.listings.FindByID(ctx, input.ListingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listing")
	}
	if listing.Status != enums.ListingStatusActive {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "listing is not available for purchase")
	}
	if listing.Currency != currency {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "currency does not match listing")
	}

	source := strings.TrimSpace(input.Source)
	if source == "" {
		source = "web"
	}
	txn := &models.Transaction{
		ListingID:       listing.ID,
		DealerID:        listing.DealerID,
		BuyerID:         actor.UserID,
		Amount:          amount,
		Currency:        currency,
		Status:          enums.TransactionStatusPending,
		BuyerEmail:      email,
		BuyerName:       name,
		BuyerPhone:      trimmed(input.BuyerPhone),
		BuyerCountry:    trimmed(input.BuyerCountry),
		ShippingAddress: trimmed(input.ShippingAddress),
		Metadata: types.TransactionMetadata{
			CheckoutDetails: &types.CheckoutDetails{CheckoutSource: source, ClientIP: actor.IP},
		},
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, txn); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create transaction")
		}

		actorID := actor.UserID
		txnRef := txn.ID
		amountValue := amount.InexactFloat64()
		step := journey.Step{
			To:            enums.JourneyStateQuote,
			EventType:     enums.JourneyEventCheckoutInitiated,
			ActorID:       &actorID,
			TransactionID: &txnRef,
		}
		step.Payload.Amount = &amountValue
		step.Payload.Currency = currency.String()
		if _, err := s.journey.Advance(ctx, tx, journeyKey(txn), step); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record journey")
		}
		return s.emitTransaction(ctx, tx, &actor, txn, enums.EventTransactionCreated, "")
	})
	if err != nil {
		return nil, err
	}
	return FromModel(txn), nil
}

func (s *service) List(ctx context.Context, actor auth.Actor, query ListQuery) (*ListResult, error) {
	filter := ListFilter{}
	switch actor.Role {
	case enums.RoleAdmin:
	case enums.RoleDealer:
		if actor.DealerID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "dealer profile not found")
		}
		dealerID := *actor.DealerID
		filter.DealerID = &dealerID
	case enums.RoleBuyer:
		buyerID := actor.UserID
		filter.BuyerID = &buyerID
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "role not permitted")
	}

	if raw := strings.TrimSpace(query.Status); raw != "" {
		status, err := enums.ParseTransactionStatus(strings.ToLower(raw))
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter").
				WithDetails(map[string]string{"status": "must be one of pending, processing, succeeded, failed, refunded"})
		}
		filter.Status = &status
	}

	filter.Sort = strings.ToLower(strings.TrimSpace(query.Sort))
	if filter.Sort == "" {
		filter.Sort = defaultSort
	}
	if _, ok := sortColumns[filter.Sort]; !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid sort field").
			WithDetails(map[string]string{"sort": "must be one of created_at, updated_at, amount, status"})
	}
	switch strings.ToLower(strings.TrimSpace(query.Order)) {
	case "", "desc":
		filter.Desc = true
	case "asc":
		filter.Desc = false
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order").
			WithDetails(map[string]string{"order": "must be asc or desc"})
	}

	params := pagination.Normalize(pagination.Params{Page: query.Page, Limit: query.Limit})
	filter.Limit = params.Limit
	filter.Offset = params.Offset()

	rows, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}
	out := make([]TransactionDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return &ListResult{
		Transactions: out,
		Pagination:   pagination.NewPage(params, total),
		Role:         actor.Role,
	}, nil
}

// Refund validates everything before calling the processor, then records the
// refund and its side effects in one transaction.
func (s *service) Refund(ctx context.Context, actor auth.Actor, input RefundInput) (*RefundResult, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin access required")
	}
	if input.TransactionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
			WithDetails(map[string]string{"reason": "is required"})
	}

	txn, err := s.repo.FindByID(ctx, input.TransactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	switch txn.Status {
	case enums.TransactionStatusSucceeded:
	case enums.TransactionStatusRefunded:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, alreadyRefundedMessage)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot refund a %s transaction", txn.Status))
	}
	if txn.PaymentIntentID == nil || strings.TrimSpace(*txn.PaymentIntentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction has no payment reference")
	}

	refundAmount := txn.Amount
	if input.Amount != nil {
		refundAmount = *input.Amount
		if !refundAmount.IsPositive() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
				WithDetails(map[string]string{"amount": "must be greater than zero"})
		}
		if refundAmount.GreaterThan(txn.Amount) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount exceeds original amount").
				WithDetails(map[string]string{"amount": "must not exceed " + txn.Amount.String()})
		}
	}
	amountMinor, err := money.ToMinorUnits(refundAmount, txn.Currency.String())
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
			WithDetails(map[string]string{"amount": err.Error()})
	}

	processorRefund, err := s.refunder.CreateRefund(ctx, stripe.RefundInput{
		PaymentIntentID: *txn.PaymentIntentID,
		AmountMinor:     amountMinor,
		Reason:          reason,
		Metadata: map[string]string{
			"transaction_id": txn.ID.String(),
			"listing_id":     txn.ListingID.String(),
			"refunded_by":    actor.UserID.String(),
		},
		IdempotencyKey: "refund-" + txn.ID.String(),
	})
	if err != nil {
		s.metrics.IncRefund("processor_failed")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "payment processor refund failed")
	}

	details := types.RefundDetails{
		RefundID:          processorRefund.ID,
		RefundAmount:      refundAmount.InexactFloat64(),
		RefundMinorAmount: amountMinor,
		RefundReason:      reason,
		RefundStatus:      processorRefund.Status,
		RefundedAt:        s.now(),
		RefundedBy:        actor.UserID,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.recordRefund(ctx, tx, &actor, txn, details)
	})
	if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeStateConflict {
		// The processor webhook may have recorded this same refund first.
		claimed, claimErr := s.claimReconciledRefund(ctx, actor, txn, details)
		switch {
		case claimErr != nil:
			err = claimErr
		case !claimed:
			return nil, err
		default:
			err = nil
		}
	}
	if err != nil {
		s.metrics.IncRefund("not_recorded")
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"transaction_id":      txn.ID.String(),
			"processor_refund_id": processorRefund.ID,
		})
		s.logg.Error(logCtx, "transactions.refund_not_recorded", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeRefundNotRecorded, err, "refund issued but not recorded").
			WithDetails(map[string]string{
				"processor_refund_id": processorRefund.ID,
				"transaction_id":      txn.ID.String(),
			})
	}
	s.metrics.IncRefund("recorded")

	return &RefundResult{
		Success: true,
		Refund: RefundSummary{
			ID:       processorRefund.ID,
			Amount:   refundAmount.InexactFloat64(),
			Currency: txn.Currency,
			Status:   processorRefund.Status,
			Reason:   reason,
		},
		Transaction: RefundedTransaction{
			ID:        txn.ID,
			Status:    enums.TransactionStatusRefunded,
			ListingID: txn.ListingID,
		},
	}, nil
}

// recordRefund is the local half of a refund. actor is nil when the refund
// was observed at the processor rather than issued here; no audit row is
// written in that case.
func (s *service) recordRefund(ctx context.Context, tx *gorm.DB, actor *auth.Actor, txn *models.Transaction, details types.RefundDetails) error {
	repo := s.repo.WithTx(tx)
	rows, err := repo.TransitionStatus(ctx, txn.ID, enums.TransactionStatusSucceeded, enums.TransactionStatusRefunded, map[string]any{
		"metadata":   txn.Metadata.WithRefund(details),
		"updated_at": details.RefundedAt,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update transaction")
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, alreadyRefundedMessage)
	}
	txn.Status = enums.TransactionStatusRefunded
	txn.Metadata = txn.Metadata.WithRefund(details)
	s.metrics.ObserveTransition("transaction", enums.TransactionStatusSucceeded.String(), enums.TransactionStatusRefunded.String())

	listingRows, err := s.listings.WithTx(tx).TransitionStatus(ctx, txn.ListingID, enums.ListingStatusSold, enums.ListingStatusActive, map[string]any{
		"updated_at": details.RefundedAt,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore listing")
	}
	if listingRows > 0 {
		s.metrics.ObserveTransition("listing", enums.ListingStatusSold.String(), enums.ListingStatusActive.String())
	}

	if txn.EscrowID != nil {
		escrowRows, err := s.escrows.WithTx(tx).TransitionStatus(ctx, *txn.EscrowID, enums.EscrowStatusFunded, enums.EscrowStatusRefunded, map[string]any{
			"updated_at": details.RefundedAt,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "refund escrow")
		}
		if escrowRows > 0 {
			s.metrics.ObserveTransition("escrow", enums.EscrowStatusFunded.String(), enums.EscrowStatusRefunded.String())
		}
	}

	refundAmount := details.RefundAmount
	txnRef := txn.ID
	step := journey.Step{
		To:            enums.JourneyStateRefunded,
		EventType:     enums.JourneyEventRefunded,
		TransactionID: &txnRef,
		EscrowID:      txn.EscrowID,
	}
	step.Payload.Amount = &refundAmount
	step.Payload.Currency = txn.Currency.String()
	step.Payload.Note = details.RefundReason
	if actor != nil {
		actorID := actor.UserID
		step.ActorID = &actorID
	}
	if _, err := s.journey.Advance(ctx, tx, journeyKey(txn), step); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record journey")
	}

	if actor != nil {
		if err := s.auditRefund(ctx, tx, *actor, txn, details); err != nil {
			return err
		}
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventTransactionRefunded,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   txn.ID,
		Data: payloads.TransactionRefundedEvent{
			TransactionID: txn.ID,
			ListingID:     txn.ListingID,
			DealerID:      txn.DealerID,
			BuyerID:       txn.BuyerID,
			BuyerEmail:    txn.BuyerEmail,
			RefundID:      details.RefundID,
			RefundAmount:  details.RefundAmount,
			Currency:      txn.Currency,
			Reason:        details.RefundReason,
			RefundedAt:    details.RefundedAt,
		},
	}
	if actor != nil {
		event.Actor = outbox.ActorOf(*actor)
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit refund event")
	}
	return nil
}

// claimReconciledRefund attributes a refund that ReconcileRefund recorded
// from the processor webhook to the admin who issued it. It reports false
// when the stored refund is a different one or already has an issuer.
func (s *service) claimReconciledRefund(ctx context.Context, actor auth.Actor, txn *models.Transaction, details types.RefundDetails) (bool, error) {
	var claimed bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		claimed = false
		repo := s.repo.WithTx(tx)
		stored, err := repo.LockByID(ctx, txn.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload transaction")
		}
		recorded := stored.Metadata.RefundDetails
		if stored.Status != enums.TransactionStatusRefunded || recorded == nil ||
			recorded.RefundID != details.RefundID || recorded.RefundedBy != uuid.Nil {
			return nil
		}

		attributed := *recorded
		attributed.RefundedBy = actor.UserID
		attributed.RefundReason = details.RefundReason
		if _, err := repo.TransitionStatus(ctx, stored.ID, enums.TransactionStatusRefunded, enums.TransactionStatusRefunded, map[string]any{
			"metadata": stored.Metadata.WithRefund(attributed),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attribute refund")
		}
		if err := s.auditRefund(ctx, tx, actor, stored, details); err != nil {
			return err
		}
		claimed = true
		return nil
	})
	return claimed, err
}

func (s *service) auditRefund(ctx context.Context, tx *gorm.DB, actor auth.Actor, txn *models.Transaction, details types.RefundDetails) error {
	err := s.audit.Record(ctx, tx, audit.Entry{
		Action:       enums.AuditTransactionRefunded,
		ResourceType: enums.AuditResourceTransaction,
		ResourceID:   txn.ID,
		Actor:        actor,
		Details: map[string]any{
			"transaction_id": txn.ID.String(),
			"listing_id":     txn.ListingID.String(),
			"refund_id":      details.RefundID,
			"amount":         details.RefundAmount,
			"currency":       txn.Currency,
			"reason":         details.RefundReason,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write audit log")
	}
	return nil
}

func (s *service) emitTransaction(ctx context.Context, tx *gorm.DB, actor *auth.Actor, txn *models.Transaction, eventType enums.OutboxEventType, failureReason string) error {
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   txn.ID,
		Data: payloads.TransactionEvent{
			TransactionID: txn.ID,
			ListingID:     txn.ListingID,
			DealerID:      txn.DealerID,
			BuyerID:       txn.BuyerID,
			BuyerEmail:    txn.BuyerEmail,
			Amount:        txn.Amount.InexactFloat64(),
			Currency:      txn.Currency,
			Status:        txn.Status,
			FailureReason: failureReason,
		},
	}
	if actor != nil {
		event.Actor = outbox.ActorOf(*actor)
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit transaction event")
	}
	return nil
}

func journeyKey(txn *models.Transaction) journey.Key {
	return journey.Key{ListingID: txn.ListingID, BuyerID: txn.BuyerID, DealerID: txn.DealerID}
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	out := strings.TrimSpace(*value)
	if out == "" {
		return nil
	}
	return &out
}

type nopMetrics struct{}

func (nopMetrics) ObserveTransition(string, string, string) {}
func (nopMetrics) IncRefund(string)                         {}
