package transactions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/carbridge-backend/internal/escrow"
	"github.com/angelmondragon/carbridge-backend/internal/journey"
	"github.com/angelmondragon/carbridge-backend/pkg/db/models"
	"github.com/angelmondragon/carbridge-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/carbridge-backend/pkg/errors"
	"github.com/angelmondragon/carbridge-backend/pkg/money"
	"github.com/angelmondragon/carbridge-backend/pkg/outbox"
	"github.com/angelmondragon/carbridge-backend/pkg/types"
)

const canceledFailureCode = "payment_intent_canceled"

// ApplyPaymentSucceeded funds the escrow and completes the sale. Replays and
// unknown intents are no-ops.
func (s *service) ApplyPaymentSucceeded(ctx context.Context, outcome PaymentOutcome) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txn, ok, err := s.loadForOutcome(ctx, tx, outcome.PaymentIntentID, enums.TransactionStatusSucceeded)
		if err != nil || !ok {
			return err
		}
		at := s.occurredAt(outcome)

		from := txn.Status
		details := types.PaymentDetails{ChargeID: outcome.ChargeID, PaidAt: &at}
		applied, err := s.moveTransaction(ctx, tx, txn, enums.TransactionStatusSucceeded, details)
		if err != nil || !applied {
			return err
		}
		s.metrics.ObserveTransition("transaction", from.String(), txn.Status.String())

		if txn.EscrowID != nil {
			escrows := s.escrows.WithTx(tx)
			rows, err := escrows.TransitionStatus(ctx, *txn.EscrowID, enums.EscrowStatusCreated, enums.EscrowStatusFunded, map[string]any{
				"funded_at":  at,
				"updated_at": at,
			})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fund escrow")
			}
			if rows > 0 {
				s.metrics.ObserveTransition("escrow", enums.EscrowStatusCreated.String(), enums.EscrowStatusFunded.String())
			}
			if err := s.completePaymentStage(ctx, escrows, *txn.EscrowID, at); err != nil {
				return err
			}
		}

		rows, err := s.listings.WithTx(tx).TransitionStatus(ctx, txn.ListingID, enums.ListingStatusActive, enums.ListingStatusSold, map[string]any{
			"updated_at": at,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark listing sold")
		}
		if rows > 0 {
			s.metrics.ObserveTransition("listing", enums.ListingStatusActive.String(), enums.ListingStatusSold.String())
		}

		amount := txn.Amount.InexactFloat64()
		txnRef := txn.ID
		step := journey.Step{
			To:            enums.JourneyStatePayment,
			EventType:     enums.JourneyEventPaymentSucceeded,
			TransactionID: &txnRef,
			EscrowID:      txn.EscrowID,
		}
		step.Payload.Amount = &amount
		step.Payload.Currency = txn.Currency.String()
		if _, err := s.journey.Advance(ctx, tx, journeyKey(txn), step); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record journey")
		}
		return s.emitTransaction(ctx, tx, nil, txn, enums.EventTransactionSucceeded, "")
	})
}

// ApplyPaymentFailed marks the transaction failed and notes it on the journey.
func (s *service) ApplyPaymentFailed(ctx context.Context, outcome PaymentOutcome) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.fail(ctx, tx, outcome)
	})
}

// ApplyPaymentCanceled cancels the unfunded escrow and fails its transaction.
func (s *service) ApplyPaymentCanceled(ctx context.Context, outcome PaymentOutcome) error {
	if outcome.FailureCode == "" {
		outcome.FailureCode = canceledFailureCode
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		at := s.occurredAt(outcome)
		escrows := s.escrows.WithTx(tx)
		record, err := escrows.FindByPaymentIntent(ctx, outcome.PaymentIntentID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load escrow")
		}
		if record != nil {
			rows, err := escrows.TransitionStatus(ctx, record.ID, enums.EscrowStatusCreated, enums.EscrowStatusCanceled, map[string]any{
				"canceled_at": at,
				"updated_at":  at,
			})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel escrow")
			}
			if rows > 0 {
				record.Status = enums.EscrowStatusCanceled
				record.CanceledAt = &at
				s.metrics.ObserveTransition("escrow", enums.EscrowStatusCreated.String(), enums.EscrowStatusCanceled.String())
				if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
					EventType:     enums.EventEscrowCanceled,
					AggregateType: enums.AggregateEscrow,
					AggregateID:   record.ID,
					Data:          escrow.EventPayload(record),
				}); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit escrow event")
				}
			}
		}
		return s.fail(ctx, tx, outcome)
	})
}

// ReconcileRefund records a refund issued at the processor that the
// database never saw. Already refunded transactions are left alone.
func (s *service) ReconcileRefund(ctx context.Context, outcome RefundOutcome) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txn, ok, err := s.loadForOutcome(ctx, tx, outcome.PaymentIntentID, enums.TransactionStatusRefunded)
		if err != nil || !ok {
			return err
		}
		amount := money.FromMinorUnits(outcome.AmountMinor, txn.Currency.String())
		reason := outcome.Reason
		if reason == "" {
			reason = "refunded at processor"
		}
		err = s.recordRefund(ctx, tx, nil, txn, types.RefundDetails{
			RefundID:          outcome.RefundID,
			RefundAmount:      amount.InexactFloat64(),
			RefundMinorAmount: outcome.AmountMinor,
			RefundReason:      reason,
			RefundStatus:      outcome.Status,
			RefundedAt:        s.now(),
			RefundedBy:        uuid.Nil,
		})
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeStateConflict {
			return nil
		}
		if err == nil {
			s.metrics.IncRefund("reconciled")
		}
		return err
	})
}

func (s *service) fail(ctx context.Context, tx *gorm.DB, outcome PaymentOutcome) error {
	txn, ok, err := s.loadForOutcome(ctx, tx, outcome.PaymentIntentID, enums.TransactionStatusFailed)
	if err != nil || !ok {
		return err
	}
	at := s.occurredAt(outcome)
	from := txn.Status
	applied, err := s.moveTransaction(ctx, tx, txn, enums.TransactionStatusFailed, types.PaymentDetails{
		ChargeID:       outcome.ChargeID,
		FailedAt:       &at,
		FailureCode:    outcome.FailureCode,
		FailureMessage: outcome.FailureMessage,
	})
	if err != nil || !applied {
		return err
	}
	s.metrics.ObserveTransition("transaction", from.String(), txn.Status.String())

	reason := outcome.FailureMessage
	if reason == "" {
		reason = outcome.FailureCode
	}
	current, err := s.journey.Ensure(ctx, tx, journeyKey(txn), nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load journey")
	}
	txnRef := txn.ID
	step := journey.Step{
		EventType:     enums.JourneyEventPaymentFailed,
		TransactionID: &txnRef,
		EscrowID:      txn.EscrowID,
	}
	step.Payload.FailureReason = reason
	if _, err := s.journey.Note(ctx, tx, current, step); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record journey")
	}
	return s.emitTransaction(ctx, tx, nil, txn, enums.EventTransactionFailed, reason)
}

// loadForOutcome resolves the transaction behind a payment intent. ok is
// false when there is nothing to apply: the intent is unknown, or the
// transaction cannot move to target.
func (s *service) loadForOutcome(ctx context.Context, tx *gorm.DB, intentID string, target enums.TransactionStatus) (*models.Transaction, bool, error) {
	if intentID == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id required")
	}
	txn, err := s.repo.WithTx(tx).FindByPaymentIntent(ctx, intentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logg.Warn(s.logg.WithField(ctx, "payment_intent_id", intentID), "transactions.unknown_payment_intent")
			return nil, false, nil
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}
	if !txn.Status.CanTransitionTo(target) {
		return nil, false, nil
	}
	return txn, true, nil
}

func (s *service) moveTransaction(ctx context.Context, tx *gorm.DB, txn *models.Transaction, to enums.TransactionStatus, details types.PaymentDetails) (bool, error) {
	metadata := txn.Metadata.WithPayment(details)
	rows, err := s.repo.WithTx(tx).TransitionStatus(ctx, txn.ID, txn.Status, to, map[string]any{
		"metadata": metadata,
	})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update transaction")
	}
	if rows == 0 {
		return false, nil
	}
	txn.Status = to
	txn.Metadata = metadata
	return true, nil
}

func (s *service) completePaymentStage(ctx context.Context, escrows escrow.Repository, escrowID uuid.UUID, at time.Time) error {
	stage, err := escrows.FindStage(ctx, escrowID, enums.TrackingStagePayment)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment stage")
	}
	if !stage.Status.CanTransitionTo(enums.TrackingStatusCompleted) {
		return nil
	}
	updates := map[string]any{
		"status":       enums.TrackingStatusCompleted,
		"completed_at": at,
		"updated_at":   at,
	}
	if stage.StartedAt == nil {
		updates["started_at"] = at
	}
	if _, err := escrows.UpdateStage(ctx, stage.ID, stage.Status, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete payment stage")
	}
	return nil
}

func (s *service) occurredAt(outcome PaymentOutcome) time.Time {
	if outcome.OccurredAt.IsZero() {
		return s.now()
	}
	return outcome.OccurredAt.UTC()
}
