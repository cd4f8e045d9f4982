package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/carbridge-backend/internal/transactions"
	"github.com/angelmondragon/carbridge-backend/pkg/db/models"
	"github.com/angelmondragon/carbridge-backend/pkg/logger"
	"github.com/angelmondragon/carbridge-backend/pkg/stripe"
)

const (
	defaultFundingTTL   = 48 * time.Hour
	escrowExpiryBatch   = 100
	escrowExpiredCode   = "escrow_funding_expired"
	escrowExpiredReason = "escrow was not funded in time"
)

type staleEscrowStore interface {
	ListStaleCreated(ctx context.Context, createdBefore time.Time, limit int) ([]models.Escrow, error)
	DeferStale(ctx context.Context, id uuid.UUID, at time.Time) error
}

type intentCanceler interface {
	CancelPaymentIntent(ctx context.Context, id string) error
}

type canceledPaymentApplier interface {
	ApplyPaymentCanceled(ctx context.Context, outcome transactions.PaymentOutcome) error
}

// EscrowExpiryJobParams configure the unfunded escrow sweep.
type EscrowExpiryJobParams struct {
	Logger       *logger.Logger
	Escrows      staleEscrowStore
	Intents      intentCanceler
	Transactions canceledPaymentApplier
	FundingTTL   time.Duration
}

// NewEscrowExpiryJob cancels the payment intents of escrows that stayed
// unfunded past the funding TTL and records the cancellation locally.
func NewEscrowExpiryJob(params EscrowExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Escrows == nil {
		return nil, fmt.Errorf("escrow repository required")
	}
	if params.Intents == nil {
		return nil, fmt.Errorf("payment intent canceler required")
	}
	if params.Transactions == nil {
		return nil, fmt.Errorf("transactions service required")
	}
	ttl := params.FundingTTL
	if ttl <= 0 {
		ttl = defaultFundingTTL
	}
	return &escrowExpiryJob{
		logg:    params.Logger,
		escrows: params.Escrows,
		intents: params.Intents,
		txns:    params.Transactions,
		ttl:     ttl,
		now:     time.Now,
	}, nil
}

type escrowExpiryJob struct {
	logg    *logger.Logger
	escrows staleEscrowStore
	intents intentCanceler
	txns    canceledPaymentApplier
	ttl     time.Duration
	now     func() time.Time
}

func (j *escrowExpiryJob) Name() string { return "escrow-expiry" }

func (j *escrowExpiryJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	stale, err := j.escrows.ListStaleCreated(ctx, now.Add(-j.ttl), escrowExpiryBatch)
	if err != nil {
		return fmt.Errorf("list stale escrows: %w", err)
	}

	var errs error
	expired := 0
	for _, escrow := range stale {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"escrow_id":         escrow.ID.String(),
			"payment_intent_id": escrow.PaymentIntentID,
		})
		if err := j.intents.CancelPaymentIntent(ctx, escrow.PaymentIntentID); err != nil {
			if errors.Is(err, stripe.ErrIntentNotCancelable) {
				// the buyer paid meanwhile; the webhook settles it
				j.logg.Info(j.logg.WithField(logCtx, "error", err.Error()), "escrow.expiry_intent_settled")
			} else {
				j.logg.Warn(j.logg.WithField(logCtx, "error", err.Error()), "escrow.expiry_cancel_failed")
				errs = multierr.Append(errs, fmt.Errorf("cancel intent for escrow %s: %w", escrow.ID, err))
			}
			if err := j.escrows.DeferStale(ctx, escrow.ID, now); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("defer escrow %s: %w", escrow.ID, err))
			}
			continue
		}
		err := j.txns.ApplyPaymentCanceled(ctx, transactions.PaymentOutcome{
			PaymentIntentID: escrow.PaymentIntentID,
			FailureCode:     escrowExpiredCode,
			FailureMessage:  escrowExpiredReason,
			OccurredAt:      now,
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire escrow %s: %w", escrow.ID, err))
			continue
		}
		expired++
		j.logg.Info(logCtx, "escrow.expired")
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{"stale": len(stale), "expired": expired})
	j.logg.Info(logCtx, "escrow expiry sweep complete")
	return errs
}
