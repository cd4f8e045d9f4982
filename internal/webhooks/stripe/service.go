package stripewebhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/carbridge-backend/internal/transactions"
	pkgerrors "github.com/angelmondragon/carbridge-backend/pkg/errors"
	"github.com/angelmondragon/carbridge-backend/pkg/logger"
)

// paymentOutcomes is the part of the transactions service driven by Stripe.
type paymentOutcomes interface {
	ApplyPaymentSucceeded(ctx context.Context, outcome transactions.PaymentOutcome) error
	ApplyPaymentFailed(ctx context.Context, outcome transactions.PaymentOutcome) error
	ApplyPaymentCanceled(ctx context.Context, outcome transactions.PaymentOutcome) error
	ReconcileRefund(ctx context.Context, outcome transactions.RefundOutcome) error
}

type ServiceParams struct {
	Payments paymentOutcomes
	Logger   *logger.Logger
}

// Service maps verified Stripe events onto transaction state changes.
type Service struct {
	payments paymentOutcomes
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{payments: params.Payments, logg: params.Logger}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	occurredAt := time.Unix(event.Created, 0).UTC()

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded,
		stripe.EventTypePaymentIntentPaymentFailed,
		stripe.EventTypePaymentIntentCanceled:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
		}
		outcome := paymentOutcome(&intent, occurredAt)
		switch event.Type {
		case stripe.EventTypePaymentIntentSucceeded:
			return s.payments.ApplyPaymentSucceeded(ctx, outcome)
		case stripe.EventTypePaymentIntentPaymentFailed:
			return s.payments.ApplyPaymentFailed(ctx, outcome)
		default:
			return s.payments.ApplyPaymentCanceled(ctx, outcome)
		}

	case stripe.EventTypeChargeRefunded:
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge event")
		}
		outcome, ok := chargeRefundOutcome(&charge)
		if !ok {
			return nil
		}
		return s.payments.ReconcileRefund(ctx, outcome)

	case stripe.EventTypeRefundUpdated, stripe.EventTypeRefundCreated:
		var refund stripe.Refund
		if err := json.Unmarshal(event.Data.Raw, &refund); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode refund event")
		}
		if refund.Status != stripe.RefundStatusSucceeded || refund.PaymentIntent == nil {
			return nil
		}
		return s.payments.ReconcileRefund(ctx, transactions.RefundOutcome{
			PaymentIntentID: refund.PaymentIntent.ID,
			RefundID:        refund.ID,
			AmountMinor:     refund.Amount,
			Reason:          refund.Metadata["reason"],
			Status:          string(refund.Status),
		})

	default:
		s.logg.Info(s.logg.WithField(ctx, "event_type", string(event.Type)), "stripe event ignored")
		return nil
	}
}

func paymentOutcome(intent *stripe.PaymentIntent, occurredAt time.Time) transactions.PaymentOutcome {
	outcome := transactions.PaymentOutcome{
		PaymentIntentID: intent.ID,
		OccurredAt:      occurredAt,
	}
	if intent.LatestCharge != nil {
		outcome.ChargeID = intent.LatestCharge.ID
	}
	if lastErr := intent.LastPaymentError; lastErr != nil {
		outcome.FailureCode = string(lastErr.Code)
		if lastErr.DeclineCode != "" {
			outcome.FailureCode = string(lastErr.DeclineCode)
		}
		outcome.FailureMessage = lastErr.Msg
	}
	if intent.Status == stripe.PaymentIntentStatusCanceled && intent.CancellationReason != "" {
		outcome.FailureMessage = "payment canceled: " + string(intent.CancellationReason)
	}
	return outcome
}

// chargeRefundOutcome reports the newest refund on a fully or partially
// refunded charge. Charges without an intent are not ours.
func chargeRefundOutcome(charge *stripe.Charge) (transactions.RefundOutcome, bool) {
	if charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" || charge.AmountRefunded <= 0 {
		return transactions.RefundOutcome{}, false
	}
	outcome := transactions.RefundOutcome{
		PaymentIntentID: charge.PaymentIntent.ID,
		AmountMinor:     charge.AmountRefunded,
		Status:          string(stripe.RefundStatusSucceeded),
	}
	if charge.Refunds != nil && len(charge.Refunds.Data) > 0 {
		latest := charge.Refunds.Data[0]
		for _, r := range charge.Refunds.Data[1:] {
			if r.Created > latest.Created {
				latest = r
			}
		}
		outcome.RefundID = latest.ID
		outcome.Reason = latest.Metadata["reason"]
		outcome.Status = string(latest.Status)
	}
	return outcome, true
}
