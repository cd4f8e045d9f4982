package stripe

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stripe/stripe-go/v84"
)

func TestCancelOutcome(t *testing.T) {
	unexpected := func(status stripe.PaymentIntentStatus) error {
		return &stripe.Error{
			Code:          stripe.ErrorCodePaymentIntentUnexpectedState,
			Msg:           "This PaymentIntent's status is " + string(status),
			PaymentIntent: &stripe.PaymentIntent{ID: "pi_1", Status: status},
		}
	}
	network := errors.New("connection reset")

	if err := cancelOutcome(nil); err != nil {
		t.Fatalf("nil error: %v", err)
	}
	if err := cancelOutcome(unexpected(stripe.PaymentIntentStatusCanceled)); err != nil {
		t.Fatalf("already canceled intent should count as canceled: %v", err)
	}
	if err := cancelOutcome(fmt.Errorf("cancel: %w", unexpected(stripe.PaymentIntentStatusCanceled))); err != nil {
		t.Fatalf("wrapped already canceled intent: %v", err)
	}
	if err := cancelOutcome(unexpected(stripe.PaymentIntentStatusSucceeded)); !errors.Is(err, ErrIntentNotCancelable) {
		t.Fatalf("succeeded intent: expected ErrIntentNotCancelable, got %v", err)
	}
	if err := cancelOutcome(&stripe.Error{Code: stripe.ErrorCodePaymentIntentUnexpectedState}); !errors.Is(err, ErrIntentNotCancelable) {
		t.Fatalf("unexpected state without intent: got %v", err)
	}
	if err := cancelOutcome(network); err != network {
		t.Fatalf("other errors pass through, got %v", err)
	}
	if err := cancelOutcome(&stripe.Error{Code: stripe.ErrorCodeResourceMissing}); errors.Is(err, ErrIntentNotCancelable) {
		t.Fatal("missing intent is not a settled intent")
	}
}
