package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/refund"
)

// PaymentIntentInput describes a card payment held for escrow.
type PaymentIntentInput struct {
	AmountMinor    int64
	Currency       string
	Description    string
	ReceiptEmail   string
	Metadata       map[string]string
	IdempotencyKey string
}

// PaymentIntentResult is the subset of the processor intent the API returns to buyers.
type PaymentIntentResult struct {
	ID           string
	ClientSecret string
	Status       string
}

// RefundInput describes a full or partial refund against a payment intent.
type RefundInput struct {
	PaymentIntentID string
	AmountMinor     int64
	Reason          string
	Metadata        map[string]string
	IdempotencyKey  string
}

// RefundResult is the processor view of a created refund.
type RefundResult struct {
	ID          string
	AmountMinor int64
	Currency    string
	Status      string
}

// Payments performs payment intent and refund calls against Stripe.
type Payments struct {
	client *Client
}

// NewPayments wraps an initialized client.
func NewPayments(client *Client) (*Payments, error) {
	if client == nil {
		return nil, errors.New("stripe client is required")
	}
	return &Payments{client: client}, nil
}

// CreatePaymentIntent creates an automatic-capture intent with card methods enabled.
func (p *Payments) CreatePaymentIntent(ctx context.Context, in PaymentIntentInput) (*PaymentIntentResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(in.AmountMinor),
		Currency: stripe.String(strings.ToLower(in.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if in.Description != "" {
		params.Description = stripe.String(in.Description)
	}
	if in.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(in.ReceiptEmail)
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}
	params.Context = ctx

	intent, err := paymentintent.New(params)
	if err != nil {
		return nil, err
	}
	return &PaymentIntentResult{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       string(intent.Status),
	}, nil
}

// CancelPaymentIntent cancels an intent that has not been captured.
func (p *Payments) CancelPaymentIntent(ctx context.Context, id string) error {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonAbandoned)),
	}
	params.Context = ctx
	_, err := paymentintent.Cancel(id, params)
	return cancelOutcome(err)
}

// ErrIntentNotCancelable is returned when the intent already reached a state
// other than canceled, such as succeeded.
var ErrIntentNotCancelable = errors.New("payment intent can no longer be canceled")

// cancelOutcome treats an intent that is already canceled as canceled.
func cancelOutcome(err error) error {
	var stripeErr *stripe.Error
	if err == nil || !errors.As(err, &stripeErr) || stripeErr.Code != stripe.ErrorCodePaymentIntentUnexpectedState {
		return err
	}
	if stripeErr.PaymentIntent != nil && stripeErr.PaymentIntent.Status == stripe.PaymentIntentStatusCanceled {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrIntentNotCancelable, stripeErr.Msg)
}

// CreateRefund refunds AmountMinor of the intent. The free-text reason travels
// in metadata because Stripe only accepts its own reason enum.
func (p *Payments) CreateRefund(ctx context.Context, in RefundInput) (*RefundResult, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(in.PaymentIntentID),
		Amount:        stripe.Int64(in.AmountMinor),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	if in.Reason != "" {
		params.AddMetadata("reason", in.Reason)
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}
	params.Context = ctx

	created, err := refund.New(params)
	if err != nil {
		return nil, err
	}
	return &RefundResult{
		ID:          created.ID,
		AmountMinor: created.Amount,
		Currency:    strings.ToUpper(string(created.Currency)),
		Status:      string(created.Status),
	}, nil
}
