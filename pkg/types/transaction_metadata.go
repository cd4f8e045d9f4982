package types

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
)

// CheckoutDetails is recorded when the buyer initiates checkout.
type CheckoutDetails struct {
	CheckoutSource string `json:"checkout_source,omitempty"`
	ClientIP       string `json:"client_ip,omitempty"`
}

// PaymentDetails is recorded from processor payment outcomes.
type PaymentDetails struct {
	ChargeID       string     `json:"charge_id,omitempty"`
	PaidAt         *time.Time `json:"paid_at,omitempty"`
	FailedAt       *time.Time `json:"failed_at,omitempty"`
	FailureCode    string     `json:"failure_code,omitempty"`
	FailureMessage string     `json:"failure_message,omitempty"`
}

// RefundDetails is recorded once a refund is confirmed by the processor.
type RefundDetails struct {
	RefundID          string    `json:"refund_id"`
	RefundAmount      float64   `json:"refund_amount"`
	RefundMinorAmount int64     `json:"refund_minor_amount"`
	RefundReason      string    `json:"refund_reason"`
	RefundStatus      string    `json:"refund_status"`
	RefundedAt        time.Time `json:"refunded_at"`
	RefundedBy        uuid.UUID `json:"refunded_by"`
}

// TransactionMetadata is the transactions.metadata JSONB column; each
// lifecycle shape is present only once that stage happened.
type TransactionMetadata struct {
	*CheckoutDetails
	*PaymentDetails
	*RefundDetails
}

// WithPayment returns a copy carrying p.
func (m TransactionMetadata) WithPayment(p PaymentDetails) TransactionMetadata {
	m.PaymentDetails = &p
	return m
}

// WithRefund returns a copy carrying r.
func (m TransactionMetadata) WithRefund(r RefundDetails) TransactionMetadata {
	m.RefundDetails = &r
	return m
}

// Value marshals the metadata for the driver.
func (m TransactionMetadata) Value() (driver.Value, error) {
	return marshalJSONB(m)
}

// Scan decodes the JSONB column.
func (m *TransactionMetadata) Scan(value interface{}) error {
	var decoded TransactionMetadata
	if err := scanJSONB(value, &decoded, "transaction metadata"); err != nil {
		return err
	}
	*m = decoded
	return nil
}
