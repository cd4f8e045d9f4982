package types

import (
	"database/sql/driver"

	"github.com/google/uuid"
)

// JourneyEventPayload is the deal_journey_events.payload JSONB column.
type JourneyEventPayload struct {
	Note          string     `json:"note,omitempty"`
	TransactionID *uuid.UUID `json:"transaction_id,omitempty"`
	EscrowID      *uuid.UUID `json:"escrow_id,omitempty"`
	TaskID        *uuid.UUID `json:"task_id,omitempty"`
	StageType     string     `json:"stage_type,omitempty"`
	Amount        *float64   `json:"amount,omitempty"`
	Currency      string     `json:"currency,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
}

// Value marshals the payload for the driver.
func (p JourneyEventPayload) Value() (driver.Value, error) {
	return marshalJSONB(p)
}

// Scan decodes the JSONB column.
func (p *JourneyEventPayload) Scan(value interface{}) error {
	var decoded JourneyEventPayload
	if err := scanJSONB(value, &decoded, "journey event payload"); err != nil {
		return err
	}
	*p = decoded
	return nil
}
