package warehouse

import (
	"encoding/json"
	"fmt"
	"time"

	cbigquery "cloud.google.com/go/bigquery"

	"github.com/angelmondragon/carbridge-backend/pkg/outbox/payloads"
)

// JourneyEventRow mirrors the deal_journey_events BigQuery schema.
type JourneyEventRow struct {
	EventID        string             `bigquery:"event_id"`
	JourneyEventID string             `bigquery:"journey_event_id"`
	JourneyID      string             `bigquery:"journey_id"`
	EventType      string             `bigquery:"event_type"`
	FromState      *string            `bigquery:"from_state"`
	ToState        string             `bigquery:"to_state"`
	ListingID      string             `bigquery:"listing_id"`
	BuyerID        string             `bigquery:"buyer_id"`
	DealerID       string             `bigquery:"dealer_id"`
	ActorID        *string            `bigquery:"actor_id"`
	TransactionID  *string            `bigquery:"transaction_id"`
	EscrowID       *string            `bigquery:"escrow_id"`
	Note           *string            `bigquery:"note"`
	OccurredAt     time.Time          `bigquery:"occurred_at"`
	Payload        cbigquery.NullJSON `bigquery:"payload"`
}

func buildJourneyRow(eventID string, fallback time.Time, event payloads.JourneyTransitionedEvent) (JourneyEventRow, error) {
	payload, err := EncodeJSON(event)
	if err != nil {
		return JourneyEventRow{}, fmt.Errorf("encode payload json: %w", err)
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = fallback
	}

	row := JourneyEventRow{
		EventID:        eventID,
		JourneyEventID: event.JourneyEventID.String(),
		JourneyID:      event.JourneyID.String(),
		EventType:      string(event.EventType),
		ToState:        string(event.ToState),
		ListingID:      event.ListingID.String(),
		BuyerID:        event.BuyerID.String(),
		DealerID:       event.DealerID.String(),
		OccurredAt:     occurredAt.UTC(),
		Payload:        payload,
	}
	if event.FromState != nil {
		from := string(*event.FromState)
		row.FromState = &from
	}
	if event.ActorID != nil {
		row.ActorID = stringPtr(event.ActorID.String())
	}
	if event.TransactionID != nil {
		row.TransactionID = stringPtr(event.TransactionID.String())
	}
	if event.EscrowID != nil {
		row.EscrowID = stringPtr(event.EscrowID.String())
	}
	row.Note = stringPtr(event.Note)
	return row, nil
}

// EncodeJSON serializes payload for a BigQuery JSON column.
func EncodeJSON(payload any) (cbigquery.NullJSON, error) {
	switch value := payload.(type) {
	case nil:
		return cbigquery.NullJSON{}, nil
	case json.RawMessage:
		if len(value) == 0 {
			return cbigquery.NullJSON{}, nil
		}
		return cbigquery.NullJSON{Valid: true, JSONVal: string(value)}, nil
	}

	marshaled, err := json.Marshal(payload)
	if err != nil {
		return cbigquery.NullJSON{}, fmt.Errorf("marshal json: %w", err)
	}
	return cbigquery.NullJSON{Valid: true, JSONVal: string(marshaled)}, nil
}

func stringPtr(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
