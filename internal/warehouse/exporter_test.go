package warehouse

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/carbridge-backend/internal/eventing"
	"github.com/angelmondragon/carbridge-backend/pkg/enums"
	"github.com/angelmondragon/carbridge-backend/pkg/logger"
	"github.com/angelmondragon/carbridge-backend/pkg/outbox"
	"github.com/angelmondragon/carbridge-backend/pkg/outbox/payloads"
)

type stubRowWriter struct {
	rows    []JourneyEventRow
	err     error
	flushes int
}

func (s *stubRowWriter) Insert(_ context.Context, row JourneyEventRow) error {
	if s.err != nil {
		return s.err
	}
	s.rows = append(s.rows, row)
	return nil
}

func (s *stubRowWriter) Flush(context.Context) error {
	s.flushes++
	return nil
}

type idleSubscription struct{}

func (idleSubscription) Receive(ctx context.Context, _ func(context.Context, *pubsub.Message)) error {
	<-ctx.Done()
	return nil
}

type noDedupe struct{}

func (noDedupe) CheckAndMarkProcessed(context.Context, string, uuid.UUID) (bool, error) {
	return false, nil
}
func (noDedupe) Delete(context.Context, string, uuid.UUID) error { return nil }

var envelopeTime = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func newTestExporter(t *testing.T, w *stubRowWriter) *Exporter {
	t.Helper()
	exp, err := NewExporter(idleSubscription{}, w, noDedupe{}, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	require.NoError(t, err)
	return exp
}

func journeyEvent(t *testing.T, transition any) eventing.Event {
	t.Helper()
	data, err := json.Marshal(transition)
	require.NoError(t, err)
	return eventing.Event{
		ID:       uuid.New(),
		Type:     enums.EventJourneyTransitioned,
		Envelope: outbox.PayloadEnvelope{Version: 1, OccurredAt: envelopeTime, Data: data},
	}
}

func TestExportWritesJourneyRow(t *testing.T) {
	w := &stubRowWriter{}
	exp := newTestExporter(t, w)

	from := enums.JourneyStatePayment
	escrowID := uuid.New()
	transition := payloads.JourneyTransitionedEvent{
		JourneyEventID: uuid.New(),
		JourneyID:      uuid.New(),
		EventType:      enums.JourneyEventShipmentStarted,
		FromState:      &from,
		ToState:        enums.JourneyStateShipping,
		ListingID:      uuid.New(),
		BuyerID:        uuid.New(),
		DealerID:       uuid.New(),
		EscrowID:       &escrowID,
		OccurredAt:     time.Date(2026, 5, 2, 10, 0, 0, 0, time.FixedZone("EST", -5*3600)),
	}
	event := journeyEvent(t, transition)

	require.NoError(t, exp.export(context.Background(), event))
	require.Len(t, w.rows, 1)
	row := w.rows[0]
	assert.Equal(t, event.ID.String(), row.EventID)
	assert.Equal(t, transition.JourneyEventID.String(), row.JourneyEventID)
	require.NotNil(t, row.FromState)
	assert.Equal(t, "PAYMENT", *row.FromState)
	assert.Equal(t, "SHIPPING", row.ToState)
	require.NotNil(t, row.EscrowID)
	assert.Equal(t, escrowID.String(), *row.EscrowID)
	assert.Nil(t, row.TransactionID)
	assert.Nil(t, row.ActorID)
	assert.Nil(t, row.Note)
	assert.Equal(t, time.UTC, row.OccurredAt.Location())
	assert.True(t, row.OccurredAt.Equal(transition.OccurredAt))
	assert.True(t, row.Payload.Valid)
}

func TestExportFallsBackToEnvelopeTime(t *testing.T) {
	w := &stubRowWriter{}
	exp := newTestExporter(t, w)

	require.NoError(t, exp.export(context.Background(), journeyEvent(t, payloads.JourneyTransitionedEvent{ToState: enums.JourneyStateLead})))
	require.Len(t, w.rows, 1)
	assert.True(t, w.rows[0].OccurredAt.Equal(envelopeTime))
}

func TestExportDropsUndecodablePayload(t *testing.T) {
	w := &stubRowWriter{}
	exp := newTestExporter(t, w)

	err := exp.export(context.Background(), journeyEvent(t, []string{"not", "a", "transition"}))
	assert.ErrorIs(t, err, eventing.ErrDrop)
	assert.Empty(t, w.rows)
}

func TestExportRetriesInsertFailure(t *testing.T) {
	cause := errors.New("bigquery unavailable")
	exp := newTestExporter(t, &stubRowWriter{err: cause})

	err := exp.export(context.Background(), journeyEvent(t, payloads.JourneyTransitionedEvent{}))
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, eventing.ErrDrop)
}

func TestRunFlushesOnShutdown(t *testing.T) {
	w := &stubRowWriter{}
	exp := newTestExporter(t, w)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, exp.Run(ctx))
	assert.Equal(t, 1, w.flushes)
}
