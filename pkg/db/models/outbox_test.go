package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/carbridge-backend/pkg/enums"
)

func TestDeadLetterRoundTrip(t *testing.T) {
	published := time.Now().UTC()
	event := OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventEscrowReleased,
		AggregateType: enums.AggregateEscrow,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"escrow_id":"e1"}`),
		AttemptCount:  5,
		PublishedAt:   &published,
	}
	failedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entry := event.DeadLetter(enums.OutboxDLQReasonMaxAttempts, "topic missing", failedAt)
	assert.Equal(t, event.ID, entry.EventID)
	assert.Equal(t, uuid.Nil, entry.ID)
	assert.Equal(t, 5, entry.AttemptCount)
	assert.Equal(t, failedAt, entry.FailedAt)
	require.NotNil(t, entry.ErrorMessage)
	assert.Equal(t, "topic missing", *entry.ErrorMessage)

	restored := entry.Event()
	assert.Equal(t, event.ID, restored.ID)
	assert.Equal(t, event.AggregateID, restored.AggregateID)
	assert.JSONEq(t, string(event.Payload), string(restored.Payload))
	assert.False(t, restored.Published())
	assert.Zero(t, restored.AttemptCount)
	assert.True(t, event.Published())
}

func TestAssignIDKeepsExistingKey(t *testing.T) {
	id := uuid.New()
	m := &OutboxDLQ{ID: id}
	require.NoError(t, m.BeforeCreate(nil))
	assert.Equal(t, id, m.ID)

	fresh := &NotificationDelivery{}
	require.NoError(t, fresh.BeforeCreate(nil))
	assert.NotEqual(t, uuid.Nil, fresh.ID)
}
