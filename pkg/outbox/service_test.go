package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/carbridge-backend/pkg/auth"
	"github.com/angelmondragon/carbridge-backend/pkg/db/dbtest"
	"github.com/angelmondragon/carbridge-backend/pkg/db/models"
	"github.com/angelmondragon/carbridge-backend/pkg/enums"
)

func TestEmitWritesEnvelopeInsideTransaction(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	svc := NewService(repo, nil)
	aggregateID := uuid.New()
	actorID := uuid.New()

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventListingApproved,
			AggregateType: enums.AggregateListing,
			AggregateID:   aggregateID,
			Actor:         ActorOf(auth.Actor{UserID: actorID, Role: enums.RoleAdmin}),
			Data:          map[string]string{"listing_id": aggregateID.String()},
		})
	})
	require.NoError(t, err)

	rows, err := repo.FetchUnpublished(10)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	envelope, err := DecodeEnvelope(rows[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, 1, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	assert.Equal(t, actorID, envelope.Actor.UserID)
	assert.JSONEq(t, `{"listing_id":"`+aggregateID.String()+`"}`, string(envelope.Data))
}

func TestEmitRolledBackWithTransaction(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	svc := NewService(repo, nil)

	boom := errors.New("audit failed")
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventListingRejected,
			AggregateType: enums.AggregateListing,
			AggregateID:   uuid.New(),
			Data:          map[string]string{},
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	rows, err := repo.FetchUnpublished(10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestEmitIfNotExistsSkipsDuplicates(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	svc := NewService(repo, nil)
	event := DomainEvent{
		EventType:     enums.EventTransactionSucceeded,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   uuid.New(),
		Data:          map[string]string{},
	}

	for range 2 {
		require.NoError(t, client.WithTx(context.Background(), func(tx *gorm.DB) error {
			return svc.EmitIfNotExists(context.Background(), tx, event)
		}))
	}

	rows, err := repo.FetchUnpublished(10)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestEmitRequiresTransaction(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	assert.ErrorIs(t, svc.Emit(context.Background(), nil, DomainEvent{}), errTxRequired)
	assert.ErrorIs(t, svc.EmitIfNotExists(context.Background(), nil, DomainEvent{}), errTxRequired)
}

func TestEmitRejectsUnencodableData(t *testing.T) {
	client := dbtest.Open(t)
	svc := NewService(NewRepository(client.DB()), nil)
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventEscrowCreated,
			AggregateType: enums.AggregateEscrow,
			AggregateID:   uuid.New(),
			Data:          make(chan int),
		})
	})
	assert.ErrorContains(t, err, "encode escrow_created data")
}

func TestActorOfAndDecodeEnvelope(t *testing.T) {
	assert.Nil(t, ActorOf(auth.Actor{}))
	dealerID := uuid.New()
	ref := ActorOf(auth.Actor{UserID: uuid.New(), Role: enums.RoleDealer, DealerID: &dealerID, IP: "10.0.0.1"})
	require.NotNil(t, ref)
	assert.Equal(t, &dealerID, ref.DealerID)

	env, err := DecodeEnvelope([]byte(`{"eventId":"e1","data":{}}`))
	require.NoError(t, err)
	assert.Equal(t, envelopeVersion, env.Version)

	_, err = DecodeEnvelope([]byte(`not json`))
	assert.Error(t, err)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	db := client.DB()

	old := models.OutboxEvent{
		EventType:     enums.EventEscrowCreated,
		AggregateType: enums.AggregateEscrow,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
	}
	fresh := old
	fresh.AggregateID = uuid.New()
	require.NoError(t, repo.Insert(db, old))
	require.NoError(t, repo.Insert(db, fresh))

	var rows []models.OutboxEvent
	require.NoError(t, client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		rows, err = repo.FetchUnpublishedForPublish(tx, 10, 3)
		return err
	}))
	require.Len(t, rows, 2)

	require.NoError(t, repo.MarkPublishedTx(db, rows[0].ID))
	require.NoError(t, repo.MarkFailedTx(db, rows[1].ID, errors.New("topic unavailable")))

	pending, err := repo.FetchUnpublishedForPublish(db, 10, 3)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].AttemptCount)
	require.NotNil(t, pending[0].LastError)
	assert.Equal(t, "topic unavailable", *pending[0].LastError)

	require.NoError(t, repo.MarkTerminalTx(db, rows[1].ID, errors.New("gave up"), 3))
	pending, err = repo.FetchUnpublishedForPublish(db, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, pending)

	deleted, err := repo.DeletePublishedBefore(context.Background(), db, time.Now().UTC().Add(time.Hour), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
}

func TestDLQRepositoryTruncatesMessage(t *testing.T) {
	client := dbtest.Open(t)
	dlq := NewDLQRepository(client.DB())
	eventID := uuid.New()
	long := strings.Repeat("x", maxDLQErrorLen+50)

	require.NoError(t, dlq.InsertTx(client.DB(), models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventEscrowCreated,
		AggregateType: enums.AggregateEscrow,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage:  &long,
	}))

	found, err := dlq.FindByEventID(context.Background(), eventID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Len(t, *found.ErrorMessage, maxDLQErrorLen)

	missing, err := dlq.FindByEventID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}
