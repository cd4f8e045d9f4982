package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/carbridge-backend/internal/audit"
	"github.com/angelmondragon/carbridge-backend/internal/escrow"
	"github.com/angelmondragon/carbridge-backend/internal/journey"
	"github.com/angelmondragon/carbridge-backend/pkg/auth"
	"github.com/angelmondragon/carbridge-backend/pkg/db"
	"github.com/angelmondragon/carbridge-backend/pkg/db/dbtest"
	"github.com/angelmondragon/carbridge-backend/pkg/db/models"
	"github.com/angelmondragon/carbridge-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/carbridge-backend/pkg/errors"
	"github.com/angelmondragon/carbridge-backend/pkg/logger"
	"github.com/angelmondragon/carbridge-backend/pkg/outbox"
)

type memoryBroker struct {
	mu         sync.Mutex
	published  map[string][]string
	publishErr error
}

func newMemoryBroker() *memoryBroker {
	return &memoryBroker{published: map[string][]string{}}
}

func (b *memoryBroker) TrackingChannel(escrowID string) string {
	return "cb:tracking:" + escrowID
}

func (b *memoryBroker) Publish(_ context.Context, channel string, payload any) error {
	if b.publishErr != nil {
		return b.publishErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[channel] = append(b.published[channel], string(payload.([]byte)))
	return nil
}

func (b *memoryBroker) Subscribe(_ context.Context, channel string) (<-chan string, func() error, error) {
	out := make(chan string, 1)
	out <- "subscribed:" + channel
	return out, func() error { return nil }, nil
}

type fixture struct {
	client *db.Client
	svc    Service
	broker *memoryBroker
	escrow *models.Escrow
	buyer  auth.Actor
	admin  auth.Actor
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client := dbtest.Open(t)
	publisher := outbox.NewService(outbox.NewRepository(client.DB()), nil)
	recorder, err := journey.NewRecorder(journey.NewRepository(client.DB()), publisher, nil)
	require.NoError(t, err)
	broker := newMemoryBroker()
	escrows := escrow.NewRepository(client.DB())
	svc, err := NewService(ServiceParams{
		Escrows: escrows,
		Tx:      client,
		Outbox:  publisher,
		Audit:   audit.NewWriter(),
		Journey: recorder,
		Broker:  broker,
		Logger:  logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	require.NoError(t, err)

	dealer, _ := dbtest.SeedDealer(t, client.DB())
	buyer := dbtest.SeedUser(t, client.DB(), enums.RoleBuyer, nil)
	listing := dbtest.SeedListing(t, client.DB(), dealer.ID, enums.ListingStatusSold, "20000")
	record := &models.Escrow{
		ListingID:       listing.ID,
		DealerID:        dealer.ID,
		BuyerID:         buyer.ID,
		Amount:          decimal.RequireFromString("20000"),
		Currency:        enums.CurrencyUSD,
		Status:          enums.EscrowStatusFunded,
		PaymentIntentID: "pi_tracking",
	}
	ctx := context.Background()
	require.NoError(t, escrows.Create(ctx, record))
	stages := escrow.NewStages(record.ID)
	// Insert in reverse so reads cannot rely on insertion order.
	for i := len(stages) - 1; i >= 0; i-- {
		require.NoError(t, escrows.CreateStages(ctx, stages[i:i+1]))
	}

	key := journey.Key{ListingID: listing.ID, BuyerID: buyer.ID, DealerID: dealer.ID}
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := recorder.Advance(ctx, tx, key, journey.Step{To: enums.JourneyStatePayment, EventType: enums.JourneyEventPaymentSucceeded})
		return err
	}))

	return fixture{
		client: client,
		svc:    svc,
		broker: broker,
		escrow: record,
		buyer:  auth.Actor{UserID: buyer.ID, Role: enums.RoleBuyer},
		admin:  auth.Actor{UserID: uuid.New(), Role: enums.RoleAdmin},
	}
}

func (f fixture) update(t *testing.T, stage, status string) (*StageDTO, error) {
	t.Helper()
	return f.svc.UpdateStage(context.Background(), f.admin, UpdateInput{EscrowID: f.escrow.ID, StageType: stage, Status: status})
}

func (f fixture) journeyState(t *testing.T) enums.DealJourneyState {
	t.Helper()
	state, err := journey.NewRepository(f.client.DB()).FindByListingBuyer(context.Background(), f.escrow.ListingID, f.escrow.BuyerID)
	require.NoError(t, err)
	return state.State
}

func TestTimelineRendersEnumOrder(t *testing.T) {
	f := newFixture(t)

	timeline, err := f.svc.Timeline(context.Background(), f.buyer, f.escrow.ID)
	require.NoError(t, err)
	assert.Equal(t, f.escrow.ID, timeline.EscrowID)
	require.Len(t, timeline.Stages, len(enums.TrackingStageOrder))
	for i, stage := range timeline.Stages {
		assert.Equal(t, enums.TrackingStageOrder[i], stage.StageType)
		assert.Equal(t, enums.TrackingStatusPending, stage.Status)
	}
}

func TestTimelineHiddenFromStrangers(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Timeline(context.Background(), auth.Actor{UserID: uuid.New(), Role: enums.RoleBuyer}, f.escrow.ID)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())

	_, err = f.svc.Timeline(context.Background(), f.admin, uuid.New())
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestUpdateStageRejectsOutOfOrderCompletion(t *testing.T) {
	f := newFixture(t)

	_, err := f.update(t, "shipping", "completed")
	require.Error(t, err)
	typed := pkgerrors.As(err)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
	assert.Contains(t, typed.Message(), "payment")
	assert.Empty(t, f.broker.published)
}

func TestUpdateStageRejectsDisallowedTransition(t *testing.T) {
	f := newFixture(t)

	_, err := f.update(t, "payment", "failed")
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())

	_, err = f.update(t, "payment", "shipped")
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	_, err = f.svc.UpdateStage(context.Background(), f.buyer, UpdateInput{EscrowID: f.escrow.ID, StageType: "payment", Status: "completed"})
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.As(err).Code())
}

func TestUpdateStageDrivesJourneyAndPublishes(t *testing.T) {
	f := newFixture(t)
	location := "Port of Hamburg"

	_, err := f.update(t, "payment", "completed")
	require.NoError(t, err)
	_, err = f.update(t, "documentation", "completed")
	require.NoError(t, err)

	dto, err := f.svc.UpdateStage(context.Background(), f.admin, UpdateInput{
		EscrowID:  f.escrow.ID,
		StageType: "shipping",
		Status:    "in_progress",
		Location:  &location,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.TrackingStatusInProgress, dto.Status)
	require.NotNil(t, dto.StartedAt)
	require.NotNil(t, dto.Location)
	assert.Equal(t, location, *dto.Location)
	assert.Equal(t, enums.JourneyStateShipping, f.journeyState(t))

	_, err = f.update(t, "shipping", "completed")
	require.NoError(t, err)
	_, err = f.update(t, "customs", "completed")
	require.NoError(t, err)
	_, err = f.update(t, "delivery", "completed")
	require.NoError(t, err)
	assert.Equal(t, enums.JourneyStateDelivered, f.journeyState(t))

	channel := f.broker.TrackingChannel(f.escrow.ID.String())
	require.Len(t, f.broker.published[channel], 6)
	var change StageChange
	require.NoError(t, json.Unmarshal([]byte(f.broker.published[channel][2]), &change))
	assert.Equal(t, "stage_updated", change.Type)
	assert.Equal(t, enums.TrackingStageShipping, change.Stage.StageType)

	var audits, events int64
	require.NoError(t, f.client.DB().Model(&models.AuditLogEntry{}).Where("action = ?", enums.AuditTrackingStageUpdated).Count(&audits).Error)
	require.NoError(t, f.client.DB().Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventTrackingStageUpdated).Count(&events).Error)
	assert.Equal(t, int64(6), audits)
	assert.Equal(t, int64(6), events)
}

func TestPublishFailureDoesNotFailUpdate(t *testing.T) {
	f := newFixture(t)
	f.broker.publishErr = errors.New("redis down")

	dto, err := f.update(t, "payment", "completed")
	require.NoError(t, err)
	assert.Equal(t, enums.TrackingStatusCompleted, dto.Status)
}

func TestSubscribeChecksVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	messages, closer, err := f.svc.Subscribe(ctx, f.buyer, f.escrow.ID)
	require.NoError(t, err)
	defer closer()
	assert.Equal(t, "subscribed:cb:tracking:"+f.escrow.ID.String(), <-messages)

	_, _, err = f.svc.Subscribe(ctx, auth.Actor{UserID: uuid.New(), Role: enums.RoleBuyer}, f.escrow.ID)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}
