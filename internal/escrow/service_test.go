package escrow

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/carbridge-backend/internal/audit"
	"github.com/angelmondragon/carbridge-backend/internal/journey"
	"github.com/angelmondragon/carbridge-backend/internal/listings"
	"github.com/angelmondragon/carbridge-backend/pkg/auth"
	"github.com/angelmondragon/carbridge-backend/pkg/db"
	"github.com/angelmondragon/carbridge-backend/pkg/db/dbtest"
	"github.com/angelmondragon/carbridge-backend/pkg/db/models"
	"github.com/angelmondragon/carbridge-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/carbridge-backend/pkg/errors"
	"github.com/angelmondragon/carbridge-backend/pkg/logger"
	"github.com/angelmondragon/carbridge-backend/pkg/outbox"
	"github.com/angelmondragon/carbridge-backend/pkg/stripe"
)

type stubIntents struct {
	created     []stripe.PaymentIntentInput
	canceled    []string
	cancelCtxOK []bool
	err         error
}

func (s *stubIntents) CreatePaymentIntent(_ context.Context, in stripe.PaymentIntentInput) (*stripe.PaymentIntentResult, error) {
	s.created = append(s.created, in)
	if s.err != nil {
		return nil, s.err
	}
	id := "pi_" + in.Metadata["escrow_id"][:8]
	return &stripe.PaymentIntentResult{ID: id, ClientSecret: id + "_secret", Status: "requires_payment_method"}, nil
}

func (s *stubIntents) CancelPaymentIntent(ctx context.Context, id string) error {
	s.canceled = append(s.canceled, id)
	s.cancelCtxOK = append(s.cancelCtxOK, ctx.Err() == nil)
	return nil
}

type stubLinker struct {
	err error
	// abort cancels the request context before failing.
	abort context.CancelFunc
}

func (l stubLinker) LinkEscrow(_ context.Context, tx *gorm.DB, record *models.Escrow, buyer auth.Actor) (*models.Transaction, error) {
	if l.abort != nil {
		l.abort()
		return nil, context.Canceled
	}
	if l.err != nil {
		return nil, l.err
	}
	escrowID := record.ID
	intent := record.PaymentIntentID
	txn := &models.Transaction{
		ListingID:       record.ListingID,
		DealerID:        record.DealerID,
		BuyerID:         record.BuyerID,
		EscrowID:        &escrowID,
		Amount:          record.Amount,
		Currency:        record.Currency,
		Status:          enums.TransactionStatusProcessing,
		PaymentIntentID: &intent,
		BuyerEmail:      buyer.Email,
		BuyerName:       buyer.Email,
	}
	return txn, tx.Create(txn).Error
}

type fixture struct {
	client  *db.Client
	svc     Service
	intents *stubIntents
	dealer  *models.Dealer
	dealerU *models.User
	buyer   auth.Actor
	admin   auth.Actor
}

func newFixture(t *testing.T, linker TransactionLinker) fixture {
	t.Helper()
	client := dbtest.Open(t)
	publisher := outbox.NewService(outbox.NewRepository(client.DB()), nil)
	recorder, err := journey.NewRecorder(journey.NewRepository(client.DB()), publisher, nil)
	require.NoError(t, err)
	if linker == nil {
		linker = stubLinker{}
	}
	intents := &stubIntents{}
	svc, err := NewService(ServiceParams{
		Repo:     NewRepository(client.DB()),
		Listings: listings.NewRepository(client.DB()),
		Tx:       client,
		Outbox:   publisher,
		Audit:    audit.NewWriter(),
		Journey:  recorder,
		Payments: intents,
		Linker:   linker,
		Logger:   logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	require.NoError(t, err)
	dealer, dealerUser := dbtest.SeedDealer(t, client.DB())
	buyer := dbtest.SeedUser(t, client.DB(), enums.RoleBuyer, nil)
	return fixture{
		client:  client,
		svc:     svc,
		intents: intents,
		dealer:  dealer,
		dealerU: dealerUser,
		buyer:   auth.Actor{UserID: buyer.ID, Email: buyer.Email, Role: enums.RoleBuyer},
		admin:   auth.Actor{UserID: uuid.New(), Role: enums.RoleAdmin},
	}
}

func (f fixture) count(t *testing.T, model any, where string, args ...any) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.client.DB().Model(model).Where(where, args...).Count(&count).Error)
	return count
}

func (f fixture) create(t *testing.T) *CreateResult {
	t.Helper()
	listing := dbtest.SeedListing(t, f.client.DB(), f.dealer.ID, enums.ListingStatusActive, "20000")
	result, err := f.svc.Create(context.Background(), f.buyer, CreateInput{
		ListingID: listing.ID,
		DealerID:  f.dealer.ID,
		Amount:    "20000",
		Currency:  "USD",
	})
	require.NoError(t, err)
	return result
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestCreatePersistsEscrowStagesAndJourney(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	result := f.create(t)
	require.Len(t, f.intents.created, 1)
	intent := f.intents.created[0]
	assert.Equal(t, int64(2000000), intent.AmountMinor)
	assert.Equal(t, "escrow-"+result.EscrowID.String(), intent.IdempotencyKey)
	assert.Equal(t, result.EscrowID.String(), intent.Metadata["escrow_id"])
	assert.NotEmpty(t, result.ClientSecret)

	record, err := NewRepository(f.client.DB()).FindByID(ctx, result.EscrowID)
	require.NoError(t, err)
	assert.Equal(t, enums.EscrowStatusCreated, record.Status)

	stages, err := NewRepository(f.client.DB()).ListStages(ctx, result.EscrowID)
	require.NoError(t, err)
	require.Len(t, stages, 5)
	for _, stage := range stages {
		assert.Equal(t, enums.TrackingStatusPending, stage.Status)
	}

	state, err := journey.NewRepository(f.client.DB()).FindByListingBuyer(ctx, record.ListingID, record.BuyerID)
	require.NoError(t, err)
	assert.Equal(t, enums.JourneyStateDeposit, state.State)
	assert.Equal(t, int64(1), f.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventEscrowCreated))
	assert.Empty(t, f.intents.canceled)
}

func TestCreateCancelsIntentWhenPersistFails(t *testing.T) {
	f := newFixture(t, stubLinker{err: errors.New("transactions table locked")})
	listing := dbtest.SeedListing(t, f.client.DB(), f.dealer.ID, enums.ListingStatusActive, "20000")

	_, err := f.svc.Create(context.Background(), f.buyer, CreateInput{
		ListingID: listing.ID,
		DealerID:  f.dealer.ID,
		Amount:    "20000",
		Currency:  "USD",
	})
	require.Error(t, err)
	require.Len(t, f.intents.canceled, 1)
	assert.Equal(t, int64(0), f.count(t, &models.Escrow{}, "1 = 1"))
	assert.Equal(t, int64(0), f.count(t, &models.OrderTrackingStage{}, "1 = 1"))
	assert.Equal(t, int64(0), f.count(t, &models.OutboxEvent{}, "1 = 1"))
}

func TestCreateCancelsIntentAfterRequestAborted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t, stubLinker{abort: cancel})
	listing := dbtest.SeedListing(t, f.client.DB(), f.dealer.ID, enums.ListingStatusActive, "20000")

	_, err := f.svc.Create(ctx, f.buyer, CreateInput{
		ListingID: listing.ID,
		DealerID:  f.dealer.ID,
		Amount:    "20000",
		Currency:  "USD",
	})
	require.Error(t, err)
	require.ErrorIs(t, ctx.Err(), context.Canceled)
	require.Len(t, f.intents.canceled, 1)
	assert.Equal(t, []bool{true}, f.intents.cancelCtxOK)
	assert.Equal(t, int64(0), f.count(t, &models.Escrow{}, "1 = 1"))
}

func TestCreateValidatesBeforeProcessorCall(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	active := dbtest.SeedListing(t, f.client.DB(), f.dealer.ID, enums.ListingStatusActive, "20000")
	pending := dbtest.SeedListing(t, f.client.DB(), f.dealer.ID, enums.ListingStatusPending, "20000")

	cases := []struct {
		name  string
		actor auth.Actor
		input CreateInput
		code  pkgerrors.Code
	}{
		{"admin cannot buy", f.admin, CreateInput{ListingID: active.ID, DealerID: f.dealer.ID, Amount: "1", Currency: "USD"}, pkgerrors.CodeForbidden},
		{"zero amount", f.buyer, CreateInput{ListingID: active.ID, DealerID: f.dealer.ID, Amount: "0", Currency: "USD"}, pkgerrors.CodeValidation},
		{"unsupported currency", f.buyer, CreateInput{ListingID: active.ID, DealerID: f.dealer.ID, Amount: "1", Currency: "XYZ"}, pkgerrors.CodeValidation},
		{"excess precision", f.buyer, CreateInput{ListingID: active.ID, DealerID: f.dealer.ID, Amount: "1.001", Currency: "USD"}, pkgerrors.CodeValidation},
		{"wrong dealer", f.buyer, CreateInput{ListingID: active.ID, DealerID: uuid.New(), Amount: "1", Currency: "USD"}, pkgerrors.CodeNotFound},
		{"listing not active", f.buyer, CreateInput{ListingID: pending.ID, DealerID: f.dealer.ID, Amount: "1", Currency: "USD"}, pkgerrors.CodeStateConflict},
		{"amount below listing price", f.buyer, CreateInput{ListingID: active.ID, DealerID: f.dealer.ID, Amount: "1", Currency: "USD"}, pkgerrors.CodeValidation},
		{"amount above listing price", f.buyer, CreateInput{ListingID: active.ID, DealerID: f.dealer.ID, Amount: "20000.01", Currency: "USD"}, pkgerrors.CodeValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tc.actor, tc.input)
			require.Error(t, err)
			assert.Equal(t, tc.code, pkgerrors.As(err).Code())
		})
	}
	assert.Empty(t, f.intents.created)
}

func TestGetVisibility(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	result := f.create(t)

	_, err := f.svc.Get(ctx, f.buyer, result.EscrowID)
	require.NoError(t, err)
	_, err = f.svc.Get(ctx, auth.Actor{UserID: f.dealerU.ID, Role: enums.RoleDealer, DealerID: f.dealerU.DealerID}, result.EscrowID)
	require.NoError(t, err)
	_, err = f.svc.Get(ctx, f.admin, result.EscrowID)
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, auth.Actor{UserID: uuid.New(), Role: enums.RoleBuyer}, result.EscrowID)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestReleaseRequiresFundedAndDelivered(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	result := f.create(t)
	repo := NewRepository(f.client.DB())

	_, err := f.svc.Release(ctx, f.admin, result.EscrowID)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())

	_, err = repo.TransitionStatus(ctx, result.EscrowID, enums.EscrowStatusCreated, enums.EscrowStatusFunded, nil)
	require.NoError(t, err)
	_, err = f.svc.Release(ctx, f.admin, result.EscrowID)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())

	delivery, err := repo.FindStage(ctx, result.EscrowID, enums.TrackingStageDelivery)
	require.NoError(t, err)
	_, err = repo.UpdateStage(ctx, delivery.ID, enums.TrackingStatusPending, map[string]any{"status": enums.TrackingStatusCompleted})
	require.NoError(t, err)

	_, err = f.svc.Release(ctx, f.buyer, result.EscrowID)
	assert.Equal(t, pkgerrors.CodeForbidden, pkgerrors.As(err).Code())

	dto, err := f.svc.Release(ctx, f.admin, result.EscrowID)
	require.NoError(t, err)
	assert.Equal(t, enums.EscrowStatusReleased, dto.Status)
	require.NotNil(t, dto.ReleasedAt)
	assert.Equal(t, int64(1), f.count(t, &models.AuditLogEntry{}, "action = ?", enums.AuditEscrowReleased))
	assert.Equal(t, int64(1), f.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventEscrowReleased))

	_, err = f.svc.Release(ctx, f.admin, result.EscrowID)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestDeferStaleRotatesSweepOrder(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	repo := NewRepository(f.client.DB())
	listing := dbtest.SeedListing(t, f.client.DB(), f.dealer.ID, enums.ListingStatusActive, "20000")
	opened := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	seed := func(intent string, offset time.Duration) *models.Escrow {
		record := &models.Escrow{
			ListingID:       listing.ID,
			DealerID:        listing.DealerID,
			BuyerID:         f.buyer.UserID,
			Amount:          listing.Price,
			Currency:        listing.Currency,
			Status:          enums.EscrowStatusCreated,
			PaymentIntentID: intent,
			CreatedAt:       opened.Add(offset),
			UpdatedAt:       opened.Add(offset),
		}
		require.NoError(t, repo.Create(ctx, record))
		return record
	}
	stuck := seed("pi_stuck", 0)
	next := seed("pi_next", time.Minute)

	cutoff := opened.Add(time.Hour)
	rows, err := repo.ListStaleCreated(ctx, cutoff, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, stuck.ID, rows[0].ID)

	require.NoError(t, repo.DeferStale(ctx, stuck.ID, opened.Add(2*time.Hour)))
	rows, err = repo.ListStaleCreated(ctx, cutoff, 1)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, next.ID, rows[0].ID)
}
