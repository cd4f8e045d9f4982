package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/carbridge-backend/api/middleware"
	"github.com/angelmondragon/carbridge-backend/internal/escrow"
	"github.com/angelmondragon/carbridge-backend/internal/journey"
	"github.com/angelmondragon/carbridge-backend/internal/listings"
	"github.com/angelmondragon/carbridge-backend/internal/tracking"
	"github.com/angelmondragon/carbridge-backend/internal/transactions"
	"github.com/angelmondragon/carbridge-backend/pkg/auth"
	"github.com/angelmondragon/carbridge-backend/pkg/enums"
	"github.com/angelmondragon/carbridge-backend/pkg/types"
)

func adminActor() auth.Actor {
	return auth.Actor{UserID: uuid.New(), Email: "ops@carbridge.io", Role: enums.RoleAdmin}
}

func buyerActor() auth.Actor {
	return auth.Actor{UserID: uuid.New(), Email: "buyer@example.com", Role: enums.RoleBuyer}
}

func dealerActor() auth.Actor {
	dealerID := uuid.New()
	return auth.Actor{UserID: uuid.New(), Email: "dealer@example.com", Role: enums.RoleDealer, DealerID: &dealerID}
}

// newRequest builds a request carrying actor and chi URL params.
func newRequest(method, target string, body string, actor *auth.Actor, params map[string]string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	ctx := req.Context()
	if actor != nil {
		ctx = middleware.WithActor(ctx, *actor)
	}
	if len(params) > 0 {
		rc := chi.NewRouteContext()
		for k, v := range params {
			rc.URLParams.Add(k, v)
		}
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rc)
	}
	return req.WithContext(ctx)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dest); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
}

type stubListingService struct {
	approveErr error
	rejectErr  error
	lastReject listings.RejectInput
	lastCreate listings.CreateInput
	lastQuery  listings.ListQuery
	lastActor  auth.Actor
	listing    *listings.ListingDTO
}

func (s *stubListingService) Approve(ctx context.Context, actor auth.Actor, listingID uuid.UUID) (*listings.ListingDTO, error) {
	s.lastActor = actor
	if s.approveErr != nil {
		return nil, s.approveErr
	}
	return &listings.ListingDTO{ID: listingID, Status: enums.ListingStatusActive}, nil
}

func (s *stubListingService) Reject(ctx context.Context, actor auth.Actor, input listings.RejectInput) (*listings.ListingDTO, error) {
	s.lastReject = input
	if s.rejectErr != nil {
		return nil, s.rejectErr
	}
	return &listings.ListingDTO{ID: input.ListingID, Status: enums.ListingStatusRejected}, nil
}

func (s *stubListingService) Create(ctx context.Context, actor auth.Actor, input listings.CreateInput) (*listings.ListingDTO, error) {
	s.lastCreate = input
	return &listings.ListingDTO{ID: uuid.New(), Title: input.Title, Status: enums.ListingStatusPending, Specifications: types.ListingSpecifications{VehicleSpecs: input.Specifications}}, nil
}

func (s *stubListingService) ListForModeration(ctx context.Context, actor auth.Actor, query listings.ListQuery) (*listings.ListPage, error) {
	s.lastQuery = query
	return &listings.ListPage{Listings: []listings.ListingDTO{}}, nil
}

func (s *stubListingService) Get(ctx context.Context, actor auth.Actor, listingID uuid.UUID) (*listings.ListingDTO, error) {
	if s.listing != nil {
		return s.listing, nil
	}
	return &listings.ListingDTO{ID: listingID}, nil
}

type stubTransactionService struct {
	lastCreate transactions.CreateInput
	lastList   transactions.ListQuery
	lastRefund transactions.RefundInput
	refundErr  error
	listErr    error
}

func (s *stubTransactionService) Create(ctx context.Context, actor auth.Actor, input transactions.CreateInput) (*transactions.TransactionDTO, error) {
	s.lastCreate = input
	return &transactions.TransactionDTO{ID: uuid.New(), ListingID: input.ListingID, Status: enums.TransactionStatusPending}, nil
}

func (s *stubTransactionService) List(ctx context.Context, actor auth.Actor, query transactions.ListQuery) (*transactions.ListResult, error) {
	s.lastList = query
	if s.listErr != nil {
		return nil, s.listErr
	}
	return &transactions.ListResult{Transactions: []transactions.TransactionDTO{}, Role: actor.Role}, nil
}

func (s *stubTransactionService) Refund(ctx context.Context, actor auth.Actor, input transactions.RefundInput) (*transactions.RefundResult, error) {
	s.lastRefund = input
	if s.refundErr != nil {
		return nil, s.refundErr
	}
	return &transactions.RefundResult{
		Success:     true,
		Refund:      transactions.RefundSummary{ID: "re_123", Status: "succeeded", Reason: input.Reason},
		Transaction: transactions.RefundedTransaction{ID: input.TransactionID, Status: enums.TransactionStatusRefunded},
	}, nil
}

func (s *stubTransactionService) ApplyPaymentSucceeded(context.Context, transactions.PaymentOutcome) error {
	return nil
}

func (s *stubTransactionService) ApplyPaymentFailed(context.Context, transactions.PaymentOutcome) error {
	return nil
}

func (s *stubTransactionService) ApplyPaymentCanceled(context.Context, transactions.PaymentOutcome) error {
	return nil
}

func (s *stubTransactionService) ReconcileRefund(context.Context, transactions.RefundOutcome) error {
	return nil
}

type stubEscrowService struct {
	lastCreate escrow.CreateInput
	getErr     error
}

func (s *stubEscrowService) Create(ctx context.Context, actor auth.Actor, input escrow.CreateInput) (*escrow.CreateResult, error) {
	s.lastCreate = input
	return &escrow.CreateResult{ClientSecret: "pi_secret", EscrowID: uuid.New()}, nil
}

func (s *stubEscrowService) Get(ctx context.Context, actor auth.Actor, escrowID uuid.UUID) (*escrow.EscrowDTO, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return &escrow.EscrowDTO{ID: escrowID, Status: enums.EscrowStatusFunded}, nil
}

func (s *stubEscrowService) Release(ctx context.Context, actor auth.Actor, escrowID uuid.UUID) (*escrow.EscrowDTO, error) {
	return &escrow.EscrowDTO{ID: escrowID, Status: enums.EscrowStatusReleased}, nil
}

type stubTrackingService struct {
	messages   chan string
	closed     bool
	lastUpdate tracking.UpdateInput
	updateErr  error
}

func (s *stubTrackingService) Timeline(ctx context.Context, actor auth.Actor, escrowID uuid.UUID) (*tracking.Timeline, error) {
	stages := make([]tracking.StageDTO, 0, len(enums.TrackingStageOrder))
	for _, stageType := range enums.TrackingStageOrder {
		stages = append(stages, tracking.StageDTO{StageType: stageType, Status: enums.TrackingStatusPending})
	}
	return &tracking.Timeline{EscrowID: escrowID, Stages: stages}, nil
}

func (s *stubTrackingService) UpdateStage(ctx context.Context, actor auth.Actor, input tracking.UpdateInput) (*tracking.StageDTO, error) {
	s.lastUpdate = input
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	return &tracking.StageDTO{StageType: enums.TrackingStageType(input.StageType), Status: enums.TrackingStageStatus(input.Status)}, nil
}

func (s *stubTrackingService) Subscribe(ctx context.Context, actor auth.Actor, escrowID uuid.UUID) (<-chan string, func() error, error) {
	return s.messages, func() error {
		s.closed = true
		return nil
	}, nil
}

type stubPipelineService struct {
	lastPeriod     string
	lastDeals      journey.DealsQuery
	lastDetail     uuid.UUID
	lastTransition journey.TransitionInput
	lastTask       journey.CreateTaskInput
	metricsErr     error
}

func (s *stubPipelineService) Overview(ctx context.Context) (*journey.Overview, error) {
	return &journey.Overview{Stages: []journey.StageSummary{}}, nil
}

func (s *stubPipelineService) Deals(ctx context.Context, query journey.DealsQuery) (*journey.DealsPage, error) {
	s.lastDeals = query
	return &journey.DealsPage{Deals: []journey.DealSummary{}}, nil
}

func (s *stubPipelineService) DealDetail(ctx context.Context, journeyID uuid.UUID) (*journey.DealDetail, error) {
	s.lastDetail = journeyID
	return &journey.DealDetail{Deal: journey.DealSummary{ID: journeyID}}, nil
}

func (s *stubPipelineService) Metrics(ctx context.Context, period string) (*journey.Metrics, error) {
	s.lastPeriod = period
	if s.metricsErr != nil {
		return nil, s.metricsErr
	}
	return &journey.Metrics{Period: "7d"}, nil
}

func (s *stubPipelineService) Transition(ctx context.Context, actor auth.Actor, input journey.TransitionInput) (*journey.DealSummary, error) {
	s.lastTransition = input
	return &journey.DealSummary{ID: input.JourneyID, State: input.ToState}, nil
}

func (s *stubPipelineService) CreateTask(ctx context.Context, actor auth.Actor, input journey.CreateTaskInput) (*journey.TaskDTO, error) {
	s.lastTask = input
	return &journey.TaskDTO{ID: uuid.New(), JourneyID: input.JourneyID, AgentID: input.AgentID, Title: input.Title}, nil
}

func (s *stubPipelineService) CompleteTask(ctx context.Context, actor auth.Actor, taskID uuid.UUID) (*journey.TaskDTO, error) {
	return &journey.TaskDTO{ID: taskID, Status: enums.WorkflowTaskCompleted}, nil
}
