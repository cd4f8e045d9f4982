package listings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/carbridge-backend/internal/audit"
	"github.com/angelmondragon/carbridge-backend/pkg/auth"
	"github.com/angelmondragon/carbridge-backend/pkg/db/models"
	"github.com/angelmondragon/carbridge-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/carbridge-backend/pkg/errors"
	"github.com/angelmondragon/carbridge-backend/pkg/money"
	"github.com/angelmondragon/carbridge-backend/pkg/outbox"
	"github.com/angelmondragon/carbridge-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/carbridge-backend/pkg/pagination"
	"github.com/angelmondragon/carbridge-backend/pkg/types"
)

const alreadyProcessedMessage = "listing not found or already processed"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type auditRecorder interface {
	Record(ctx context.Context, tx *gorm.DB, entry audit.Entry) error
}

type transitionObserver interface {
	ObserveTransition(entity, from, to string)
}

// Service moderates and serves listings.
type Service interface {
	Approve(ctx context.Context, actor auth.Actor, listingID uuid.UUID) (*ListingDTO, error)
	Reject(ctx context.Context, actor auth.Actor, input RejectInput) (*ListingDTO, error)
	Create(ctx context.Context, actor auth.Actor, input CreateInput) (*ListingDTO, error)
	ListForModeration(ctx context.Context, actor auth.Actor, query ListQuery) (*ListPage, error)
	Get(ctx context.Context, actor auth.Actor, listingID uuid.UUID) (*ListingDTO, error)
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	audit   auditRecorder
	metrics transitionObserver
	now     func() time.Time
}

// ServiceParams bundles the listing service dependencies.
type ServiceParams struct {
	Repo    Repository
	Tx      txRunner
	Outbox  outboxPublisher
	Audit   auditRecorder
	Metrics transitionObserver
}

// NewService builds the listing service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("listings repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit writer required")
	}
	return &service{
		repo:    params.Repo,
		tx:      params.Tx,
		outbox:  params.Outbox,
		audit:   params.Audit,
		metrics: params.Metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Approve(ctx context.Context, actor auth.Actor, listingID uuid.UUID) (*ListingDTO, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin access required")
	}
	if listingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "listing id required")
	}

	now := s.now()
	var listing *models.Listing
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := s.loadForDecision(ctx, repo, listingID)
		if err != nil {
			return err
		}

		specs := current.Specifications.WithApproval(types.ListingApproval{
			ApprovedBy: actor.UserID,
			ApprovedAt: now,
		})
		approver := actor.UserID
		if err := s.decide(ctx, repo, listingID, enums.ListingStatusActive, map[string]any{
			"specifications": specs,
			"approved_at":    now,
			"approved_by":    approver,
			"updated_at":     now,
		}); err != nil {
			return err
		}
		current.Status = enums.ListingStatusActive
		current.Specifications = specs
		current.ApprovedAt = &now
		current.ApprovedBy = &approver
		current.UpdatedAt = now

		if err := s.audit.Record(ctx, tx, audit.Entry{
			Action:       enums.AuditListingApproved,
			ResourceType: enums.AuditResourceListing,
			ResourceID:   listingID,
			Actor:        actor,
			Details:      map[string]any{"dealer_id": current.DealerID.String()},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write audit log")
		}
		if err := s.emitDecision(ctx, tx, actor, current, enums.EventListingApproved, ""); err != nil {
			return err
		}
		listing = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.observe(enums.ListingStatusPending, enums.ListingStatusActive)
	return FromModel(listing), nil
}

func (s *service) Reject(ctx context.Context, actor auth.Actor, input RejectInput) (*ListingDTO, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin access required")
	}
	if input.ListingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "listing id required")
	}
	reason := strings.TrimSpace(input.Reason)
	if len([]rune(reason)) < MinRejectionReasonLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
			WithDetails(map[string]string{
				"rejection_reason": fmt.Sprintf("must be at least %d characters", MinRejectionReasonLength),
			})
	}

	now := s.now()
	var listing *models.Listing
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := s.loadForDecision(ctx, repo, input.ListingID)
		if err != nil {
			return err
		}

		specs := current.Specifications.WithRejection(types.ListingRejection{
			RejectionReason: reason,
			RejectedBy:      actor.UserID,
			RejectedAt:      now,
		})
		if err := s.decide(ctx, repo, input.ListingID, enums.ListingStatusRejected, map[string]any{
			"specifications": specs,
			"updated_at":     now,
		}); err != nil {
			return err
		}
		current.Status = enums.ListingStatusRejected
		current.Specifications = specs
		current.UpdatedAt = now

		if err := s.audit.Record(ctx, tx, audit.Entry{
			Action:       enums.AuditListingRejected,
			ResourceType: enums.AuditResourceListing,
			ResourceID:   input.ListingID,
			Actor:        actor,
			Details:      map[string]any{"reason": reason, "dealer_id": current.DealerID.String()},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write audit log")
		}
		if err := s.emitDecision(ctx, tx, actor, current, enums.EventListingRejected, reason); err != nil {
			return err
		}
		listing = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.observe(enums.ListingStatusPending, enums.ListingStatusRejected)
	return FromModel(listing), nil
}

// loadForDecision reads the listing the moderator acts on. The status guard
// itself lives in decide.
func (s *service) loadForDecision(ctx context.Context, repo Repository, id uuid.UUID) (*models.Listing, error) {
	listing, err := repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, alreadyProcessedMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listing")
	}
	return listing, nil
}

func (s *service) decide(ctx context.Context, repo Repository, id uuid.UUID, to enums.ListingStatus, updates map[string]any) error {
	rows, err := repo.TransitionStatus(ctx, id, enums.ListingStatusPending, to, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update listing")
	}
	if rows > 0 {
		return nil
	}
	if _, err := repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, alreadyProcessedMessage)
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload listing")
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, alreadyProcessedMessage)
}

func (s *service) emitDecision(ctx context.Context, tx *gorm.DB, actor auth.Actor, listing *models.Listing, eventType enums.OutboxEventType, reason string) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateListing,
		AggregateID:   listing.ID,
		Actor:         outbox.ActorOf(actor),
		Data: payloads.ListingDecisionEvent{
			ListingID: listing.ID,
			DealerID:  listing.DealerID,
			Title:     listing.Title,
			Status:    listing.Status,
			Reason:    reason,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit listing event")
	}
	return nil
}

func (s *service) Create(ctx context.Context, actor auth.Actor, input CreateInput) (*ListingDTO, error) {
	if actor.Role != enums.RoleDealer || actor.DealerID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "dealer access required")
	}

	fields := map[string]string{}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		fields["title"] = "is required"
	}
	vehicleMake := strings.TrimSpace(input.Make)
	if vehicleMake == "" {
		fields["make"] = "is required"
	}
	model := strings.TrimSpace(input.Model)
	if model == "" {
		fields["model"] = "is required"
	}
	if input.Year < 1900 || input.Year > s.now().Year()+1 {
		fields["year"] = "is out of range"
	}
	currency, err := enums.ParseCurrency(input.Currency)
	if err != nil {
		fields["currency"] = "is not supported"
	}
	price, err := decimal.NewFromString(strings.TrimSpace(input.Price))
	if err != nil || !price.IsPositive() {
		fields["price"] = "must be a positive amount"
	} else if currency != "" {
		if _, err := money.ToMinorUnits(price, currency.String()); err != nil {
			fields["price"] = err.Error()
		}
	}
	if len(fields) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(fields)
	}

	listing := &models.Listing{
		DealerID:       *actor.DealerID,
		Title:          title,
		Make:           vehicleMake,
		Model:          model,
		Year:           input.Year,
		Price:          price,
		Currency:       currency,
		Status:         enums.ListingStatusPending,
		Specifications: types.ListingSpecifications{VehicleSpecs: input.Specifications},
	}
	if err := s.repo.Create(ctx, listing); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create listing")
	}
	return FromModel(listing), nil
}

func (s *service) ListForModeration(ctx context.Context, actor auth.Actor, query ListQuery) (*ListPage, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin access required")
	}
	params := pagination.Normalize(pagination.Params{Page: query.Page, Limit: query.Limit})
	rows, total, err := s.repo.List(ctx, query.Status, params.Limit, params.Offset())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list listings")
	}
	out := make([]ListingDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return &ListPage{Listings: out, Pagination: pagination.NewPage(params, total)}, nil
}

// Get returns public listings to anyone; pending and rejected listings are
// visible only to their dealer and admins.
func (s *service) Get(ctx context.Context, actor auth.Actor, listingID uuid.UUID) (*ListingDTO, error) {
	listing, err := s.repo.FindByID(ctx, listingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listing")
	}
	switch listing.Status {
	case enums.ListingStatusActive, enums.ListingStatusSold:
	default:
		if !actor.IsAdmin() && !actor.OwnsDealer(listing.DealerID) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
		}
	}
	return FromModel(listing), nil
}

func (s *service) observe(from, to enums.ListingStatus) {
	if s.metrics != nil {
		s.metrics.ObserveTransition("listing", from.String(), to.String())
	}
}
