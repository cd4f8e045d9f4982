package journey

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/carbridge-backend/pkg/db/models"
	"github.com/angelmondragon/carbridge-backend/pkg/enums"
)

// Links are the optional foreign references a transition may attach to a journey.
type Links struct {
	TransactionID *uuid.UUID
	EscrowID      *uuid.UUID
}

// StateAge is the slim projection used by the overview aggregation. Furthest
// is the deepest pipeline stage the journey's event log ever entered.
type StateAge struct {
	JourneyID      uuid.UUID
	State          enums.DealJourneyState
	StateEnteredAt time.Time
	Furthest       enums.DealJourneyState `gorm:"-"`
}

// Repository persists journeys, their event log and workflow tasks.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.DealJourneyState, error)
	FindByListingBuyer(ctx context.Context, listingID, buyerID uuid.UUID) (*models.DealJourneyState, error)
	Create(ctx context.Context, journey *models.DealJourneyState) error
	UpdateState(ctx context.Context, id uuid.UUID, from, to enums.DealJourneyState, enteredAt time.Time, links Links) (int64, error)
	InsertEvent(ctx context.Context, event *models.DealJourneyEvent) error
	ListEvents(ctx context.Context, journeyID uuid.UUID) ([]models.DealJourneyEvent, error)
	ListEventsBetween(ctx context.Context, from, to time.Time) ([]models.DealJourneyEvent, error)
	ListStateAges(ctx context.Context) ([]StateAge, error)
	ListDeals(ctx context.Context, state *enums.DealJourneyState, limit, offset int) ([]models.DealJourneyState, int64, error)
	CreateTask(ctx context.Context, task *models.WorkflowTask) error
	FindTask(ctx context.Context, id uuid.UUID) (*models.WorkflowTask, error)
	CompleteTask(ctx context.Context, id uuid.UUID, at time.Time) (int64, error)
	ListTasks(ctx context.Context, journeyID uuid.UUID) ([]models.WorkflowTask, error)
	ListTasksCreatedBetween(ctx context.Context, from, to time.Time) ([]models.WorkflowTask, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the journey repository to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.DealJourneyState, error) {
	var journey models.DealJourneyState
	if err := r.db.WithContext(ctx).First(&journey, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &journey, nil
}

func (r *repository) FindByListingBuyer(ctx context.Context, listingID, buyerID uuid.UUID) (*models.DealJourneyState, error) {
	var journey models.DealJourneyState
	err := r.db.WithContext(ctx).
		Where("listing_id = ? AND buyer_id = ?", listingID, buyerID).
		First(&journey).Error
	if err != nil {
		return nil, err
	}
	return &journey, nil
}

func (r *repository) Create(ctx context.Context, journey *models.DealJourneyState) error {
	return r.db.WithContext(ctx).Create(journey).Error
}

// UpdateState moves the journey only while it is still in from.
func (r *repository) UpdateState(ctx context.Context, id uuid.UUID, from, to enums.DealJourneyState, enteredAt time.Time, links Links) (int64, error) {
	updates := map[string]any{
		"state":            to,
		"state_entered_at": enteredAt,
		"updated_at":       enteredAt,
	}
	if links.TransactionID != nil {
		updates["transaction_id"] = *links.TransactionID
	}
	if links.EscrowID != nil {
		updates["escrow_id"] = *links.EscrowID
	}
	res := r.db.WithContext(ctx).
		Model(&models.DealJourneyState{}).
		Where("id = ? AND state = ?", id, from).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *repository) InsertEvent(ctx context.Context, event *models.DealJourneyEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) ListEvents(ctx context.Context, journeyID uuid.UUID) ([]models.DealJourneyEvent, error) {
	var events []models.DealJourneyEvent
	err := r.db.WithContext(ctx).
		Where("journey_id = ?", journeyID).
		Order("occurred_at ASC").
		Order("id ASC").
		Find(&events).Error
	return events, err
}

func (r *repository) ListEventsBetween(ctx context.Context, from, to time.Time) ([]models.DealJourneyEvent, error) {
	var events []models.DealJourneyEvent
	err := r.db.WithContext(ctx).
		Where("occurred_at >= ? AND occurred_at < ?", from, to).
		Order("occurred_at ASC").
		Find(&events).Error
	return events, err
}

func (r *repository) ListStateAges(ctx context.Context) ([]StateAge, error) {
	var rows []StateAge
	err := r.db.WithContext(ctx).
		Model(&models.DealJourneyState{}).
		Select("id AS journey_id, state, state_entered_at").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	var visits []struct {
		JourneyID uuid.UUID
		ToState   enums.DealJourneyState
	}
	err = r.db.WithContext(ctx).
		Model(&models.DealJourneyEvent{}).
		Distinct("journey_id", "to_state").
		Scan(&visits).Error
	if err != nil {
		return nil, err
	}
	furthest := make(map[uuid.UUID]enums.DealJourneyState, len(rows))
	for _, visit := range visits {
		if visit.ToState.PipelineIndex() > furthest[visit.JourneyID].PipelineIndex() {
			furthest[visit.JourneyID] = visit.ToState
		}
	}
	for i := range rows {
		rows[i].Furthest = furthest[rows[i].JourneyID]
	}
	return rows, nil
}

func (r *repository) ListDeals(ctx context.Context, state *enums.DealJourneyState, limit, offset int) ([]models.DealJourneyState, int64, error) {
	scoped := func() *gorm.DB {
		query := r.db.WithContext(ctx).Model(&models.DealJourneyState{})
		if state != nil {
			query = query.Where("state = ?", *state)
		}
		return query
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var deals []models.DealJourneyState
	err := scoped().
		Order("state_entered_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&deals).Error
	return deals, total, err
}

func (r *repository) CreateTask(ctx context.Context, task *models.WorkflowTask) error {
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *repository) FindTask(ctx context.Context, id uuid.UUID) (*models.WorkflowTask, error) {
	var task models.WorkflowTask
	if err := r.db.WithContext(ctx).First(&task, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// CompleteTask closes an open task.
func (r *repository) CompleteTask(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.WorkflowTask{}).
		Where("id = ? AND status = ?", id, enums.WorkflowTaskOpen).
		Updates(map[string]any{
			"status":       enums.WorkflowTaskCompleted,
			"completed_at": at,
			"updated_at":   at,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) ListTasks(ctx context.Context, journeyID uuid.UUID) ([]models.WorkflowTask, error) {
	var tasks []models.WorkflowTask
	err := r.db.WithContext(ctx).
		Where("journey_id = ?", journeyID).
		Order("created_at ASC").
		Find(&tasks).Error
	return tasks, err
}

func (r *repository) ListTasksCreatedBetween(ctx context.Context, from, to time.Time) ([]models.WorkflowTask, error) {
	var tasks []models.WorkflowTask
	err := r.db.WithContext(ctx).
		Where("created_at >= ? AND created_at < ?", from, to).
		Find(&tasks).Error
	return tasks, err
}
