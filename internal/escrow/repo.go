package escrow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/carbridge-backend/pkg/db/models"
	"github.com/angelmondragon/carbridge-backend/pkg/enums"
)

// Repository persists escrows and their tracking stages.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, escrow *models.Escrow) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Escrow, error)
	FindByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.Escrow, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.EscrowStatus, updates map[string]any) (int64, error)
	ListStaleCreated(ctx context.Context, createdBefore time.Time, limit int) ([]models.Escrow, error)
	DeferStale(ctx context.Context, id uuid.UUID, at time.Time) error
	CreateStages(ctx context.Context, stages []models.OrderTrackingStage) error
	ListStages(ctx context.Context, escrowID uuid.UUID) ([]models.OrderTrackingStage, error)
	FindStage(ctx context.Context, escrowID uuid.UUID, stageType enums.TrackingStageType) (*models.OrderTrackingStage, error)
	UpdateStage(ctx context.Context, id uuid.UUID, from enums.TrackingStageStatus, updates map[string]any) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the escrow repository to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, escrow *models.Escrow) error {
	return r.db.WithContext(ctx).Create(escrow).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Escrow, error) {
	var escrow models.Escrow
	if err := r.db.WithContext(ctx).First(&escrow, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &escrow, nil
}

func (r *repository) FindByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.Escrow, error) {
	var escrow models.Escrow
	err := r.db.WithContext(ctx).
		Where("payment_intent_id = ?", paymentIntentID).
		First(&escrow).Error
	if err != nil {
		return nil, err
	}
	return &escrow, nil
}

func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.EscrowStatus, updates map[string]any) (int64, error) {
	values := map[string]any{"status": to}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Escrow{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	return res.RowsAffected, res.Error
}

// ListStaleCreated returns escrows still waiting for funds that were opened
// before createdBefore, least recently touched first.
func (r *repository) ListStaleCreated(ctx context.Context, createdBefore time.Time, limit int) ([]models.Escrow, error) {
	var rows []models.Escrow
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.EscrowStatusCreated, createdBefore).
		Order("updated_at ASC").
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// DeferStale moves an escrow the sweep could not expire to the back of the
// stale queue.
func (r *repository) DeferStale(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Escrow{}).
		Where("id = ? AND status = ?", id, enums.EscrowStatusCreated).
		UpdateColumn("updated_at", at).Error
}

func (r *repository) CreateStages(ctx context.Context, stages []models.OrderTrackingStage) error {
	if len(stages) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&stages).Error
}

func (r *repository) ListStages(ctx context.Context, escrowID uuid.UUID) ([]models.OrderTrackingStage, error) {
	var stages []models.OrderTrackingStage
	err := r.db.WithContext(ctx).
		Where("escrow_id = ?", escrowID).
		Find(&stages).Error
	return stages, err
}

func (r *repository) FindStage(ctx context.Context, escrowID uuid.UUID, stageType enums.TrackingStageType) (*models.OrderTrackingStage, error) {
	var stage models.OrderTrackingStage
	err := r.db.WithContext(ctx).
		Where("escrow_id = ? AND stage_type = ?", escrowID, stageType).
		First(&stage).Error
	if err != nil {
		return nil, err
	}
	return &stage, nil
}

// UpdateStage applies updates only while the stage is still in from.
func (r *repository) UpdateStage(ctx context.Context, id uuid.UUID, from enums.TrackingStageStatus, updates map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.OrderTrackingStage{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return res.RowsAffected, res.Error
}

// NewStages returns the canonical pending stages for a new escrow.
func NewStages(escrowID uuid.UUID) []models.OrderTrackingStage {
	stages := make([]models.OrderTrackingStage, 0, len(enums.TrackingStageOrder))
	for _, stageType := range enums.TrackingStageOrder {
		stages = append(stages, models.OrderTrackingStage{
			EscrowID:  escrowID,
			StageType: stageType,
			Status:    enums.TrackingStatusPending,
		})
	}
	return stages
}
