package listings

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/carbridge-backend/pkg/db/models"
	"github.com/angelmondragon/carbridge-backend/pkg/enums"
)

// Repository persists listings. Status changes only go through
// TransitionStatus so every write carries its guard.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, listing *models.Listing) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.ListingStatus, updates map[string]any) (int64, error)
	List(ctx context.Context, status *enums.ListingStatus, limit, offset int) ([]models.Listing, int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the listings repository to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, listing *models.Listing) error {
	return r.db.WithContext(ctx).Create(listing).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	var listing models.Listing
	if err := r.db.WithContext(ctx).First(&listing, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &listing, nil
}

// TransitionStatus updates the listing only while it is still in from and
// reports how many rows moved.
func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.ListingStatus, updates map[string]any) (int64, error) {
	values := map[string]any{"status": to}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Listing{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	return res.RowsAffected, res.Error
}

func (r *repository) List(ctx context.Context, status *enums.ListingStatus, limit, offset int) ([]models.Listing, int64, error) {
	scoped := func() *gorm.DB {
		query := r.db.WithContext(ctx).Model(&models.Listing{})
		if status != nil {
			query = query.Where("status = ?", *status)
		}
		return query
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.Listing
	err := scoped().
		Order("created_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	return rows, total, err
}
