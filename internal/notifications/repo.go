package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/carbridge-backend/pkg/db/models"
)

// Repository persists delivery attempts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Record(ctx context.Context, delivery *models.NotificationDelivery) error
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.NotificationDelivery, error)
	DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a delivery repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Record(ctx context.Context, delivery *models.NotificationDelivery) error {
	return r.db.WithContext(ctx).Create(delivery).Error
}

func (r *repositoryImpl) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.NotificationDelivery, error) {
	var rows []models.NotificationDelivery
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("created_at ASC, recipient ASC").
		Find(&rows).Error
	return rows, err
}

// DeleteOlderThan removes delivery records created before cutoff.
func (r *repositoryImpl) DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	db := r.db
	if tx != nil {
		db = tx
	}
	res := db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.NotificationDelivery{})
	return res.RowsAffected, res.Error
}

// Directory resolves contact addresses for event participants.
type Directory interface {
	DealerEmail(ctx context.Context, dealerID uuid.UUID) (string, error)
	UserEmail(ctx context.Context, userID uuid.UUID) (string, error)
}

type directory struct {
	db *gorm.DB
}

// NewDirectory looks contacts up in the dealers and users tables.
func NewDirectory(db *gorm.DB) Directory {
	return &directory{db: db}
}

func (d *directory) DealerEmail(ctx context.Context, dealerID uuid.UUID) (string, error) {
	var dealer models.Dealer
	if err := d.db.WithContext(ctx).Select("email").First(&dealer, "id = ?", dealerID).Error; err != nil {
		return "", err
	}
	return dealer.Email, nil
}

func (d *directory) UserEmail(ctx context.Context, userID uuid.UUID) (string, error) {
	var user models.User
	if err := d.db.WithContext(ctx).Select("email").First(&user, "id = ?", userID).Error; err != nil {
		return "", err
	}
	return user.Email, nil
}
