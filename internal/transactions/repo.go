package transactions

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/carbridge-backend/pkg/db/models"
	"github.com/angelmondragon/carbridge-backend/pkg/enums"
)

// ListFilter is an already validated, role-scoped listing query.
type ListFilter struct {
	DealerID *uuid.UUID
	BuyerID  *uuid.UUID
	Status   *enums.TransactionStatus
	Sort     string
	Desc     bool
	Limit    int
	Offset   int
}

// Repository persists transactions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.Transaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	FindByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.Transaction, error)
	FindPendingForBuyer(ctx context.Context, listingID, buyerID uuid.UUID) (*models.Transaction, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.TransactionStatus, updates map[string]any) (int64, error)
	List(ctx context.Context, filter ListFilter) ([]models.Transaction, int64, error)
	FindUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds the transactions repository to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, txn *models.Transaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var txn models.Transaction
	if err := r.db.WithContext(ctx).First(&txn, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

// LockByID loads the transaction and, on Postgres, holds its row until the
// surrounding transaction ends.
func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	query := r.db.WithContext(ctx)
	if r.db.Dialector != nil && r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var txn models.Transaction
	if err := query.First(&txn, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) FindByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.db.WithContext(ctx).
		Where("payment_intent_id = ?", paymentIntentID).
		Order("created_at DESC").
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) FindPendingForBuyer(ctx context.Context, listingID, buyerID uuid.UUID) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.db.WithContext(ctx).
		Where("listing_id = ? AND buyer_id = ? AND status = ?", listingID, buyerID, enums.TransactionStatusPending).
		Order("created_at DESC").
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// TransitionStatus updates the transaction only while it is still in from.
func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.TransactionStatus, updates map[string]any) (int64, error) {
	values := map[string]any{"status": to}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	return res.RowsAffected, res.Error
}

// List expects filter.Sort to come from the service allow-list.
func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.Transaction, int64, error) {
	scoped := func() *gorm.DB {
		query := r.db.WithContext(ctx).Model(&models.Transaction{})
		if filter.DealerID != nil {
			query = query.Where("dealer_id = ?", *filter.DealerID)
		}
		if filter.BuyerID != nil {
			query = query.Where("buyer_id = ?", *filter.BuyerID)
		}
		if filter.Status != nil {
			query = query.Where("status = ?", *filter.Status)
		}
		return query
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.Transaction
	err := scoped().
		Order(clause.OrderByColumn{Column: clause.Column{Name: filter.Sort}, Desc: filter.Desc}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}}).
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&rows).Error
	return rows, total, err
}

func (r *repository) FindUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
