package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/carbridge-backend/pkg/db/models"
	"github.com/angelmondragon/carbridge-backend/pkg/logger"
)

var (
	// ErrDeadLetterNotFound means no dead letter exists for the event.
	ErrDeadLetterNotFound = errors.New("dead letter not found")
	// ErrAlreadyPublished means the event left the outbox after it was dead-lettered.
	ErrAlreadyPublished = errors.New("outbox event already published")
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// DeadLetters lets operators inspect terminal failures and hand them back to
// the publisher once the cause is fixed.
type DeadLetters struct {
	db   txRunner
	repo *Repository
	dlq  *DLQRepository
	logg *logger.Logger
}

func NewDeadLetters(db txRunner, repo *Repository, dlq *DLQRepository, logg *logger.Logger) (*DeadLetters, error) {
	if db == nil || repo == nil || dlq == nil {
		return nil, errors.New("dead letters require db, outbox repository and dlq repository")
	}
	return &DeadLetters{db: db, repo: repo, dlq: dlq, logg: logg}, nil
}

func (d *DeadLetters) List(ctx context.Context, filter DLQFilter) ([]models.OutboxDLQ, error) {
	return d.dlq.List(ctx, filter)
}

// Replay resets the outbox row to attempt zero and clears its dead letters in
// one transaction. A row already pruned by retention is restored from the
// dead letter copy under its original id so consumers still dedupe on it.
func (d *DeadLetters) Replay(ctx context.Context, eventID uuid.UUID) error {
	var restored bool
	err := d.db.WithTx(ctx, func(tx *gorm.DB) error {
		restored = false
		entry, err := d.dlq.findLatest(tx, eventID)
		if err != nil {
			return fmt.Errorf("load dead letter: %w", err)
		}
		if entry == nil {
			return ErrDeadLetterNotFound
		}

		requeued, err := d.repo.RequeueTx(tx, eventID)
		if err != nil {
			return fmt.Errorf("requeue outbox event: %w", err)
		}
		if !requeued {
			exists, err := d.repo.ExistsByIDTx(tx, eventID)
			if err != nil {
				return fmt.Errorf("check outbox event: %w", err)
			}
			if exists {
				return ErrAlreadyPublished
			}
			if err := d.repo.Insert(tx, entry.Event()); err != nil {
				return fmt.Errorf("restore outbox event: %w", err)
			}
			restored = true
		}

		if _, err := d.dlq.DeleteByEventIDTx(tx, eventID); err != nil {
			return fmt.Errorf("clear dead letters: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if d.logg != nil {
		d.logg.Info(d.logg.WithFields(ctx, map[string]any{
			"event_id": eventID.String(),
			"restored": restored,
		}), "outbox.dead_letter.replayed")
	}
	return nil
}
