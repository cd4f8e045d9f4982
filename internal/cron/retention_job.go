package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/carbridge-backend/pkg/logger"
)

const (
	outboxRetentionDays   = 30
	outboxMinAttempts     = 5
	deliveryRetentionDays = 90
)

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type deliveryRetentionRepo interface {
	DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// RetentionJobParams configure the table retention sweep. A zero retention
// falls back to the package default.
type RetentionJobParams struct {
	Logger                *logger.Logger
	DB                    txRunner
	Outbox                outboxRetentionRepo
	Deliveries            deliveryRetentionRepo
	OutboxRetentionDays   int
	OutboxMinAttempts     int
	DeliveryRetentionDays int
}

// sweep deletes one table's rows older than cutoff.
type sweep struct {
	name string
	days int
	run  func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type retentionJob struct {
	logg   *logger.Logger
	db     txRunner
	sweeps []sweep
	now    func() time.Time
}

// NewRetentionJob prunes published outbox rows and old notification
// delivery records. Each table is swept in its own transaction.
func NewRetentionJob(params RetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox repository required")
	}

	minAttempts := orDefault(params.OutboxMinAttempts, outboxMinAttempts)
	sweeps := []sweep{{
		name: "outbox_events",
		days: orDefault(params.OutboxRetentionDays, outboxRetentionDays),
		run: func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
			return params.Outbox.DeletePublishedBefore(ctx, tx, cutoff, minAttempts)
		},
	}}
	if params.Deliveries != nil {
		sweeps = append(sweeps, sweep{
			name: "notification_deliveries",
			days: orDefault(params.DeliveryRetentionDays, deliveryRetentionDays),
			run:  params.Deliveries.DeleteOlderThan,
		})
	}

	return &retentionJob{
		logg:   params.Logger,
		db:     params.DB,
		sweeps: sweeps,
		now:    time.Now,
	}, nil
}

func (j *retentionJob) Name() string { return "retention" }

func (j *retentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var errs error
	for _, s := range j.sweeps {
		cutoff := now.Add(-time.Duration(s.days) * 24 * time.Hour)
		var deleted int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			rows, err := s.run(ctx, tx, cutoff)
			deleted = rows
			return err
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s retention: %w", s.name, err))
			continue
		}
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"table":          s.name,
			"cutoff":         cutoff,
			"retention_days": s.days,
			"rows_deleted":   deleted,
		})
		j.logg.Info(logCtx, "retention sweep complete")
	}
	return errs
}

func orDefault(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}
