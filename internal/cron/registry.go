package cron

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Job represents a scheduled task that runs inside the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Schedule pairs a job with how often it should run.
type Schedule struct {
	Job   Job
	Every time.Duration
}

// Registry tracks registered cron jobs and their cadence.
type Registry struct {
	schedules []Schedule
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds job to run every interval. Non-positive intervals fall back
// to the service tick.
func (r *Registry) Register(job Job, every time.Duration) {
	if job == nil {
		return
	}
	r.schedules = append(r.schedules, Schedule{Job: job, Every: every})
}

// Schedules returns the registered schedules in the order they were added.
func (r *Registry) Schedules() []Schedule {
	out := make([]Schedule, len(r.schedules))
	copy(out, r.schedules)
	return out
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}
