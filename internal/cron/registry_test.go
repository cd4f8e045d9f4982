package cron

import (
	"context"
	"testing"
	"time"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryStoresSchedules(t *testing.T) {
	registry := NewRegistry()
	jobA := &stubJob{name: "a"}
	jobB := &stubJob{name: "b"}
	registry.Register(jobA, time.Minute)
	registry.Register(nil, time.Minute)
	registry.Register(jobB, time.Hour)

	schedules := registry.Schedules()
	if len(schedules) != 2 {
		t.Fatalf("expected 2 schedules, got %d", len(schedules))
	}
	if schedules[0].Job != jobA || schedules[1].Job != jobB || schedules[1].Every != time.Hour {
		t.Fatalf("schedules returned out of order: %+v", schedules)
	}
	schedules[0].Job = nil
	if registry.Schedules()[0].Job == nil {
		t.Fatalf("internal slice leaked")
	}
}
