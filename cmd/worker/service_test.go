package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/carbridge-backend/pkg/logger"
)

type okPinger struct{ err error }

func (p okPinger) Ping(context.Context) error { return p.err }

type blockingRunner struct{}

func (blockingRunner) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

type failingRunner struct{ err error }

func (f failingRunner) Run(context.Context) error { return f.err }

func testParams(buf *bytes.Buffer) ServiceParams {
	return ServiceParams{
		Logger:               logger.New(logger.Options{ServiceName: "worker-test", Output: buf}),
		DB:                   okPinger{},
		Redis:                okPinger{},
		PubSub:               okPinger{},
		BigQuery:             okPinger{},
		NotificationConsumer: blockingRunner{},
		JourneyExporter:      blockingRunner{},
	}
}

func TestServiceStopsOnFirstConsumerFailure(t *testing.T) {
	buf := &bytes.Buffer{}
	params := testParams(buf)
	boom := errors.New("subscription deleted")
	params.JourneyExporter = failingRunner{err: boom}

	svc, err := NewService(params)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected exporter error got %v", err)
	}
	if !strings.Contains(buf.String(), `"consumer":"warehouse"`) {
		t.Fatalf("expected failing consumer named in log: %s", buf.String())
	}
}

func TestServiceReturnsOnCancel(t *testing.T) {
	svc, err := NewService(testParams(&bytes.Buffer{}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := svc.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error got %v", err)
	}
}

func TestServiceFailsReadiness(t *testing.T) {
	params := testParams(&bytes.Buffer{})
	params.BigQuery = okPinger{err: errors.New("dataset missing")}
	svc, err := NewService(params)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	err = svc.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "bigquery ping failed") {
		t.Fatalf("expected readiness failure got %v", err)
	}
}

func TestNewServiceRequiresConsumers(t *testing.T) {
	params := testParams(&bytes.Buffer{})
	params.NotificationConsumer = nil
	if _, err := NewService(params); err == nil {
		t.Fatalf("expected error for missing consumer")
	}
}
