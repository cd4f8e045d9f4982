package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/carbridge-backend/pkg/config"
	"github.com/angelmondragon/carbridge-backend/pkg/db/models"
	"github.com/angelmondragon/carbridge-backend/pkg/enums"
	"github.com/angelmondragon/carbridge-backend/pkg/logger"
	"github.com/angelmondragon/carbridge-backend/pkg/outbox"
	"github.com/angelmondragon/carbridge-backend/pkg/outbox/registry"
)

const notificationTopic = "carbridge-notifications"

func transactionEvent(t *testing.T, attempts int) models.OutboxEvent {
	t.Helper()
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventTransactionCreated,
		AggregateType: enums.AggregateTransaction,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelopePayload(t, uuid.NewString()),
		AttemptCount:  attempts,
		CreatedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestProcessBatchContinuesAfterTransientFailure(t *testing.T) {
	first, second := transactionEvent(t, 0), transactionEvent(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{first, second}}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{err: errors.New("unavailable")},
		fakePublishResult{},
	}}
	counter := &fakeCounter{}
	service := newTestService(t, repo, pub, &fakeRegistry{topic: notificationTopic}, &fakeDLQRepo{}, counter, nil)

	handled, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if handled != 2 {
		t.Fatalf("expected 2 rows handled, got %d", handled)
	}
	if len(repo.failed) != 1 || repo.failed[0] != first.ID {
		t.Fatalf("expected first row marked failed, got %v", repo.failed)
	}
	if len(repo.published) != 1 || repo.published[0] != second.ID {
		t.Fatalf("expected second row published, got %v", repo.published)
	}
	if counter.counts[notificationTopic+"/retry"] != 1 || counter.counts[notificationTopic+"/published"] != 1 {
		t.Fatalf("unexpected counts %v", counter.counts)
	}
}

func TestPublishCarriesRowAttributes(t *testing.T) {
	event := transactionEvent(t, 0)
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	service := newTestService(t, &fakeRepo{events: []models.OutboxEvent{event}}, pub, &fakeRegistry{topic: notificationTopic}, &fakeDLQRepo{}, nil, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(pub.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(pub.sent))
	}
	msg := pub.sent[0]
	if !bytes.Equal(msg.Data, event.Payload) {
		t.Fatalf("expected raw envelope as data")
	}
	want := map[string]string{
		"event_id":       event.ID.String(),
		"event_type":     "transaction_created",
		"aggregate_type": "transaction",
		"aggregate_id":   event.AggregateID.String(),
		"created_at":     "2026-03-01T12:00:00Z",
	}
	for k, v := range want {
		if msg.Attributes[k] != v {
			t.Fatalf("attribute %s: expected %q got %q", k, v, msg.Attributes[k])
		}
	}
}

func TestPublishersAreReusedPerTopic(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{transactionEvent(t, 0), transactionEvent(t, 0)}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}, fakePublishResult{}}}
	service := newTestService(t, repo, pub, &fakeRegistry{topic: notificationTopic}, &fakeDLQRepo{}, nil, nil)
	created := 0
	service.publishers.create = func(topic string) publisher {
		created++
		return pub
	}

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected one publisher for the topic, got %d", created)
	}
	service.publishers.stopAll()
	if !pub.stopped {
		t.Fatalf("expected cached publisher stopped")
	}
}

func TestUnresolvableRowIsDeadLettered(t *testing.T) {
	event := transactionEvent(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	dlq := &fakeDLQRepo{}
	reg := &fakeRegistry{err: registry.NewNonRetryableError(errors.New("payload missing"))}
	service := newTestService(t, repo, &fakePublisher{}, reg, dlq, nil, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(dlq.entries) != 1 {
		t.Fatalf("expected dlq entry, got %d", len(dlq.entries))
	}
	entry := dlq.entries[0]
	if entry.EventID != event.ID || !bytes.Equal(entry.Payload, event.Payload) {
		t.Fatalf("dlq entry does not mirror the row: %+v", entry)
	}
	if entry.ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("unexpected error reason: %s", entry.ErrorReason)
	}
	if entry.ErrorMessage == nil || *entry.ErrorMessage != "payload missing" {
		t.Fatalf("unexpected error message %v", entry.ErrorMessage)
	}
	if len(repo.terminal) != 1 {
		t.Fatalf("expected row marked terminal")
	}
}

func TestMissingPublisherIsDeadLettered(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{transactionEvent(t, 0)}}
	dlq := &fakeDLQRepo{}
	service := newTestService(t, repo, nil, &fakeRegistry{topic: "unknown-topic"}, dlq, nil, nil)
	service.publishers.create = func(string) publisher { return nil }

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(dlq.entries) != 1 || dlq.entries[0].ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("expected non-retryable dlq entry, got %+v", dlq.entries)
	}
}

func TestLastAttemptIsDeadLettered(t *testing.T) {
	event := transactionEvent(t, 1)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{err: errors.New("deadline exceeded")}}}
	dlq := &fakeDLQRepo{}
	counter := &fakeCounter{}
	service := newTestService(t, repo, pub, &fakeRegistry{topic: notificationTopic}, dlq, counter, &config.OutboxConfig{
		BatchSize:   1,
		MaxAttempts: 2,
	})

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(dlq.entries) != 1 || dlq.entries[0].ErrorReason != enums.OutboxDLQReasonMaxAttempts {
		t.Fatalf("expected max_attempts dlq entry, got %+v", dlq.entries)
	}
	if len(repo.failed) != 0 {
		t.Fatalf("terminal row must not be marked for retry")
	}
	if counter.counts[notificationTopic+"/dead_lettered"] != 1 {
		t.Fatalf("unexpected counts %v", counter.counts)
	}
}

func TestBookkeepingFailureAbortsBatch(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{transactionEvent(t, 0)}, markErr: errors.New("conn reset")}
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	service := newTestService(t, repo, pub, &fakeRegistry{topic: notificationTopic}, &fakeDLQRepo{}, nil, nil)

	if _, err := service.processBatch(context.Background()); err == nil {
		t.Fatalf("expected batch error when marking fails")
	}
}

func TestClassify(t *testing.T) {
	transient := errors.New("unavailable")
	cases := []struct {
		name    string
		err     error
		attempt int
		want    outcome
	}{
		{"success", nil, 10, outcomePublished},
		{"transient", transient, 1, outcomeRetry},
		{"exhausted", transient, 3, outcomeDeadLettered},
		{"non retryable", registry.NewNonRetryableError(transient), 1, outcomeDeadLettered},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classify(tc.err, tc.attempt, 3); got != tc.want {
				t.Fatalf("expected %s got %s", tc.want, got)
			}
		})
	}
}

func TestNextBackoffCaps(t *testing.T) {
	base := 500 * time.Millisecond
	if got := nextBackoff(0, base, maxIdleBackoff); got != time.Second {
		t.Fatalf("expected doubling from base, got %s", got)
	}
	if got := nextBackoff(8*time.Second, base, maxIdleBackoff); got != maxIdleBackoff {
		t.Fatalf("expected cap, got %s", got)
	}
}

func TestRunStopsOnCanceledContext(t *testing.T) {
	service := newTestService(t, &fakeRepo{}, &fakePublisher{}, &fakeRegistry{topic: notificationTopic}, &fakeDLQRepo{}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := service.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewServiceRequiresDLQ(t *testing.T) {
	_, err := NewService(ServiceParams{
		Config:     &config.Config{},
		Logger:     logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		DB:         &fakeDB{},
		PubSub:     &fakePubSubClient{},
		Repository: &fakeRepo{},
		Registry:   &fakeRegistry{},
	})
	if err == nil {
		t.Fatalf("expected missing dlq repository to be rejected")
	}
}

func newTestService(t *testing.T, repo outboxRepository, pub publisher, reg registryResolver, dlq dlqRepository, counter publishCounter, override *config.OutboxConfig) *Service {
	t.Helper()
	outboxCfg := config.OutboxConfig{BatchSize: 2, PollIntervalMS: 100, MaxAttempts: 5}
	if override != nil {
		outboxCfg = *override
	}
	params := ServiceParams{
		Config:           &config.Config{Outbox: outboxCfg},
		Logger:           logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:               &fakeDB{},
		PubSub:           &fakePubSubClient{},
		Repository:       repo,
		DLQRepository:    dlq,
		Registry:         reg,
		PublisherFactory: func(string) publisher { return pub },
	}
	if counter != nil {
		params.Metrics = counter
	}
	service, err := NewService(params)
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service
}

func mustEnvelopePayload(tb testing.TB, eventID string) json.RawMessage {
	tb.Helper()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: time.Now(),
		Data:       json.RawMessage(`{}`),
	})
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return payload
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
	markErr   error
}

func (f *fakeRepo) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakePubSubClient struct{}

func (fakePubSubClient) Ping(context.Context) error { return nil }

func (fakePubSubClient) Publisher(string) *gcppubsub.Publisher { return nil }

type fakePublisher struct {
	results []publishResult
	sent    []*gcppubsub.Message
	stopped bool
}

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.sent = append(f.sent, msg)
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

func (f *fakePublisher) Stop() {
	f.stopped = true
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "server-id", f.err
}

// fakeRegistry resolves every row to topic using the row's own id as event id.
type fakeRegistry struct {
	topic string
	err   error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			EventType:     event.EventType,
			AggregateType: event.AggregateType,
			Topic:         f.topic,
		},
		Envelope: outbox.PayloadEnvelope{EventID: event.ID.String(), OccurredAt: time.Now()},
	}, nil
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}

type fakeCounter struct {
	counts map[string]int
}

func (f *fakeCounter) IncOutboxPublish(topic, outcome string) {
	if f.counts == nil {
		f.counts = map[string]int{}
	}
	f.counts[topic+"/"+outcome]++
}
