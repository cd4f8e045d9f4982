// Package idempotency remembers which external deliveries were already
// applied: Stripe webhook events and Pub/Sub messages from the outbox.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Store is satisfied by pkg/redis.Client.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

var errIDRequired = errors.New("idempotency id is required")

// Marker records ids under one scope for ttl. A zero ttl keeps marks forever.
type Marker struct {
	store Store
	scope string
	ttl   time.Duration
}

func NewMarker(store Store, scope string, ttl time.Duration) (*Marker, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return nil, errors.New("idempotency scope is required")
	}
	if ttl < 0 {
		return nil, fmt.Errorf("idempotency ttl must be non-negative, got %s", ttl)
	}
	return &Marker{store: store, scope: scope, ttl: ttl}, nil
}

// CheckAndMark reports whether id was already marked and marks it if not.
// Exactly one concurrent caller sees false for a given id.
func (m *Marker) CheckAndMark(ctx context.Context, id string) (bool, error) {
	key, err := m.key(id)
	if err != nil {
		return false, err
	}
	set, err := m.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), m.ttl)
	if err != nil {
		return false, fmt.Errorf("mark %s: %w", key, err)
	}
	return !set, nil
}

// Delete forgets id so a failed attempt can be redelivered and retried.
func (m *Marker) Delete(ctx context.Context, id string) error {
	key, err := m.key(id)
	if err != nil {
		return err
	}
	if err := m.store.Del(ctx, key); err != nil {
		return fmt.Errorf("unmark %s: %w", key, err)
	}
	return nil
}

func (m *Marker) key(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", errIDRequired
	}
	return m.store.IdempotencyKey(m.scope, id), nil
}
