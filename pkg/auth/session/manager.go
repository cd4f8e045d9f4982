// Package session keeps the server-side half of a login: one Redis entry per
// access token jti, so logout revokes a token before its exp.
package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/carbridge-backend/pkg/config"
)

var errAccessIDRequired = errors.New("access id is required")

// Store is satisfied by pkg/redis.Client.
type Store interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	AccessSessionKey(accessID string) string
}

// AccessSessionChecker is what the auth middleware needs.
type AccessSessionChecker interface {
	HasSession(ctx context.Context, accessID string, userID uuid.UUID) (bool, error)
}

type Manager struct {
	store Store
	ttl   time.Duration
}

// NewManager sizes sessions to the token lifetime from cfg.
func NewManager(store Store, cfg config.JWTConfig) (*Manager, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	ttl := cfg.SessionTTL()
	if ttl <= 0 {
		return nil, errors.New("session ttl must be positive")
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// Start stores userID under accessID for the session ttl.
func (m *Manager) Start(ctx context.Context, accessID string, userID uuid.UUID) error {
	key, err := m.key(accessID)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, key, userID.String(), m.ttl)
}

// Revoke is idempotent; revoking a missing session is not an error.
func (m *Manager) Revoke(ctx context.Context, accessID string) error {
	key, err := m.key(accessID)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

// HasSession reports whether accessID is live and was started for userID.
func (m *Manager) HasSession(ctx context.Context, accessID string, userID uuid.UUID) (bool, error) {
	key, err := m.key(accessID)
	if err != nil {
		return false, err
	}
	owner, err := m.store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return owner == userID.String(), nil
}

func (m *Manager) key(accessID string) (string, error) {
	accessID = strings.TrimSpace(accessID)
	if accessID == "" {
		return "", errAccessIDRequired
	}
	return m.store.AccessSessionKey(accessID), nil
}

// NewAccessID produces the jti shared by the token and its session key.
func NewAccessID() string {
	return uuid.NewString()
}
