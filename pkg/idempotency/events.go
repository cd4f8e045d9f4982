package idempotency

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager dedupes outbox events per consumer under
// cb:idempotency:evt:processed:<consumer>:<event_id>.
type Manager struct {
	store Store
	ttl   time.Duration

	mu      sync.Mutex
	markers map[string]*Marker
}

func NewManager(store Store, ttl time.Duration) (*Manager, error) {
	// validates store and ttl once up front
	if _, err := NewMarker(store, "evt:processed", ttl); err != nil {
		return nil, err
	}
	return &Manager{store: store, ttl: ttl, markers: make(map[string]*Marker)}, nil
}

// CheckAndMarkProcessed reports whether consumer already handled eventID.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	marker, err := m.marker(consumer, eventID)
	if err != nil {
		return false, err
	}
	return marker.CheckAndMark(ctx, eventID.String())
}

// Delete releases eventID after a failed handler so the redelivery runs.
func (m *Manager) Delete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	marker, err := m.marker(consumer, eventID)
	if err != nil {
		return err
	}
	return marker.Delete(ctx, eventID.String())
}

func (m *Manager) marker(consumer string, eventID uuid.UUID) (*Marker, error) {
	if consumer == "" {
		return nil, errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return nil, errIDRequired
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if marker, ok := m.markers[consumer]; ok {
		return marker, nil
	}
	marker, err := NewMarker(m.store, "evt:processed:"+consumer, m.ttl)
	if err != nil {
		return nil, err
	}
	m.markers[consumer] = marker
	return marker, nil
}
