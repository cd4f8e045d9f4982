// Package eventing runs the downstream side of the outbox: it receives
// published events from a Pub/Sub subscription, drops duplicates and hands
// each event to a handler exactly once per consumer.
package eventing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/carbridge-backend/pkg/enums"
	"github.com/angelmondragon/carbridge-backend/pkg/logger"
	"github.com/angelmondragon/carbridge-backend/pkg/outbox"
)

// Event is one decoded outbox message.
type Event struct {
	ID       uuid.UUID
	Type     enums.OutboxEventType
	Envelope outbox.PayloadEnvelope
}

// ErrDrop marks an event the handler can never process. The message is
// acked and stays marked as processed.
var ErrDrop = errors.New("event dropped")

func Drop(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDrop, fmt.Sprintf(format, args...))
}

// Handler processes one event. A nil error acks the message. ErrDrop acks it
// too. Any other error releases the dedupe mark and nacks for redelivery.
type Handler func(ctx context.Context, event Event) error

// Subscription is satisfied by *pubsub.Subscriber.
type Subscription interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Dedupe is satisfied by *idempotency.Manager.
type Dedupe interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type Params struct {
	// Name scopes the dedupe marks, so two consumers of one event both run.
	Name         string
	Subscription Subscription
	Dedupe       Dedupe
	Accepts      func(enums.OutboxEventType) bool
	Handle       Handler
	Logger       *logger.Logger
}

type Consumer struct {
	name    string
	sub     Subscription
	dedupe  Dedupe
	accepts func(enums.OutboxEventType) bool
	handle  Handler
	logg    *logger.Logger
}

func NewConsumer(p Params) (*Consumer, error) {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return nil, errors.New("consumer name required")
	case p.Subscription == nil:
		return nil, errors.New("subscription required")
	case p.Dedupe == nil:
		return nil, errors.New("idempotency manager required")
	case p.Handle == nil:
		return nil, errors.New("handler required")
	case p.Logger == nil:
		return nil, errors.New("logger required")
	}
	accepts := p.Accepts
	if accepts == nil {
		accepts = func(enums.OutboxEventType) bool { return true }
	}
	return &Consumer{
		name:    p.Name,
		sub:     p.Subscription,
		dedupe:  p.Dedupe,
		accepts: accepts,
		handle:  p.Handle,
		logg:    p.Logger,
	}, nil
}

// Run receives until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg.ID, msg.Attributes, msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// process reports whether the message should be acked. Only a dedupe store
// outage or a handler asking for a retry nacks; malformed messages are acked
// since redelivery cannot fix them.
func (c *Consumer) process(ctx context.Context, messageID string, attributes map[string]string, data []byte) bool {
	eventType := enums.OutboxEventType(strings.TrimSpace(attributes["event_type"]))
	ctx = c.logg.WithFields(ctx, map[string]any{
		"consumer":   c.name,
		"message_id": messageID,
		"event_type": eventType,
	})
	if !c.accepts(eventType) {
		return true
	}

	envelope, err := outbox.DecodeEnvelope(data)
	if err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "eventing.invalid_envelope")
		return true
	}
	eventID, err := uuid.Parse(strings.TrimSpace(envelope.EventID))
	if err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "event_id", envelope.EventID), "eventing.invalid_event_id")
		return true
	}
	ctx = c.logg.WithField(ctx, "event_id", eventID.String())

	seen, err := c.dedupe.CheckAndMarkProcessed(ctx, c.name, eventID)
	if err != nil {
		c.logg.Error(ctx, "eventing.dedupe_failed", err)
		return false
	}
	if seen {
		c.logg.Debug(ctx, "eventing.duplicate")
		return true
	}

	err = c.handle(ctx, Event{ID: eventID, Type: eventType, Envelope: envelope})
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrDrop):
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "eventing.dropped")
		return true
	default:
		c.logg.Error(ctx, "eventing.handle_failed", err)
		if relErr := c.dedupe.Delete(context.WithoutCancel(ctx), c.name, eventID); relErr != nil {
			c.logg.Error(ctx, "eventing.release_failed", relErr)
		}
		return false
	}
}
