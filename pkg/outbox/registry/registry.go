// Package registry maps outbox event types to their Pub/Sub topic and typed
// payload, and decides which publish failures are worth retrying.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/carbridge-backend/pkg/config"
	"github.com/angelmondragon/carbridge-backend/pkg/db/models"
	"github.com/angelmondragon/carbridge-backend/pkg/enums"
	"github.com/angelmondragon/carbridge-backend/pkg/outbox"
	"github.com/angelmondragon/carbridge-backend/pkg/outbox/payloads"
)

type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is a validated outbox row with its envelope and typed payload.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a failure that will not succeed on retry, such as a
// malformed payload. The publisher dead-letters these immediately.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func permanent(format string, args ...any) error {
	return NonRetryableError{Err: fmt.Errorf(format, args...)}
}

type route int

const (
	toNotifications route = iota
	toJourney
)

type entry struct {
	aggregate enums.OutboxAggregateType
	route     route
	payload   func() any
}

func typed[T any]() func() any {
	return func() any { return new(T) }
}

// catalog lists every event the publisher accepts. Journey transitions feed
// the warehouse; everything else goes to the notification worker.
var catalog = map[enums.OutboxEventType]entry{
	enums.EventListingApproved:      {enums.AggregateListing, toNotifications, typed[payloads.ListingDecisionEvent]()},
	enums.EventListingRejected:      {enums.AggregateListing, toNotifications, typed[payloads.ListingDecisionEvent]()},
	enums.EventTransactionCreated:   {enums.AggregateTransaction, toNotifications, typed[payloads.TransactionEvent]()},
	enums.EventTransactionSucceeded: {enums.AggregateTransaction, toNotifications, typed[payloads.TransactionEvent]()},
	enums.EventTransactionFailed:    {enums.AggregateTransaction, toNotifications, typed[payloads.TransactionEvent]()},
	enums.EventTransactionRefunded:  {enums.AggregateTransaction, toNotifications, typed[payloads.TransactionRefundedEvent]()},
	enums.EventEscrowCreated:        {enums.AggregateEscrow, toNotifications, typed[payloads.EscrowEvent]()},
	enums.EventEscrowReleased:       {enums.AggregateEscrow, toNotifications, typed[payloads.EscrowEvent]()},
	enums.EventEscrowCanceled:       {enums.AggregateEscrow, toNotifications, typed[payloads.EscrowEvent]()},
	enums.EventTrackingStageUpdated: {enums.AggregateTrackingStage, toNotifications, typed[payloads.TrackingStageUpdatedEvent]()},
	enums.EventJourneyTransitioned:  {enums.AggregateDealJourney, toJourney, typed[payloads.JourneyTransitionedEvent]()},
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

var (
	errNotificationTopic = errors.New("notification topic is required")
	errJourneyTopic      = errors.New("journey topic is required")
)

// NewEventRegistry binds the catalog to the configured topic names.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topics := map[route]string{
		toNotifications: cfg.NotificationTopic,
		toJourney:       cfg.JourneyTopic,
	}
	if topics[toNotifications] == "" {
		return nil, errNotificationTopic
	}
	if topics[toJourney] == "" {
		return nil, errJourneyTopic
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(catalog))}
	for eventType, e := range catalog {
		reg.entries[eventType] = EventDescriptor{
			EventType:      eventType,
			AggregateType:  e.aggregate,
			Topic:          topics[e.route],
			PayloadFactory: e.payload,
		}
	}
	return reg, nil
}

// Resolve validates the row and decodes its typed payload. Every failure is
// non-retryable: the row will not change between attempts.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, permanent("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, permanent("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, permanent("missing aggregate_id")
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, permanent("decode envelope: %w", err)
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, permanent("payload missing for %s", event.EventType)
	}
	payload := desc.PayloadFactory()
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, permanent("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
