package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/carbridge-backend/pkg/db/models"
	"github.com/angelmondragon/carbridge-backend/pkg/email"
	"github.com/angelmondragon/carbridge-backend/pkg/enums"
	"github.com/angelmondragon/carbridge-backend/pkg/logger"
	"github.com/angelmondragon/carbridge-backend/pkg/outbox/payloads"
)

type deliveryMetrics interface {
	IncNotification(template, status string)
}

// outgoing is one recipient of one rendered email. lookup resolves the
// address lazily so a directory failure only affects that recipient.
type outgoing struct {
	lookup func(ctx context.Context) (string, error)
	email  rendered
}

// Dispatcher turns domain events into emails. Every recipient is attempted
// and recorded independently.
type Dispatcher struct {
	sender     email.Sender
	deliveries Repository
	directory  Directory
	metrics    deliveryMetrics
	logg       *logger.Logger
}

// DispatcherParams bundles the dispatcher dependencies. Metrics may be nil.
type DispatcherParams struct {
	Sender     email.Sender
	Deliveries Repository
	Directory  Directory
	Metrics    deliveryMetrics
	Logger     *logger.Logger
}

// NewDispatcher builds a notification dispatcher.
func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	switch {
	case params.Sender == nil:
		return nil, fmt.Errorf("email sender required")
	case params.Deliveries == nil:
		return nil, fmt.Errorf("deliveries repository required")
	case params.Directory == nil:
		return nil, fmt.Errorf("directory required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	metrics := params.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Dispatcher{
		sender:     params.Sender,
		deliveries: params.Deliveries,
		directory:  params.Directory,
		metrics:    metrics,
		logg:       params.Logger,
	}, nil
}

// Handles reports whether eventType produces any email.
func Handles(eventType enums.OutboxEventType) bool {
	switch eventType {
	case enums.EventListingApproved,
		enums.EventListingRejected,
		enums.EventTransactionSucceeded,
		enums.EventTransactionFailed,
		enums.EventTransactionRefunded,
		enums.EventTrackingStageUpdated,
		enums.EventEscrowReleased:
		return true
	}
	return false
}

// Dispatch sends every email eventType implies. The returned error combines
// the failures of individual recipients.
func (d *Dispatcher) Dispatch(ctx context.Context, eventID uuid.UUID, eventType enums.OutboxEventType, data json.RawMessage) error {
	messages, err := d.plan(eventType, data)
	if err != nil {
		return err
	}
	var errs error
	for _, msg := range messages {
		errs = multierr.Append(errs, d.deliver(ctx, eventID, msg))
	}
	return errs
}

func (d *Dispatcher) deliver(ctx context.Context, eventID uuid.UUID, msg outgoing) error {
	record := &models.NotificationDelivery{
		EventID:  eventID,
		Channel:  enums.NotificationChannelEmail,
		Template: msg.email.Template,
	}

	recipient, sendErr := msg.lookup(ctx)
	recipient = strings.TrimSpace(recipient)
	switch {
	case sendErr != nil:
		sendErr = fmt.Errorf("%s: resolve recipient: %w", msg.email.Template, sendErr)
		record.Status = enums.NotificationDeliveryFailed
	case recipient == "":
		record.Status = enums.NotificationDeliverySkipped
	default:
		record.Recipient = recipient
		providerID, err := d.sender.Send(ctx, email.Message{
			To:      recipient,
			Subject: msg.email.Subject,
			HTML:    msg.email.HTML,
			Text:    msg.email.Text,
			Tag:     msg.email.Template,
		})
		if err != nil {
			sendErr = fmt.Errorf("%s to %s: %w", msg.email.Template, recipient, err)
			record.Status = enums.NotificationDeliveryFailed
		} else {
			record.Status = enums.NotificationDeliverySent
			if providerID != "" {
				record.ProviderMessageID = &providerID
			}
		}
	}
	if sendErr != nil {
		message := sendErr.Error()
		record.Error = &message
	}
	d.metrics.IncNotification(record.Template, string(record.Status))

	if err := d.deliveries.Record(ctx, record); err != nil {
		logCtx := d.logg.WithFields(ctx, map[string]any{
			"event_id": eventID.String(),
			"template": record.Template,
		})
		d.logg.Error(logCtx, "notifications.record_delivery_failed", err)
	}
	return sendErr
}

func (d *Dispatcher) plan(eventType enums.OutboxEventType, data json.RawMessage) ([]outgoing, error) {
	switch eventType {
	case enums.EventListingApproved, enums.EventListingRejected:
		var p payloads.ListingDecisionEvent
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		msg, err := renderListingDecision(p)
		if err != nil {
			return nil, err
		}
		return []outgoing{{lookup: d.dealer(p.DealerID), email: msg}}, nil

	case enums.EventTransactionSucceeded:
		var p payloads.TransactionEvent
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		buyer, err := renderPaymentConfirmed(p)
		if err != nil {
			return nil, err
		}
		dealer, err := renderPaymentReceived(p)
		if err != nil {
			return nil, err
		}
		return []outgoing{
			{lookup: fixed(p.BuyerEmail), email: buyer},
			{lookup: d.dealer(p.DealerID), email: dealer},
		}, nil

	case enums.EventTransactionFailed:
		var p payloads.TransactionEvent
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		msg, err := renderPaymentFailed(p)
		if err != nil {
			return nil, err
		}
		return []outgoing{{lookup: fixed(p.BuyerEmail), email: msg}}, nil

	case enums.EventTransactionRefunded:
		var p payloads.TransactionRefundedEvent
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		buyer, err := renderRefund(p, false)
		if err != nil {
			return nil, err
		}
		dealer, err := renderRefund(p, true)
		if err != nil {
			return nil, err
		}
		return []outgoing{
			{lookup: fixed(p.BuyerEmail), email: buyer},
			{lookup: d.dealer(p.DealerID), email: dealer},
		}, nil

	case enums.EventTrackingStageUpdated:
		var p payloads.TrackingStageUpdatedEvent
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		msg, err := renderTrackingUpdate(p)
		if err != nil {
			return nil, err
		}
		return []outgoing{{lookup: d.user(p.BuyerID), email: msg}}, nil

	case enums.EventEscrowReleased:
		var p payloads.EscrowEvent
		if err := decode(data, &p); err != nil {
			return nil, err
		}
		msg, err := renderEscrowReleased(p)
		if err != nil {
			return nil, err
		}
		return []outgoing{{lookup: d.dealer(p.DealerID), email: msg}}, nil
	}
	return nil, nil
}

func (d *Dispatcher) dealer(id uuid.UUID) func(context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		return d.directory.DealerEmail(ctx, id)
	}
}

func (d *Dispatcher) user(id uuid.UUID) func(context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		return d.directory.UserEmail(ctx, id)
	}
}

func fixed(address string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		return address, nil
	}
}

func decode(data json.RawMessage, into any) error {
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("decode event payload: %w", err)
	}
	return nil
}

type nopMetrics struct{}

func (nopMetrics) IncNotification(string, string) {}
