package notifications

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"github.com/angelmondragon/carbridge-backend/internal/eventing"
	"github.com/angelmondragon/carbridge-backend/pkg/enums"
	"github.com/angelmondragon/carbridge-backend/pkg/logger"
)

const consumerName = "notification-dispatcher"

type dispatcher interface {
	Dispatch(ctx context.Context, eventID uuid.UUID, eventType enums.OutboxEventType, data json.RawMessage) error
}

// NewConsumer feeds notification events into d. Delivery is best effort: a
// failed send is recorded by the dispatcher and the message is still acked.
func NewConsumer(d dispatcher, sub eventing.Subscription, dedupe eventing.Dedupe, logg *logger.Logger) (*eventing.Consumer, error) {
	if d == nil {
		return nil, errors.New("dispatcher required")
	}
	return eventing.NewConsumer(eventing.Params{
		Name:         consumerName,
		Subscription: sub,
		Dedupe:       dedupe,
		Accepts:      Handles,
		Handle:       deliver(d, logg),
		Logger:       logg,
	})
}

func deliver(d dispatcher, logg *logger.Logger) eventing.Handler {
	return func(ctx context.Context, event eventing.Event) error {
		if err := d.Dispatch(ctx, event.ID, event.Type, event.Envelope.Data); err != nil {
			logg.Error(ctx, "notifications.delivery_failed", err)
			return nil
		}
		logg.Info(ctx, "notifications.delivered")
		return nil
	}
}
