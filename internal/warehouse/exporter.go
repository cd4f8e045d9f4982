package warehouse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/carbridge-backend/internal/eventing"
	"github.com/angelmondragon/carbridge-backend/pkg/enums"
	"github.com/angelmondragon/carbridge-backend/pkg/logger"
	"github.com/angelmondragon/carbridge-backend/pkg/outbox/payloads"
)

const (
	consumerName = "warehouse-exporter"
	flushTimeout = 10 * time.Second
)

type rowWriter interface {
	Insert(ctx context.Context, row JourneyEventRow) error
	Flush(ctx context.Context) error
}

// Exporter streams journey_transitioned events into BigQuery.
type Exporter struct {
	consumer *eventing.Consumer
	writer   rowWriter
	logg     *logger.Logger
}

func NewExporter(sub eventing.Subscription, writer rowWriter, dedupe eventing.Dedupe, logg *logger.Logger) (*Exporter, error) {
	if writer == nil {
		return nil, errors.New("warehouse writer is required")
	}
	e := &Exporter{writer: writer, logg: logg}
	consumer, err := eventing.NewConsumer(eventing.Params{
		Name:         consumerName,
		Subscription: sub,
		Dedupe:       dedupe,
		Accepts:      func(t enums.OutboxEventType) bool { return t == enums.EventJourneyTransitioned },
		Handle:       e.export,
		Logger:       logg,
	})
	if err != nil {
		return nil, err
	}
	e.consumer = consumer
	return e, nil
}

// Run consumes until ctx is canceled, then flushes any buffered rows.
func (e *Exporter) Run(ctx context.Context) error {
	err := e.consumer.Run(ctx)

	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()
	if flushErr := e.writer.Flush(flushCtx); flushErr != nil {
		e.logg.Error(flushCtx, "warehouse.flush_failed", flushErr)
	}
	return err
}

// export drops undecodable payloads and asks for redelivery when the insert
// fails.
func (e *Exporter) export(ctx context.Context, event eventing.Event) error {
	var transition payloads.JourneyTransitionedEvent
	if err := json.Unmarshal(event.Envelope.Data, &transition); err != nil {
		return eventing.Drop("decode journey payload: %v", err)
	}
	row, err := buildJourneyRow(event.ID.String(), event.Envelope.OccurredAt, transition)
	if err != nil {
		return eventing.Drop("build journey row: %v", err)
	}
	if err := e.writer.Insert(ctx, row); err != nil {
		return fmt.Errorf("insert journey event %s: %w", row.JourneyEventID, err)
	}
	e.logg.Info(ctx, "warehouse.exported")
	return nil
}
