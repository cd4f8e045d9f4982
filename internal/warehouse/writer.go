package warehouse

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Config controls the journey writer. Zero values take the defaults below.
type Config struct {
	Table       string
	BatchSize   int
	MaxAttempts int
	// Backoff doubles after every failed attempt up to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration
}

func (c Config) withDefaults() Config {
	c.Table = strings.TrimSpace(c.Table)
	if c.BatchSize <= 0 {
		c.BatchSize = 1
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = 250 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 2 * time.Second
	}
	c.MaxBackoff = max(c.MaxBackoff, c.Backoff)
	return c
}

// TableInserter is satisfied by pkg/bigquery.Client.
type TableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// Writer buffers journey rows and streams them into BigQuery in batches.
type Writer struct {
	client TableInserter
	cfg    Config

	mu      sync.Mutex
	pending []JourneyEventRow
}

func NewWriter(client TableInserter, cfg Config) (*Writer, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	cfg = cfg.withDefaults()
	if cfg.Table == "" {
		return nil, errors.New("journey events table is required")
	}
	return &Writer{client: client, cfg: cfg}, nil
}

// Insert queues row and writes the batch once it reaches BatchSize.
func (w *Writer) Insert(ctx context.Context, row JourneyEventRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, row)
	if len(w.pending) < w.cfg.BatchSize {
		return nil
	}
	return w.drain(ctx)
}

// Flush writes whatever is queued.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.drain(ctx)
}

// drain empties the queue even when the insert fails. The messages behind a
// failed batch were nacked and come back through Pub/Sub.
func (w *Writer) drain(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	batch := make([]any, 0, len(w.pending))
	for i := range w.pending {
		batch = append(batch, &w.pending[i])
	}
	w.pending = nil

	wait := w.cfg.Backoff
	for attempt := 1; ; attempt++ {
		err := w.client.InsertRows(ctx, w.cfg.Table, batch)
		if err == nil {
			return nil
		}
		if attempt == w.cfg.MaxAttempts || !transient(err) {
			return fmt.Errorf("insert %d rows into %s after %d attempt(s): %w", len(batch), w.cfg.Table, attempt, err)
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
		wait = min(2*wait, w.cfg.MaxBackoff)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var (
	transientHTTP = map[int]bool{
		http.StatusRequestTimeout:      true,
		http.StatusTooManyRequests:     true,
		http.StatusInternalServerError: true,
		http.StatusBadGateway:          true,
		http.StatusServiceUnavailable:  true,
		http.StatusGatewayTimeout:      true,
	}
	transientGRPC = map[codes.Code]bool{
		codes.Aborted:           true,
		codes.DeadlineExceeded:  true,
		codes.Internal:          true,
		codes.ResourceExhausted: true,
		codes.Unavailable:       true,
	}
)

// transient reports whether a retry could succeed. A partial failure is only
// transient when every row error is.
func transient(err error) bool {
	var multi cbigquery.PutMultiError
	if errors.As(err, &multi) {
		for _, rowErr := range multi {
			for _, inner := range rowErr.Errors {
				if !transient(inner) {
					return false
				}
			}
		}
		return len(multi) > 0
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return transientHTTP[apiErr.Code]
	}
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		return transientGRPC[st.Code()]
	}
	return false
}
