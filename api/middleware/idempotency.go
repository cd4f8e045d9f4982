package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/carbridge-backend/api/responses"
	pkgerrors "github.com/angelmondragon/carbridge-backend/pkg/errors"
	"github.com/angelmondragon/carbridge-backend/pkg/logger"
)

const (
	idempotencyHeader      = "Idempotency-Key"
	maxIdempotencyKeyLen   = 255
	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour
	// a reservation outlives any handler; a crashed request frees the key after this
	inFlightTTL = 2 * time.Minute
)

type responseStore interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// replayRoute selects a mutating route by method and path shape. Paths are
// matched on the raw URL since chi's pattern is incomplete while mounted
// subrouters are still resolving.
type replayRoute struct {
	method string
	prefix string
	suffix string
	exact  bool
	ttl    time.Duration
}

func (rr replayRoute) matches(method, path string) bool {
	if rr.method != method {
		return false
	}
	if rr.exact {
		return path == rr.prefix
	}
	return strings.HasPrefix(path, rr.prefix) && strings.HasSuffix(path, rr.suffix)
}

var replayRoutes = []replayRoute{
	{method: http.MethodPost, prefix: "/api/dealer/listings", exact: true, ttl: defaultIdempotencyTTL},
	{method: http.MethodPatch, prefix: "/api/admin/listings/", suffix: "/approve", ttl: defaultIdempotencyTTL},
	{method: http.MethodPatch, prefix: "/api/admin/listings/", suffix: "/reject", ttl: defaultIdempotencyTTL},
	{method: http.MethodPatch, prefix: "/api/admin/escrow/", ttl: defaultIdempotencyTTL},
	{method: http.MethodPost, prefix: "/api/admin/pipeline/", ttl: defaultIdempotencyTTL},
	{method: http.MethodPost, prefix: "/api/transactions", exact: true, ttl: criticalIdempotencyTTL},
	{method: http.MethodPost, prefix: "/api/transactions/", suffix: "/refund", ttl: criticalIdempotencyTTL},
	{method: http.MethodPost, prefix: "/api/escrow/create", exact: true, ttl: criticalIdempotencyTTL},
	{method: http.MethodPost, prefix: "/api/admin/escrow/", suffix: "/release", ttl: criticalIdempotencyTTL},
}

func replayTTL(method, path string) (time.Duration, bool) {
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	for _, rr := range replayRoutes {
		if rr.matches(method, path) {
			return rr.ttl, true
		}
	}
	return 0, false
}

// storedResponse is what a retry with the same key gets back. A record with
// InFlight set marks a request that is still running.
type storedResponse struct {
	InFlight    bool   `json:"in_flight,omitempty"`
	RequestHash string `json:"request_hash"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Idempotency replays the first response of a mutating route when a client
// retries with the same Idempotency-Key. Keys are scoped per user, method
// and path. A different body under the same key is a 409, as is a retry
// that arrives while the first attempt is still running. 5xx responses are
// not stored so the client can retry them.
func Idempotency(store responseStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := replayTTL(r.Method, r.URL.Path)
			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if !ok || clientKey == "" || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			if len(clientKey) > maxIdempotencyKeyLen {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key too long").
					WithDetails(map[string]any{"header": idempotencyHeader}))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			hash := requestHash(body)
			key := store.IdempotencyKey(UserIDFromContext(ctx)+"|"+r.Method+"|"+r.URL.Path, clientKey)

			reservation, _ := json.Marshal(storedResponse{InFlight: true, RequestHash: hash})
			reserved, err := store.SetNX(ctx, key, string(reservation), inFlightTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				replayStored(ctx, store, key, hash, w, logg)
				return
			}

			rec := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			// a detached context lets the bookkeeping finish after the client hangs up
			bookCtx := context.WithoutCancel(ctx)
			status := rec.statusCode()
			if status >= http.StatusInternalServerError {
				if err := store.Del(bookCtx, key); err != nil && logg != nil {
					logg.Error(bookCtx, "idempotency.release_failed", err)
				}
				return
			}
			record, _ := json.Marshal(storedResponse{
				RequestHash: hash,
				Status:      status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			})
			if err := store.Set(bookCtx, key, string(record), ttl); err != nil && logg != nil {
				logg.Error(bookCtx, "idempotency.persist_failed", err)
			}
		})
	}
}

func replayStored(ctx context.Context, store responseStore, key, hash string, w http.ResponseWriter, logg *logger.Logger) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		// released between SETNX and GET: the first attempt failed
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "previous request with this key failed, retry"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record"))
		return
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	switch {
	case stored.RequestHash != hash:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case stored.InFlight:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "request with this idempotency key is still in progress"))
	default:
		if stored.ContentType != "" {
			w.Header().Set("Content-Type", stored.ContentType)
		}
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(stored.Status)
		_, _ = w.Write(stored.Body)
	}
}

func requestHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseCapture) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}
