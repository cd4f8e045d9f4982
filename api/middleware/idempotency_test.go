package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/carbridge-backend/pkg/auth"
	"github.com/angelmondragon/carbridge-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/carbridge-backend/pkg/errors"
	"github.com/angelmondragon/carbridge-backend/pkg/redis"
	"github.com/angelmondragon/carbridge-backend/pkg/types"
)

func newReplayStore(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.Wrap(goredis.NewClient(&goredis.Options{Addr: server.Addr()}))
	t.Cleanup(func() { _ = client.Close() })
	return client, server
}

func keyedRequest(method, path, key, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	return req
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload types.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload.Code
}

func TestReplayTTL(t *testing.T) {
	cases := []struct {
		method string
		path   string
		want   time.Duration
		ok     bool
	}{
		{http.MethodPost, "/api/transactions/abc/refund", criticalIdempotencyTTL, true},
		{http.MethodPost, "/api/escrow/create", criticalIdempotencyTTL, true},
		{http.MethodPost, "/api/transactions/", criticalIdempotencyTTL, true},
		{http.MethodPost, "/api/admin/escrow/e1/release", criticalIdempotencyTTL, true},
		{http.MethodPatch, "/api/admin/listings/l1/approve", defaultIdempotencyTTL, true},
		{http.MethodPatch, "/api/admin/listings/l1/reject", defaultIdempotencyTTL, true},
		{http.MethodPatch, "/api/admin/escrow/e1/tracking/shipping", defaultIdempotencyTTL, true},
		{http.MethodPost, "/api/dealer/listings", defaultIdempotencyTTL, true},
		{http.MethodGet, "/api/transactions", 0, false},
		{http.MethodPost, "/api/auth/login", 0, false},
		{http.MethodPost, "/api/escrow/create/extra", 0, false},
	}
	for _, tc := range cases {
		ttl, ok := replayTTL(tc.method, tc.path)
		assert.Equal(t, tc.ok, ok, "%s %s", tc.method, tc.path)
		assert.Equal(t, tc.want, ttl, "%s %s", tc.method, tc.path)
	}
}

func TestIdempotencyPassesThroughWithoutKey(t *testing.T) {
	store, server := newReplayStore(t)
	calls := 0
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	for range 2 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, keyedRequest(http.MethodPost, "/api/transactions/abc/refund", "", `{"reason":"dup"}`))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 2, calls)
	assert.Empty(t, server.Keys())
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store, server := newReplayStore(t)
	calls := 0
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, keyedRequest(http.MethodPost, "/api/transactions", "abc", `{"amount":"1"}`))
	require.Equal(t, http.StatusCreated, first.Code)

	keys := server.Keys()
	require.Len(t, keys, 1)
	assert.Equal(t, criticalIdempotencyTTL, server.TTL(keys[0]))

	replay := httptest.NewRecorder()
	h.ServeHTTP(replay, keyedRequest(http.MethodPost, "/api/transactions", "abc", `{"amount":"1"}`))
	assert.Equal(t, http.StatusCreated, replay.Code)
	assert.Equal(t, "application/json", replay.Header().Get("Content-Type"))
	assert.Equal(t, "true", replay.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, `{"success":true}`, replay.Body.String())
	assert.Equal(t, 1, calls)
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	store, server := newReplayStore(t)
	calls := 0
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	for range 2 {
		h.ServeHTTP(httptest.NewRecorder(), keyedRequest(http.MethodPost, "/api/transactions/abc/refund", "retry-key", `{"reason":"retry"}`))
	}
	assert.Equal(t, 2, calls, "the retry must reach the handler")
	assert.Len(t, server.Keys(), 1)
}

func TestIdempotencyRejectsBodyChange(t *testing.T) {
	store, _ := newReplayStore(t)
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	h.ServeHTTP(httptest.NewRecorder(), keyedRequest(http.MethodPost, "/api/escrow/create", "xyz", `{"amount":"1"}`))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, keyedRequest(http.MethodPost, "/api/escrow/create", "xyz", `{"amount":"2"}`))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, rec))
}

func TestIdempotencyRejectsConcurrentDuplicate(t *testing.T) {
	store, _ := newReplayStore(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(entered)
		<-release
		w.WriteHeader(http.StatusCreated)
	}))

	done := make(chan int)
	go func() {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, keyedRequest(http.MethodPost, "/api/escrow/create", "k1", `{"amount":"1"}`))
		done <- rec.Code
	}()
	<-entered

	dup := httptest.NewRecorder()
	h.ServeHTTP(dup, keyedRequest(http.MethodPost, "/api/escrow/create", "k1", `{"amount":"1"}`))
	assert.Equal(t, http.StatusConflict, dup.Code)
	assert.Contains(t, dup.Body.String(), "still in progress")

	close(release)
	assert.Equal(t, http.StatusCreated, <-done)
}

func TestIdempotencyScopesKeysPerUser(t *testing.T) {
	store, server := newReplayStore(t)
	calls := 0
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for range 2 {
		req := keyedRequest(http.MethodPost, "/api/transactions", "same-key", `{}`)
		req = req.WithContext(WithActor(req.Context(), auth.Actor{UserID: uuid.New(), Role: enums.RoleBuyer}))
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, 2, calls)
	assert.Len(t, server.Keys(), 2)
}

func TestIdempotencyRejectsOversizedKey(t *testing.T) {
	store, _ := newReplayStore(t)
	h := Idempotency(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("handler must not run")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, keyedRequest(http.MethodPost, "/api/transactions", strings.Repeat("k", maxIdempotencyKeyLen+1), `{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
