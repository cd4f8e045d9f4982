package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/carbridge-backend/pkg/errors"
	"github.com/angelmondragon/carbridge-backend/pkg/types"
)

type memoryCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newMemoryCounter() *memoryCounter {
	return &memoryCounter{counts: map[string]int64{}}
}

func (m *memoryCounter) RateLimitKey(scope string) string { return "cb:rl:" + scope }

func (m *memoryCounter) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key]++
	return m.counts[key], nil
}

func loginRequest(body, remote string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	if remote != "" {
		req.RemoteAddr = remote
	}
	return req
}

func okHandler(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func TestAuthRateLimitPreservesBodyUnderLimit(t *testing.T) {
	var seen string
	handler := AuthRateLimit(NewAuthRateLimitPolicy("login", time.Minute, 2, 2), newMemoryCounter(), nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			seen = string(body)
		}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, loginRequest(`{"email":"buyer@example.com","password":"hunter22"}`, "1.2.3.4:5678"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"email":"buyer@example.com","password":"hunter22"}`, seen)
}

func TestAuthRateLimitBlocksOverLimit(t *testing.T) {
	cases := []struct {
		name    string
		ipLimit int
		email   int
		allowed int
		remotes []string
	}{
		{name: "by email across addresses", email: 2, allowed: 2, remotes: []string{"1.1.1.1:1", "2.2.2.2:2", "3.3.3.3:3"}},
		{name: "by ip", ipLimit: 1, allowed: 1, remotes: []string{"5.6.7.8:1234", "5.6.7.8:1234"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := AuthRateLimit(NewAuthRateLimitPolicy("login", time.Minute, tc.ipLimit, tc.email), newMemoryCounter(), nil)(http.HandlerFunc(okHandler))

			var last *httptest.ResponseRecorder
			for i, remote := range tc.remotes {
				last = httptest.NewRecorder()
				handler.ServeHTTP(last, loginRequest(`{"email":"blocked@example.com"}`, remote))
				if i < tc.allowed {
					require.Equal(t, http.StatusOK, last.Code, "attempt %d", i+1)
				}
			}

			require.Equal(t, http.StatusTooManyRequests, last.Code)
			assert.Equal(t, "60", last.Header().Get("Retry-After"))
			var payload types.ErrorEnvelope
			require.NoError(t, json.Unmarshal(last.Body.Bytes(), &payload))
			assert.Equal(t, string(pkgerrors.CodeRateLimit), payload.Code)
		})
	}
}

func TestAuthRateLimitKeys(t *testing.T) {
	counter := newMemoryCounter()
	policy := NewAuthRateLimitPolicy(" Login ", time.Minute, 5, 5)
	handler := AuthRateLimit(policy, counter, nil)(http.HandlerFunc(okHandler))

	req := loginRequest(`{"email":" Dealer@Example.com "}`, "")
	req.Header.Set("X-Forwarded-For", "198.51.100.4, 10.0.0.1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	emailKey := "cb:rl:login:email:" + hashValue("dealer@example.com")
	assert.Len(t, counter.counts, 2)
	assert.EqualValues(t, 1, counter.counts["cb:rl:login:ip:198.51.100.4"])
	assert.EqualValues(t, 1, counter.counts[emailKey])
}

func TestAuthRateLimitStoreFailure(t *testing.T) {
	counter := newMemoryCounter()
	counter.err = errors.New("redis down")
	handler := AuthRateLimit(NewAuthRateLimitPolicy("login", time.Minute, 5, 5), counter, nil)(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatal("handler must not run when the limiter fails")
		}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, loginRequest(`{"email":"a@b.co"}`, ""))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAuthRateLimitDisabled(t *testing.T) {
	policies := map[string]AuthRateLimitPolicy{
		"zero window": NewAuthRateLimitPolicy("login", 0, 1, 1),
		"zero limits": NewAuthRateLimitPolicy("login", time.Minute, 0, 0),
	}
	for name, policy := range policies {
		t.Run(name, func(t *testing.T) {
			counter := newMemoryCounter()
			rec := httptest.NewRecorder()
			AuthRateLimit(policy, counter, nil)(http.HandlerFunc(okHandler)).ServeHTTP(rec, loginRequest(`{}`, ""))
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Empty(t, counter.counts)
		})
	}
}
