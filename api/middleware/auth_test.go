package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/carbridge-backend/pkg/auth"
	"github.com/angelmondragon/carbridge-backend/pkg/auth/session"
	"github.com/angelmondragon/carbridge-backend/pkg/config"
	"github.com/angelmondragon/carbridge-backend/pkg/enums"
)

var (
	testJWT  = config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60}
	testAuth = config.AuthConfig{CookieName: "cb_session", AdminEmailDomains: []string{"carbridge.io"}}
)

type sessionCheck struct {
	live bool
	err  error
}

func (s sessionCheck) HasSession(context.Context, string, uuid.UUID) (bool, error) {
	return s.live && s.err == nil, s.err
}

func issue(t *testing.T, email string, role enums.Role, dealerID *uuid.UUID) string {
	t.Helper()
	token, err := auth.MintAccessToken(testJWT, time.Now(), auth.AccessTokenPayload{
		UserID:   uuid.New(),
		Email:    email,
		Role:     role,
		DealerID: dealerID,
		JTI:      session.NewAccessID(),
	})
	require.NoError(t, err)
	return token
}

// serveAuth runs req through Auth and returns the status plus the actor the
// downstream handler saw, if any.
func serveAuth(t *testing.T, sessions sessionCheck, req *http.Request) (int, *auth.Actor) {
	t.Helper()
	var seen *auth.Actor
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor, ok := ActorFromContext(r.Context()); ok {
			seen = &actor
		}
	})
	rec := httptest.NewRecorder()
	Auth(testJWT, testAuth, sessions, nil)(next).ServeHTTP(rec, req)
	return rec.Code, seen
}

func bearer(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestAuthRejects(t *testing.T) {
	buyerToken := issue(t, "buyer@example.com", enums.RoleBuyer, nil)
	cases := []struct {
		name     string
		req      *http.Request
		sessions sessionCheck
		status   int
	}{
		{"missing token", bearer(""), sessionCheck{live: true}, http.StatusUnauthorized},
		{"garbage token", bearer("invalid"), sessionCheck{live: true}, http.StatusUnauthorized},
		{"revoked session", bearer(buyerToken), sessionCheck{}, http.StatusUnauthorized},
		{"session store down", bearer(buyerToken), sessionCheck{err: errors.New("redis down")}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, actor := serveAuth(t, tc.sessions, tc.req)
			assert.Equal(t, tc.status, status)
			assert.Nil(t, actor)
		})
	}
}

func TestAuthBearerDealer(t *testing.T) {
	dealerID := uuid.New()
	status, actor := serveAuth(t, sessionCheck{live: true}, bearer(issue(t, "dealer@motors.example", enums.RoleDealer, &dealerID)))

	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, actor)
	assert.Equal(t, enums.RoleDealer, actor.Role)
	require.NotNil(t, actor.DealerID)
	assert.Equal(t, dealerID, *actor.DealerID)
}

func TestAuthCookieWinsOverHeader(t *testing.T) {
	req := bearer("garbage")
	req.AddCookie(&http.Cookie{Name: "cb_session", Value: issue(t, "buyer@example.com", enums.RoleBuyer, nil)})

	status, actor := serveAuth(t, sessionCheck{live: true}, req)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, enums.RoleBuyer, actor.Role)
}

func TestAuthPromotesAllowListedDomain(t *testing.T) {
	status, actor := serveAuth(t, sessionCheck{live: true}, bearer(issue(t, "ops@carbridge.io", enums.RoleBuyer, nil)))
	require.Equal(t, http.StatusOK, status)
	assert.True(t, actor.IsAdmin())
}

func TestSessionToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer  abc ")
	assert.Equal(t, "abc", SessionToken(req, "cb_session"))

	req.AddCookie(&http.Cookie{Name: "cb_session", Value: "from-cookie"})
	assert.Equal(t, "from-cookie", SessionToken(req, "cb_session"))
	assert.Equal(t, "abc", SessionToken(req, ""))
}

func TestRoleGuards(t *testing.T) {
	as := func(role enums.Role) context.Context {
		return WithActor(context.Background(), auth.Actor{UserID: uuid.New(), Role: role})
	}
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	admin := RequireAdmin(nil)(ok)
	buyerOrAdmin := RequireRole(nil, enums.RoleBuyer, enums.RoleAdmin)(ok)

	cases := []struct {
		name    string
		handler http.Handler
		ctx     context.Context
		status  int
	}{
		{"admin guard without actor", admin, context.Background(), http.StatusUnauthorized},
		{"admin guard with buyer", admin, as(enums.RoleBuyer), http.StatusForbidden},
		{"admin guard with admin", admin, as(enums.RoleAdmin), http.StatusOK},
		{"role guard with listed role", buyerOrAdmin, as(enums.RoleBuyer), http.StatusOK},
		{"role guard with other role", buyerOrAdmin, as(enums.RoleDealer), http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tc.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(tc.ctx))
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}
