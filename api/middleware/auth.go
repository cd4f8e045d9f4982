package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/carbridge-backend/api/responses"
	pkgAuth "github.com/angelmondragon/carbridge-backend/pkg/auth"
	"github.com/angelmondragon/carbridge-backend/pkg/auth/session"
	"github.com/angelmondragon/carbridge-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/carbridge-backend/pkg/errors"
	"github.com/angelmondragon/carbridge-backend/pkg/logger"
)

// SessionToken returns the JWT from the session cookie, falling back to the
// Authorization header.
func SessionToken(r *http.Request, cookieName string) string {
	if cookieName != "" {
		if cookie, err := r.Cookie(cookieName); err == nil {
			if value := strings.TrimSpace(cookie.Value); value != "" {
				return value
			}
		}
	}
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(raw), "bearer ") {
		raw = strings.TrimSpace(raw[7:])
	}
	return raw
}

// Auth validates the session token and seeds the request context with the actor.
func Auth(cfg config.JWTConfig, authCfg config.AuthConfig, verifier session.AccessSessionChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := SessionToken(r, authCfg.CookieName)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			if claims.ID == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing session id"))
				return
			}

			if verifier != nil {
				ok, err := verifier.HasSession(r.Context(), claims.ID, claims.UserID)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "validate session"))
					return
				}
				if !ok {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "session unavailable"))
					return
				}
			}

			actor := pkgAuth.ActorFromClaims(claims, authCfg.AdminEmailDomains, clientIP(r))
			actor.RequestID = RequestIDFromContext(r.Context())
			ctx := WithActor(r.Context(), actor)

			if logg != nil {
				ctx = logg.WithUserID(ctx, actor.UserID.String())
				ctx = logg.WithActorRole(ctx, string(actor.Role))
				if actor.DealerID != nil {
					ctx = logg.WithDealerID(ctx, actor.DealerID.String())
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
