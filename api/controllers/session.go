package controllers

import (
	"net/http"

	"github.com/angelmondragon/carbridge-backend/api/middleware"
	"github.com/angelmondragon/carbridge-backend/api/responses"
	"github.com/angelmondragon/carbridge-backend/internal/auth"
	pkgAuth "github.com/angelmondragon/carbridge-backend/pkg/auth"
	"github.com/angelmondragon/carbridge-backend/pkg/config"
	"github.com/angelmondragon/carbridge-backend/pkg/errors"
	"github.com/angelmondragon/carbridge-backend/pkg/logger"
)

type logoutResponse struct {
	Success bool `json:"success"`
}

// AuthLogout revokes the session behind the presented token and clears the
// cookie. Expired tokens are accepted so stale sessions can still be closed.
func AuthLogout(svc auth.Service, cfg config.JWTConfig, authCfg config.AuthConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, errors.New(errors.CodeInternal, "auth service unavailable"))
			return
		}

		token := middleware.SessionToken(r, authCfg.CookieName)
		if token == "" {
			responses.WriteError(r.Context(), logg, w, errors.New(errors.CodeUnauthorized, "missing credentials"))
			return
		}

		claims, err := pkgAuth.ParseAccessTokenAllowExpired(cfg, token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, errors.Wrap(errors.CodeUnauthorized, err, "invalid token"))
			return
		}

		if claims.ID == "" {
			responses.WriteError(r.Context(), logg, w, errors.New(errors.CodeUnauthorized, "missing session id"))
			return
		}

		if err := svc.Logout(r.Context(), claims.ID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     authCfg.CookieName,
			Value:    "",
			Path:     "/",
			Domain:   authCfg.CookieDomain,
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   authCfg.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
		responses.WriteSuccess(w, logoutResponse{Success: true})
	}
}
