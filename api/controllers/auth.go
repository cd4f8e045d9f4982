package controllers

import (
	"net/http"

	"github.com/angelmondragon/carbridge-backend/api/responses"
	"github.com/angelmondragon/carbridge-backend/api/validators"
	"github.com/angelmondragon/carbridge-backend/internal/auth"
	"github.com/angelmondragon/carbridge-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/carbridge-backend/pkg/errors"
	"github.com/angelmondragon/carbridge-backend/pkg/logger"
)

// AuthLogin authenticates the caller and sets the session cookie.
func AuthLogin(svc auth.Service, authCfg config.AuthConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			err := pkgerrors.New(pkgerrors.CodeInternal, "auth service unavailable")
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body auth.LoginRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Login(r.Context(), body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     authCfg.CookieName,
			Value:    result.Token,
			Path:     "/",
			Domain:   authCfg.CookieDomain,
			Expires:  result.ExpiresAt,
			HttpOnly: true,
			Secure:   authCfg.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
		responses.WriteSuccess(w, result)
	}
}
