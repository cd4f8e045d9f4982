package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/carbridge-backend/api/responses"
	"github.com/angelmondragon/carbridge-backend/pkg/config"
	"github.com/angelmondragon/carbridge-backend/pkg/logger"
)

const readinessTimeout = 2 * time.Second

// ReadinessCheck pings one backing dependency.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-CarBridge-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports ready only when every dependency answers.
func HealthReady(cfg *config.Config, logg *logger.Logger, checks ...ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-CarBridge-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		statuses := make(map[string]string, len(checks))
		ready := true
		for _, check := range checks {
			if err := check.Check(ctx); err != nil {
				ready = false
				statuses[check.Name] = "unavailable"
				if logg != nil {
					logg.Error(logg.WithField(ctx, "dependency", check.Name), "health.ready.failed", err)
				}
				continue
			}
			statuses[check.Name] = "ok"
		}

		if !ready {
			responses.WriteSuccessStatus(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "checks": statuses})
			return
		}
		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": statuses})
	}
}
