package controllers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/carbridge-backend/api/responses"
	"github.com/angelmondragon/carbridge-backend/api/validators"
	"github.com/angelmondragon/carbridge-backend/internal/tracking"
	pkgerrors "github.com/angelmondragon/carbridge-backend/pkg/errors"
	"github.com/angelmondragon/carbridge-backend/pkg/logger"
)

const trackingHeartbeat = 15 * time.Second

type updateStageRequest struct {
	Status   string     `json:"status" validate:"required"`
	Location *string    `json:"location,omitempty"`
	ETA      *time.Time `json:"eta,omitempty"`
	Notes    *string    `json:"notes,omitempty"`
}

type stageResponse struct {
	Success bool               `json:"success"`
	Stage   *tracking.StageDTO `json:"stage"`
}

// GetTracking returns the ordered stage timeline of an escrow.
func GetTracking(svc tracking.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tracking service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		escrowID, err := uuidParam(r, "escrowId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		timeline, err := svc.Timeline(r.Context(), actor, escrowID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, timeline)
	}
}

// StreamTracking serves stage changes as Server-Sent Events. The current
// timeline is sent first as a snapshot event.
func StreamTracking(svc tracking.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tracking service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		escrowID, err := uuidParam(r, "escrowId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "streaming unsupported"))
			return
		}

		messages, closeSub, err := svc.Subscribe(ctx, actor, escrowID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		defer func() {
			if err := closeSub(); err != nil && logg != nil {
				logg.Warn(ctx, "tracking.stream.close_failed")
			}
		}()

		// subscribe before reading the snapshot so no change falls in between
		timeline, err := svc.Timeline(ctx, actor, escrowID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		headers := w.Header()
		headers.Set("Content-Type", "text/event-stream")
		headers.Set("Cache-Control", "no-cache")
		headers.Set("Connection", "keep-alive")
		headers.Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		if _, err := io.WriteString(w, "retry: 2000\n\n"); err != nil {
			return
		}
		snapshot, err := json.Marshal(timeline)
		if err != nil {
			return
		}
		if err := writeSSE(w, "snapshot", string(snapshot)); err != nil {
			return
		}
		flusher.Flush()

		if logg != nil {
			logg.Info(logg.WithField(ctx, "escrow_id", escrowID.String()), "tracking.stream.opened")
		}

		heartbeat := time.NewTicker(trackingHeartbeat)
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				if err := writeSSE(w, "stage_updated", msg); err != nil {
					return
				}
				flusher.Flush()
			case <-heartbeat.C:
				if _, err := io.WriteString(w, ": heartbeat\n\n"); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

// AdminUpdateTrackingStage moves one stage through its status table.
func AdminUpdateTrackingStage(svc tracking.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tracking service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		escrowID, err := uuidParam(r, "escrowId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body updateStageRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		stage, err := svc.UpdateStage(r.Context(), actor, tracking.UpdateInput{
			EscrowID:  escrowID,
			StageType: chi.URLParam(r, "stage"),
			Status:    body.Status,
			Location:  optionalString(body.Location),
			ETA:       body.ETA,
			Notes:     optionalString(body.Notes),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stageResponse{Success: true, Stage: stage})
	}
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
