package controllers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/carbridge-backend/api/responses"
	"github.com/angelmondragon/carbridge-backend/api/validators"
	"github.com/angelmondragon/carbridge-backend/pkg/db/models"
	"github.com/angelmondragon/carbridge-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/carbridge-backend/pkg/errors"
	"github.com/angelmondragon/carbridge-backend/pkg/logger"
	"github.com/angelmondragon/carbridge-backend/pkg/outbox"
)

// DeadLetterService is the operator surface over the outbox DLQ.
type DeadLetterService interface {
	List(ctx context.Context, filter outbox.DLQFilter) ([]models.OutboxDLQ, error)
	Replay(ctx context.Context, eventID uuid.UUID) error
}

type deadLetterDTO struct {
	EventID       uuid.UUID `json:"event_id"`
	EventType     string    `json:"event_type"`
	AggregateType string    `json:"aggregate_type"`
	AggregateID   uuid.UUID `json:"aggregate_id"`
	ErrorReason   string    `json:"error_reason"`
	ErrorMessage  *string   `json:"error_message,omitempty"`
	AttemptCount  int       `json:"attempt_count"`
	FailedAt      time.Time `json:"failed_at"`
}

type deadLettersResponse struct {
	DeadLetters []deadLetterDTO `json:"dead_letters"`
}

// AdminListDeadLetters lists terminal outbox failures, optionally filtered by
// reason and event_type.
func AdminListDeadLetters(svc DeadLetterService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dead letter service unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter := outbox.DLQFilter{Limit: limit}
		if raw := strings.TrimSpace(r.URL.Query().Get("reason")); raw != "" {
			reason, err := enums.ParseOutboxDLQErrorReason(strings.ToLower(raw))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reason").WithDetails(map[string]any{"field": "reason"}))
				return
			}
			filter.Reason = reason
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("event_type")); raw != "" {
			eventType, err := enums.ParseOutboxEventType(strings.ToLower(raw))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid event_type").WithDetails(map[string]any{"field": "event_type"}))
				return
			}
			filter.EventType = eventType
		}

		rows, err := svc.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list dead letters"))
			return
		}
		out := deadLettersResponse{DeadLetters: make([]deadLetterDTO, 0, len(rows))}
		for _, row := range rows {
			out.DeadLetters = append(out.DeadLetters, deadLetterDTO{
				EventID:       row.EventID,
				EventType:     string(row.EventType),
				AggregateType: string(row.AggregateType),
				AggregateID:   row.AggregateID,
				ErrorReason:   string(row.ErrorReason),
				ErrorMessage:  row.ErrorMessage,
				AttemptCount:  row.AttemptCount,
				FailedAt:      row.FailedAt,
			})
		}
		responses.WriteSuccess(w, out)
	}
}

// AdminReplayDeadLetter hands a dead-lettered event back to the publisher.
func AdminReplayDeadLetter(svc DeadLetterService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dead letter service unavailable"))
			return
		}
		eventID, err := uuidParam(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		switch err := svc.Replay(r.Context(), eventID); {
		case err == nil:
		case errors.Is(err, outbox.ErrDeadLetterNotFound):
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "dead letter not found"))
			return
		case errors.Is(err, outbox.ErrAlreadyPublished):
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "event already published"))
			return
		default:
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replay dead letter"))
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]any{"success": true, "event_id": eventID})
	}
}
