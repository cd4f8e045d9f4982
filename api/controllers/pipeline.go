package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/carbridge-backend/api/responses"
	"github.com/angelmondragon/carbridge-backend/api/validators"
	"github.com/angelmondragon/carbridge-backend/internal/journey"
	"github.com/angelmondragon/carbridge-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/carbridge-backend/pkg/errors"
	"github.com/angelmondragon/carbridge-backend/pkg/logger"
)

const (
	pipelineViewOverview = "overview"
	pipelineViewDeals    = "deals"
	pipelineViewDeal     = "deal"
	pipelineViewMetrics  = "metrics"
)

type transitionDealRequest struct {
	ToState string `json:"to_state" validate:"required"`
	Note    string `json:"note,omitempty" validate:"max=1000"`
}

type createTaskRequest struct {
	AgentID string     `json:"agent_id" validate:"required"`
	Title   string     `json:"title" validate:"required,max=200"`
	DueAt   *time.Time `json:"due_at,omitempty"`
}

type journeyResponse struct {
	Success bool                 `json:"success"`
	Journey *journey.DealSummary `json:"journey"`
}

type taskResponse struct {
	Success bool             `json:"success"`
	Task    *journey.TaskDTO `json:"task"`
}

// AdminPipeline serves the overview, deals, deal and metrics views of the deal pipeline.
func AdminPipeline(svc journey.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pipeline service unavailable"))
			return
		}
		q := r.URL.Query()
		view := strings.ToLower(strings.TrimSpace(q.Get("view")))
		if view == "" {
			view = pipelineViewOverview
		}

		var (
			payload any
			err     error
		)
		switch view {
		case pipelineViewOverview:
			payload, err = svc.Overview(r.Context())
		case pipelineViewDeals:
			query := journey.DealsQuery{}
			if raw := strings.TrimSpace(q.Get("state")); raw != "" {
				state, parseErr := enums.ParseDealJourneyState(strings.ToUpper(raw))
				if parseErr != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid state").WithDetails(map[string]any{"field": "state"}))
					return
				}
				query.State = &state
			}
			page, parseErr := validators.ParsePagination(r)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, parseErr)
				return
			}
			query.Page = page.Page
			query.Limit = page.Limit
			payload, err = svc.Deals(r.Context(), query)
		case pipelineViewDeal:
			journeyID, parseErr := parseUUID(q.Get("journeyId"), "journeyId")
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, parseErr)
				return
			}
			payload, err = svc.DealDetail(r.Context(), journeyID)
		case pipelineViewMetrics:
			payload, err = svc.Metrics(r.Context(), q.Get("period"))
		default:
			err = pkgerrors.New(pkgerrors.CodeValidation, "invalid view").
				WithDetails(map[string]string{"view": "must be one of overview, deals, deal, metrics"})
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, payload)
	}
}

// AdminTransitionDeal moves a deal through the journey table by hand.
func AdminTransitionDeal(svc journey.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pipeline service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		journeyID, err := uuidParam(r, "journeyId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body transitionDealRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		toState, err := enums.ParseDealJourneyState(strings.ToUpper(strings.TrimSpace(body.ToState)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid to_state").WithDetails(map[string]any{"field": "to_state"}))
			return
		}

		deal, err := svc.Transition(r.Context(), actor, journey.TransitionInput{
			JourneyID: journeyID,
			ToState:   toState,
			Note:      body.Note,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, journeyResponse{Success: true, Journey: deal})
	}
}

// AdminCreateTask assigns a workflow task on a deal to an agent.
func AdminCreateTask(svc journey.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pipeline service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		journeyID, err := uuidParam(r, "journeyId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createTaskRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		agentID, err := parseUUID(body.AgentID, "agent_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		task, err := svc.CreateTask(r.Context(), actor, journey.CreateTaskInput{
			JourneyID: journeyID,
			AgentID:   agentID,
			Title:     validators.SanitizeString(body.Title, 200),
			DueAt:     body.DueAt,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, taskResponse{Success: true, Task: task})
	}
}

// AdminCompleteTask marks a workflow task completed.
func AdminCompleteTask(svc journey.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pipeline service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		taskID, err := uuidParam(r, "taskId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		task, err := svc.CompleteTask(r.Context(), actor, taskID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, taskResponse{Success: true, Task: task})
	}
}
