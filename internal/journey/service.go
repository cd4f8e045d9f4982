package journey

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/carbridge-backend/internal/audit"
	"github.com/angelmondragon/carbridge-backend/pkg/auth"
	"github.com/angelmondragon/carbridge-backend/pkg/db/models"
	"github.com/angelmondragon/carbridge-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/carbridge-backend/pkg/errors"
	"github.com/angelmondragon/carbridge-backend/pkg/pagination"
	"github.com/angelmondragon/carbridge-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type auditRecorder interface {
	Record(ctx context.Context, tx *gorm.DB, entry audit.Entry) error
}

// Service serves the admin pipeline board and its write actions.
type Service interface {
	Overview(ctx context.Context) (*Overview, error)
	Deals(ctx context.Context, query DealsQuery) (*DealsPage, error)
	DealDetail(ctx context.Context, journeyID uuid.UUID) (*DealDetail, error)
	Metrics(ctx context.Context, period string) (*Metrics, error)
	Transition(ctx context.Context, actor auth.Actor, input TransitionInput) (*DealSummary, error)
	CreateTask(ctx context.Context, actor auth.Actor, input CreateTaskInput) (*TaskDTO, error)
	CompleteTask(ctx context.Context, actor auth.Actor, taskID uuid.UUID) (*TaskDTO, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	recorder *Recorder
	audit    auditRecorder
	now      func() time.Time
}

// NewService builds the pipeline service.
func NewService(repo Repository, tx txRunner, recorder *Recorder, auditWriter auditRecorder) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("journey repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("journey recorder required")
	}
	if auditWriter == nil {
		return nil, fmt.Errorf("audit writer required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		recorder: recorder,
		audit:    auditWriter,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Overview(ctx context.Context) (*Overview, error) {
	rows, err := s.repo.ListStateAges(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pipeline")
	}
	return buildOverview(rows, s.now()), nil
}

func (s *service) Deals(ctx context.Context, query DealsQuery) (*DealsPage, error) {
	params := pagination.Normalize(pagination.Params{Page: query.Page, Limit: query.Limit})
	deals, total, err := s.repo.ListDeals(ctx, query.State, params.Limit, params.Offset())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list deals")
	}

	now := s.now()
	out := make([]DealSummary, 0, len(deals))
	for i := range deals {
		out = append(out, newDealSummary(&deals[i], now))
	}
	return &DealsPage{
		Deals:      out,
		Pagination: pagination.NewPage(params, total),
	}, nil
}

func (s *service) DealDetail(ctx context.Context, journeyID uuid.UUID) (*DealDetail, error) {
	if journeyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "journeyId is required")
	}
	journey, err := s.repo.FindByID(ctx, journeyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "deal not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load deal")
	}
	events, err := s.repo.ListEvents(ctx, journeyID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load deal timeline")
	}
	tasks, err := s.repo.ListTasks(ctx, journeyID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load deal tasks")
	}

	now := s.now()
	detail := &DealDetail{
		Deal:          newDealSummary(journey, now),
		TotalDuration: newDuration(now.Sub(journey.CreatedAt)),
		Timeline:      make([]EventDTO, 0, len(events)),
		Tasks:         make([]TaskDTO, 0, len(tasks)),
	}
	for _, event := range events {
		detail.Timeline = append(detail.Timeline, EventDTO{
			ID:         event.ID,
			EventType:  event.EventType,
			FromState:  event.FromState,
			ToState:    event.ToState,
			Payload:    event.Payload,
			ActorID:    event.ActorID,
			OccurredAt: event.OccurredAt,
		})
	}
	for i := range tasks {
		detail.Tasks = append(detail.Tasks, *newTaskDTO(&tasks[i]))
	}
	return detail, nil
}

func (s *service) Metrics(ctx context.Context, period string) (*Metrics, error) {
	period, days, err := ParsePeriod(period)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}
	from, to := metricsWindow(s.now(), days)

	events, err := s.repo.ListEventsBetween(ctx, from, to)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load journey events")
	}
	tasks, err := s.repo.ListTasksCreatedBetween(ctx, from, to)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load workflow tasks")
	}

	return &Metrics{
		Period: period,
		From:   from,
		To:     to,
		Daily:  bucketDaily(events, from, days),
		Agents: agentCompletion(tasks),
	}, nil
}

func (s *service) Transition(ctx context.Context, actor auth.Actor, input TransitionInput) (*DealSummary, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin access required")
	}
	if input.JourneyID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "journey id required")
	}
	if !input.ToState.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid to_state")
	}
	note := strings.TrimSpace(input.Note)

	var result *models.DealJourneyState
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		journey, err := s.repo.WithTx(tx).FindByID(ctx, input.JourneyID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "deal not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load deal")
		}
		from := journey.State

		actorID := actor.UserID
		if _, err := s.recorder.Transition(ctx, tx, journey, Step{
			To:        input.ToState,
			EventType: enums.JourneyEventManualTransition,
			ActorID:   &actorID,
			Payload:   types.JourneyEventPayload{Note: note},
		}); err != nil {
			return asDependency(err, "transition deal")
		}

		if err := s.audit.Record(ctx, tx, audit.Entry{
			Action:       enums.AuditJourneyTransitioned,
			ResourceType: enums.AuditResourceDealJourney,
			ResourceID:   journey.ID,
			Actor:        actor,
			Details: map[string]any{
				"from": from,
				"to":   input.ToState,
				"note": note,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write audit log")
		}
		result = journey
		return nil
	})
	if err != nil {
		return nil, err
	}
	summary := newDealSummary(result, s.now())
	return &summary, nil
}

func (s *service) CreateTask(ctx context.Context, actor auth.Actor, input CreateTaskInput) (*TaskDTO, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin access required")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if input.AgentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "agent_id is required")
	}

	task := &models.WorkflowTask{
		JourneyID: input.JourneyID,
		AgentID:   input.AgentID,
		Title:     title,
		Status:    enums.WorkflowTaskOpen,
		DueAt:     input.DueAt,
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.FindByID(ctx, input.JourneyID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "deal not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load deal")
		}
		if err := repo.CreateTask(ctx, task); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create task")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newTaskDTO(task), nil
}

func (s *service) CompleteTask(ctx context.Context, actor auth.Actor, taskID uuid.UUID) (*TaskDTO, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin access required")
	}

	var task *models.WorkflowTask
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := s.now()
		rows, err := repo.CompleteTask(ctx, taskID, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete task")
		}
		task, err = repo.FindTask(ctx, taskID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "task not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load task")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "task already closed")
		}

		journey, err := repo.FindByID(ctx, task.JourneyID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load deal")
		}
		actorID := actor.UserID
		taskRef := task.ID
		step := Step{EventType: enums.JourneyEventTaskCompleted, ActorID: &actorID}
		step.Payload.TaskID = &taskRef
		step.Payload.Note = task.Title
		if _, err := s.recorder.Note(ctx, tx, journey, step); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record task completion")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newTaskDTO(task), nil
}

// asDependency keeps typed errors and wraps everything else.
func asDependency(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
