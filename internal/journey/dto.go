package journey

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/carbridge-backend/pkg/db/models"
	"github.com/angelmondragon/carbridge-backend/pkg/enums"
	"github.com/angelmondragon/carbridge-backend/pkg/pagination"
	"github.com/angelmondragon/carbridge-backend/pkg/types"
)

// Duration is reported in both minutes and hours.
type Duration struct {
	Minutes int64   `json:"minutes"`
	Hours   float64 `json:"hours"`
}

func newDuration(d time.Duration) Duration {
	if d < 0 {
		d = 0
	}
	return Duration{
		Minutes: int64(d / time.Minute),
		Hours:   round2(d.Hours()),
	}
}

// StageSummary is one pipeline stage in the overview.
type StageSummary struct {
	State            enums.DealJourneyState `json:"state"`
	Count            int64                  `json:"count"`
	Reached          int64                  `json:"reached"`
	ConversionToNext float64                `json:"conversionToNext"`
	AvgDwellMinutes  float64                `json:"avgDwellMinutes"`
}

// Conversion is the stage-to-stage conversion percentage.
type Conversion struct {
	From enums.DealJourneyState `json:"from"`
	To   enums.DealJourneyState `json:"to"`
	Rate float64                `json:"rate"`
}

// Totals summarises the whole board.
type Totals struct {
	Deals     int64 `json:"deals"`
	Active    int64 `json:"active"`
	Delivered int64 `json:"delivered"`
	Lost      int64 `json:"lost"`
	Refunded  int64 `json:"refunded"`
}

// Overview is the pipeline board.
type Overview struct {
	Stages          []StageSummary                     `json:"stages"`
	Conversions     []Conversion                       `json:"conversions"`
	Totals          Totals                             `json:"totals"`
	AvgDwellMinutes map[enums.DealJourneyState]float64 `json:"avgDwellMinutes"`
}

// DealSummary is a journey row with its time in the current state.
type DealSummary struct {
	ID                     uuid.UUID              `json:"id"`
	ListingID              uuid.UUID              `json:"listingId"`
	BuyerID                uuid.UUID              `json:"buyerId"`
	DealerID               uuid.UUID              `json:"dealerId"`
	TransactionID          *uuid.UUID             `json:"transactionId,omitempty"`
	EscrowID               *uuid.UUID             `json:"escrowId,omitempty"`
	AgentID                *uuid.UUID             `json:"agentId,omitempty"`
	State                  enums.DealJourneyState `json:"state"`
	StateEnteredAt         time.Time              `json:"stateEnteredAt"`
	CreatedAt              time.Time              `json:"createdAt"`
	DurationInCurrentState Duration               `json:"durationInCurrentState"`
}

func newDealSummary(j *models.DealJourneyState, now time.Time) DealSummary {
	return DealSummary{
		ID:                     j.ID,
		ListingID:              j.ListingID,
		BuyerID:                j.BuyerID,
		DealerID:               j.DealerID,
		TransactionID:          j.TransactionID,
		EscrowID:               j.EscrowID,
		AgentID:                j.AgentID,
		State:                  j.State,
		StateEnteredAt:         j.StateEnteredAt,
		CreatedAt:              j.CreatedAt,
		DurationInCurrentState: newDuration(now.Sub(j.StateEnteredAt)),
	}
}

// DealsQuery filters the deals view.
type DealsQuery struct {
	State *enums.DealJourneyState
	Page  int
	Limit int
}

// DealsPage is one page of the deals view.
type DealsPage struct {
	Deals      []DealSummary   `json:"deals"`
	Pagination pagination.Page `json:"pagination"`
}

// EventDTO is one entry of a deal timeline.
type EventDTO struct {
	ID         uuid.UUID                 `json:"id"`
	EventType  enums.JourneyEventType    `json:"eventType"`
	FromState  *enums.DealJourneyState   `json:"fromState,omitempty"`
	ToState    enums.DealJourneyState    `json:"toState"`
	Payload    types.JourneyEventPayload `json:"payload"`
	ActorID    *uuid.UUID                `json:"actorId,omitempty"`
	OccurredAt time.Time                 `json:"occurredAt"`
}

// TaskDTO is a workflow task.
type TaskDTO struct {
	ID          uuid.UUID                `json:"id"`
	JourneyID   uuid.UUID                `json:"journeyId"`
	AgentID     uuid.UUID                `json:"agentId"`
	Title       string                   `json:"title"`
	Status      enums.WorkflowTaskStatus `json:"status"`
	DueAt       *time.Time               `json:"dueAt,omitempty"`
	CompletedAt *time.Time               `json:"completedAt,omitempty"`
	CreatedAt   time.Time                `json:"createdAt"`
}

func newTaskDTO(t *models.WorkflowTask) *TaskDTO {
	return &TaskDTO{
		ID:          t.ID,
		JourneyID:   t.JourneyID,
		AgentID:     t.AgentID,
		Title:       t.Title,
		Status:      t.Status,
		DueAt:       t.DueAt,
		CompletedAt: t.CompletedAt,
		CreatedAt:   t.CreatedAt,
	}
}

// DealDetail is the drill-down for a single journey.
type DealDetail struct {
	Deal          DealSummary `json:"deal"`
	TotalDuration Duration    `json:"totalDuration"`
	Timeline      []EventDTO  `json:"timeline"`
	Tasks         []TaskDTO   `json:"tasks"`
}

// DailyMetric is one UTC day bucket.
type DailyMetric struct {
	Date        string `json:"date"`
	NewDeals    int64  `json:"newDeals"`
	Conversions int64  `json:"conversions"`
}

// AgentMetric is the task completion ratio of one agent.
type AgentMetric struct {
	AgentID        uuid.UUID `json:"agentId"`
	Total          int64     `json:"total"`
	Completed      int64     `json:"completed"`
	CompletionRate float64   `json:"completionRate"`
}

// Metrics is the time series view.
type Metrics struct {
	Period string        `json:"period"`
	From   time.Time     `json:"from"`
	To     time.Time     `json:"to"`
	Daily  []DailyMetric `json:"daily"`
	Agents []AgentMetric `json:"agents"`
}

// TransitionInput is a manual admin transition.
type TransitionInput struct {
	JourneyID uuid.UUID
	ToState   enums.DealJourneyState
	Note      string
}

// CreateTaskInput assigns a task to an agent.
type CreateTaskInput struct {
	JourneyID uuid.UUID
	AgentID   uuid.UUID
	Title     string
	DueAt     *time.Time
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
