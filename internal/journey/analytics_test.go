package journey

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/carbridge-backend/pkg/db/models"
	"github.com/angelmondragon/carbridge-backend/pkg/enums"
)

func TestConversionRate(t *testing.T) {
	assert.Equal(t, 0.0, ConversionRate(0, 5))
	assert.Equal(t, 50.0, ConversionRate(4, 2))
	assert.Equal(t, 33.33, ConversionRate(3, 1))
	assert.Equal(t, 66.67, ConversionRate(3, 2))
}

func TestParsePeriod(t *testing.T) {
	period, days, err := ParsePeriod("")
	require.NoError(t, err)
	assert.Equal(t, "7d", period)
	assert.Equal(t, 7, days)

	_, days, err = ParsePeriod("90D")
	require.NoError(t, err)
	assert.Equal(t, 90, days)

	_, _, err = ParsePeriod("14d")
	require.Error(t, err)
}

func TestBuildOverviewCountsReachedStages(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	rows := []StateAge{
		{State: enums.JourneyStateLead, StateEnteredAt: now.Add(-30 * time.Minute)},
		{State: enums.JourneyStateLead, StateEnteredAt: now.Add(-90 * time.Minute)},
		{State: enums.JourneyStateQuote, StateEnteredAt: now.Add(-2 * time.Hour)},
		{State: enums.JourneyStatePayment, StateEnteredAt: now.Add(-time.Hour)},
		{State: enums.JourneyStateLost, StateEnteredAt: now.Add(-time.Hour)},
	}

	overview := buildOverview(rows, now)
	require.Len(t, overview.Stages, len(enums.JourneyPipeline))

	lead := overview.Stages[0]
	assert.Equal(t, int64(2), lead.Count)
	assert.Equal(t, int64(4), lead.Reached)
	assert.Equal(t, 60.0, lead.AvgDwellMinutes)

	assert.Equal(t, int64(2), overview.Stages[1].Reached)
	assert.Equal(t, 50.0, overview.Stages[0].ConversionToNext)
	assert.Equal(t, int64(2), overview.Stages[2].Reached)
	assert.Equal(t, int64(1), overview.Stages[4].Reached)
	assert.Equal(t, 0.0, overview.Stages[4].ConversionToNext)
	assert.Equal(t, 0.0, overview.Stages[5].ConversionToNext)

	require.Len(t, overview.Conversions, len(enums.JourneyPipeline)-1)
	assert.Equal(t, enums.JourneyStateLead, overview.Conversions[0].From)
	assert.Equal(t, 50.0, overview.Conversions[0].Rate)

	assert.Equal(t, int64(5), overview.Totals.Deals)
	assert.Equal(t, int64(1), overview.Totals.Lost)
	assert.Equal(t, int64(4), overview.Totals.Active)
}

func TestBuildOverviewCountsExitedDealsTowardStagesPassed(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	rows := []StateAge{
		{State: enums.JourneyStatePayment, StateEnteredAt: now},
		{State: enums.JourneyStateRefunded, StateEnteredAt: now, Furthest: enums.JourneyStateShipping},
		{State: enums.JourneyStateLost, StateEnteredAt: now, Furthest: enums.JourneyStateQuote},
		{State: enums.JourneyStateLost, StateEnteredAt: now},
	}

	overview := buildOverview(rows, now)
	reached := make([]int64, 0, len(overview.Stages))
	for _, stage := range overview.Stages {
		reached = append(reached, stage.Reached)
	}
	// LEAD, QUALIFICATION, QUOTE, DEPOSIT, PAYMENT, SHIPPING, DELIVERED
	assert.Equal(t, []int64{3, 3, 3, 2, 2, 1, 0}, reached)
	assert.Equal(t, 100.0, overview.Stages[3].ConversionToNext)
	assert.Equal(t, int64(1), overview.Totals.Refunded)
	assert.Equal(t, int64(2), overview.Totals.Lost)
}

func TestBuildOverviewEmptyBoard(t *testing.T) {
	overview := buildOverview(nil, time.Now())
	for _, stage := range overview.Stages {
		assert.Zero(t, stage.Count)
		assert.Zero(t, stage.ConversionToNext)
	}
	assert.Zero(t, overview.Totals.Deals)
}

func TestBucketDailyByUTCDay(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	from, to := metricsWindow(now, 7)
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), to)

	deposit := enums.JourneyStateDeposit
	payment := enums.JourneyStatePayment
	events := []models.DealJourneyEvent{
		{EventType: enums.JourneyEventCreated, ToState: enums.JourneyStateLead, OccurredAt: time.Date(2026, 3, 4, 0, 5, 0, 0, time.UTC)},
		{EventType: enums.JourneyEventCreated, ToState: enums.JourneyStateLead, OccurredAt: time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)},
		{EventType: enums.JourneyEventPaymentSucceeded, FromState: &deposit, ToState: payment, OccurredAt: time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)},
		{EventType: enums.JourneyEventPaymentFailed, FromState: &payment, ToState: payment, OccurredAt: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)},
		{EventType: enums.JourneyEventCreated, ToState: enums.JourneyStateLead, OccurredAt: time.Date(2026, 3, 3, 23, 0, 0, 0, time.UTC)},
	}

	daily := bucketDaily(events, from, 7)
	require.Len(t, daily, 7)
	assert.Equal(t, "2026-03-04", daily[0].Date)
	assert.Equal(t, int64(1), daily[0].NewDeals)
	assert.Equal(t, "2026-03-10", daily[6].Date)
	assert.Equal(t, int64(1), daily[6].NewDeals)
	assert.Equal(t, int64(1), daily[6].Conversions)
}

func TestAgentCompletion(t *testing.T) {
	agentA := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	agentB := uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	tasks := []models.WorkflowTask{
		{AgentID: agentA, Status: enums.WorkflowTaskCompleted},
		{AgentID: agentA, Status: enums.WorkflowTaskOpen},
		{AgentID: agentA, Status: enums.WorkflowTaskCompleted},
		{AgentID: agentB, Status: enums.WorkflowTaskCanceled},
	}

	metrics := agentCompletion(tasks)
	require.Len(t, metrics, 2)
	assert.Equal(t, agentA, metrics[0].AgentID)
	assert.Equal(t, int64(3), metrics[0].Total)
	assert.Equal(t, int64(2), metrics[0].Completed)
	assert.Equal(t, 66.67, metrics[0].CompletionRate)
	assert.Equal(t, 0.0, metrics[1].CompletionRate)
}
