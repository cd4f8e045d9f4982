package journey

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/carbridge-backend/pkg/db/models"
	"github.com/angelmondragon/carbridge-backend/pkg/enums"
)

var metricPeriods = map[string]int{
	"7d":  7,
	"30d": 30,
	"90d": 90,
}

// DefaultMetricsPeriod is used when no period is requested.
const DefaultMetricsPeriod = "7d"

// ParsePeriod returns the number of days covered by period.
func ParsePeriod(period string) (string, int, error) {
	period = strings.TrimSpace(strings.ToLower(period))
	if period == "" {
		period = DefaultMetricsPeriod
	}
	days, ok := metricPeriods[period]
	if !ok {
		return "", 0, fmt.Errorf("period must be one of 7d, 30d, 90d")
	}
	return period, days, nil
}

// ConversionRate is next/prev as a percentage rounded to two decimals, or 0
// when prev is 0.
func ConversionRate(prev, next int64) float64 {
	if prev <= 0 {
		return 0
	}
	return round2(float64(next) / float64(prev) * 100)
}

func buildOverview(rows []StateAge, now time.Time) *Overview {
	counts := make(map[enums.DealJourneyState]int64)
	dwellTotal := make(map[enums.DealJourneyState]time.Duration)
	for _, row := range rows {
		counts[row.State]++
		if age := now.Sub(row.StateEnteredAt); age > 0 {
			dwellTotal[row.State] += age
		}
	}

	// A journey reached every stage up to the deepest one it entered, so lost
	// and refunded deals still count toward the stages they passed.
	pipeline := enums.JourneyPipeline
	reached := make([]int64, len(pipeline))
	for _, row := range rows {
		idx := max(row.State.PipelineIndex(), row.Furthest.PipelineIndex())
		for i := 0; i <= idx; i++ {
			reached[i]++
		}
	}

	avgDwell := make(map[enums.DealJourneyState]float64)
	for state, count := range counts {
		avgDwell[state] = round2(dwellTotal[state].Minutes() / float64(count))
	}

	overview := &Overview{
		Stages:          make([]StageSummary, 0, len(pipeline)),
		Conversions:     make([]Conversion, 0, len(pipeline)-1),
		AvgDwellMinutes: avgDwell,
	}
	for i, state := range pipeline {
		summary := StageSummary{
			State:           state,
			Count:           counts[state],
			Reached:         reached[i],
			AvgDwellMinutes: avgDwell[state],
		}
		if i+1 < len(pipeline) {
			rate := ConversionRate(reached[i], reached[i+1])
			summary.ConversionToNext = rate
			overview.Conversions = append(overview.Conversions, Conversion{
				From: state,
				To:   pipeline[i+1],
				Rate: rate,
			})
		}
		overview.Stages = append(overview.Stages, summary)
	}

	overview.Totals = Totals{
		Deals:     int64(len(rows)),
		Delivered: counts[enums.JourneyStateDelivered],
		Lost:      counts[enums.JourneyStateLost],
		Refunded:  counts[enums.JourneyStateRefunded],
	}
	overview.Totals.Active = overview.Totals.Deals - overview.Totals.Delivered - overview.Totals.Lost - overview.Totals.Refunded
	return overview
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// metricsWindow covers days whole UTC days ending with today.
func metricsWindow(now time.Time, days int) (time.Time, time.Time) {
	today := startOfDay(now)
	return today.AddDate(0, 0, -(days - 1)), today.AddDate(0, 0, 1)
}

func bucketDaily(events []models.DealJourneyEvent, from time.Time, days int) []DailyMetric {
	daily := make([]DailyMetric, days)
	index := make(map[string]int, days)
	for i := 0; i < days; i++ {
		date := from.AddDate(0, 0, i).Format("2006-01-02")
		daily[i] = DailyMetric{Date: date}
		index[date] = i
	}

	for _, event := range events {
		i, ok := index[event.OccurredAt.UTC().Format("2006-01-02")]
		if !ok {
			continue
		}
		switch {
		case event.EventType == enums.JourneyEventCreated:
			daily[i].NewDeals++
		case event.ToState == enums.JourneyStatePayment && (event.FromState == nil || *event.FromState != enums.JourneyStatePayment):
			daily[i].Conversions++
		}
	}
	return daily
}

func agentCompletion(tasks []models.WorkflowTask) []AgentMetric {
	byAgent := make(map[uuid.UUID]*AgentMetric)
	for _, task := range tasks {
		metric, ok := byAgent[task.AgentID]
		if !ok {
			metric = &AgentMetric{AgentID: task.AgentID}
			byAgent[task.AgentID] = metric
		}
		metric.Total++
		if task.Status == enums.WorkflowTaskCompleted {
			metric.Completed++
		}
	}

	out := make([]AgentMetric, 0, len(byAgent))
	for _, metric := range byAgent {
		metric.CompletionRate = ConversionRate(metric.Total, metric.Completed)
		out = append(out, *metric)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].AgentID.String() < out[j].AgentID.String()
	})
	return out
}
