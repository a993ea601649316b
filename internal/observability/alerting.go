package observability

import (
	"fmt"
	"slices"
	"time"

	"github.com/valter-silva-au/tasker/internal/core"
	"github.com/valter-silva-au/tasker/pkg/models"
)

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

// Alert represents a triggered alert condition.
type Alert struct {
	ID          string        `json:"id"`
	Condition   string        `json:"condition"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	TaskID      string        `json:"task_id,omitempty"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// AlertThresholds configures when alerts fire.
type AlertThresholds struct {
	DueSoonDays int `yaml:"due_soon_days" json:"due_soon_days"`
	// FetchFailures consecutive failed fetches within FetchWindow raise an
	// API alert.
	FetchFailures int           `yaml:"fetch_failures" json:"fetch_failures"`
	FetchWindow   time.Duration `yaml:"fetch_window" json:"fetch_window"`
}

// DefaultAlertThresholds returns the thresholds used when none are configured.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		DueSoonDays:   core.DefaultDueSoonDays,
		FetchFailures: 3,
		FetchWindow:   time.Hour,
	}
}

// AlertEngine evaluates alert conditions against the current task list and
// the recent event history.
type AlertEngine interface {
	Evaluate(tasks []models.Task, now time.Time) ([]Alert, error)
}

type alertEngine struct {
	eventLog   EventLog
	thresholds AlertThresholds
}

// NewAlertEngine creates an AlertEngine. eventLog may be nil, in which case
// only deadline alerts are produced.
func NewAlertEngine(eventLog EventLog, thresholds AlertThresholds) AlertEngine {
	if thresholds.DueSoonDays <= 0 {
		thresholds.DueSoonDays = core.DefaultDueSoonDays
	}
	return &alertEngine{eventLog: eventLog, thresholds: thresholds}
}

// Evaluate returns overdue alerts first, then due-soon alerts, each ordered
// by deadline, followed by API health alerts.
func (ae *alertEngine) Evaluate(tasks []models.Task, now time.Time) ([]Alert, error) {
	now = now.UTC()
	alerts := ae.checkDeadlines(tasks, now)

	apiAlerts, err := ae.checkFetchFailures(now)
	if err != nil {
		return nil, fmt.Errorf("checking fetch failures: %w", err)
	}
	return append(alerts, apiAlerts...), nil
}

func (ae *alertEngine) checkDeadlines(tasks []models.Task, now time.Time) []Alert {
	var overdue, dueSoon []models.Task
	for _, t := range tasks {
		switch core.Classify(t, now, ae.thresholds.DueSoonDays) {
		case models.DueOverdue:
			overdue = append(overdue, t)
		case models.DueSoon:
			dueSoon = append(dueSoon, t)
		}
	}
	byDue := func(a, b models.Task) int { return a.DueDate.Compare(*b.DueDate) }
	slices.SortStableFunc(overdue, byDue)
	slices.SortStableFunc(dueSoon, byDue)

	var alerts []Alert
	for _, t := range overdue {
		alerts = append(alerts, Alert{
			ID:          "overdue-" + t.ID.String(),
			Condition:   "task_overdue",
			Severity:    SeverityHigh,
			Message:     fmt.Sprintf("task %q was due %s", t.Title, t.DueDate.UTC().Format("2006-01-02 15:04")),
			TaskID:      t.ID.String(),
			TriggeredAt: now,
		})
	}
	for _, t := range dueSoon {
		alerts = append(alerts, Alert{
			ID:          "due-soon-" + t.ID.String(),
			Condition:   "task_due_soon",
			Severity:    SeverityMedium,
			Message:     fmt.Sprintf("task %q is due %s", t.Title, t.DueDate.UTC().Format("2006-01-02 15:04")),
			TaskID:      t.ID.String(),
			TriggeredAt: now,
		})
	}
	return alerts
}

// checkFetchFailures fires when the most recent fetches inside the window
// all failed.
func (ae *alertEngine) checkFetchFailures(now time.Time) ([]Alert, error) {
	if ae.eventLog == nil || ae.thresholds.FetchFailures <= 0 {
		return nil, nil
	}
	since := now.Add(-ae.thresholds.FetchWindow)
	events, err := ae.eventLog.Read(EventFilter{Since: &since, TypePrefix: "task.fetch"})
	if err != nil {
		return nil, err
	}

	failures := 0
	for _, e := range slices.Backward(events) {
		if e.Type != "task.fetch_failed" {
			break
		}
		failures++
	}
	if failures < ae.thresholds.FetchFailures {
		return nil, nil
	}
	return []Alert{{
		ID:          "api-unreachable",
		Condition:   "fetch_failing",
		Severity:    SeverityLow,
		Message:     fmt.Sprintf("the last %d task fetches failed", failures),
		TriggeredAt: now,
	}}, nil
}

// HighestSeverity returns the most urgent severity among alerts, or "" when
// there are none.
func HighestSeverity(alerts []Alert) AlertSeverity {
	rank := map[AlertSeverity]int{SeverityLow: 1, SeverityMedium: 2, SeverityHigh: 3}
	var best AlertSeverity
	for _, a := range alerts {
		if rank[a.Severity] > rank[best] {
			best = a.Severity
		}
	}
	return best
}
