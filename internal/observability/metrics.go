package observability

import (
	"fmt"
	"time"

	"github.com/valter-silva-au/tasker/pkg/models"
)

// Metrics summarises client activity recorded in the event log.
type Metrics struct {
	Logins           int            `json:"logins"`
	LoginFailures    int            `json:"login_failures"`
	Logouts          int            `json:"logouts"`
	Registrations    int            `json:"registrations"`
	Fetches          int            `json:"fetches"`
	FetchFailures    int            `json:"fetch_failures"`
	TasksCreated     int            `json:"tasks_created"`
	TasksCompleted   int            `json:"tasks_completed"`
	TasksDeleted     int            `json:"tasks_deleted"`
	StatusChanges    int            `json:"status_changes"`
	TasksByStatus    map[string]int `json:"tasks_by_status"`
	MutationFailures int            `json:"mutation_failures"`
	EventCount       int            `json:"event_count"`
	OldestEvent      *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent      *time.Time     `json:"newest_event,omitempty"`
}

// FetchSuccessRate returns the percentage of fetches that succeeded, or 100
// when nothing was fetched.
func (m *Metrics) FetchSuccessRate() int {
	total := m.Fetches + m.FetchFailures
	if total == 0 {
		return 100
	}
	return m.Fetches * 100 / total
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator creates a MetricsCalculator reading from eventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

// Calculate aggregates every event recorded at or after since.
func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{TasksByStatus: make(map[string]int)}
	m.EventCount = len(events)

	for i, event := range events {
		if i == 0 {
			t := event.Time
			m.OldestEvent = &t
		}
		t := event.Time
		m.NewestEvent = &t

		switch event.Type {
		case "auth.login":
			m.Logins++
		case "auth.login_failed":
			m.LoginFailures++
		case "auth.logout":
			m.Logouts++
		case "auth.register":
			m.Registrations++
		case "task.fetched":
			m.Fetches++
		case "task.fetch_failed":
			m.FetchFailures++
		case "task.created":
			m.TasksCreated++
		case "task.deleted":
			m.TasksDeleted++
		case "task.mutation_failed":
			m.MutationFailures++
		case "task.status_changed":
			m.StatusChanges++
			if status, ok := event.Data["new_status"].(string); ok {
				m.TasksByStatus[status]++
				if status == models.StatusCompleted.String() {
					m.TasksCompleted++
				}
			}
		}
	}

	return m, nil
}
