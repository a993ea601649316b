package core

import "log/slog"

// EventLogger is the subset of the observability event log that core
// services need. Defining it here avoids importing the observability package.
type EventLogger interface {
	LogEvent(eventType string, data map[string]any) error
}

type nopEventLogger struct{}

func (nopEventLogger) LogEvent(string, map[string]any) error { return nil }

// emit records an event. Event log failures never fail the operation that
// produced them; they are only traced.
func emit(events EventLogger, logger *slog.Logger, eventType string, data map[string]any) {
	if err := events.LogEvent(eventType, data); err != nil {
		logger.Debug("event log write failed", "type", eventType, "error", err)
	}
}
