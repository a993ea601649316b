package observability

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Event is one line of the activity log.
type Event struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"` // INFO, WARN, ERROR
	Type    string         `json:"type"`  // e.g. "task.created", "auth.login_failed"
	Message string         `json:"msg"`
	Data    map[string]any `json:"data,omitempty"`
}

// EventFilter selects events on Read. Zero fields match everything.
type EventFilter struct {
	Since *time.Time
	Until *time.Time
	Type  string
	// TypePrefix matches event families such as "auth.".
	TypePrefix string
	Level      string
	// Tail keeps only the last Tail matching events when positive.
	Tail int
}

// EventLog writes and reads activity events.
type EventLog interface {
	Write(event Event) error
	Read(filter EventFilter) ([]Event, error)
	Close() error
}

var eventMessages = map[string]string{
	"auth.login":           "logged in",
	"auth.login_failed":    "login rejected",
	"auth.logout":          "logged out",
	"auth.register":        "account registered",
	"task.fetched":         "task list fetched",
	"task.fetch_failed":    "task list fetch failed",
	"task.created":         "task created",
	"task.status_changed":  "task status changed",
	"task.deleted":         "task deleted",
	"task.mutation_failed": "task change rejected",
}

// NewEvent builds an event stamped with the current time. The level is
// WARN for failure events and INFO otherwise.
func NewEvent(eventType string, data map[string]any) Event {
	level := "INFO"
	if strings.HasSuffix(eventType, "_failed") {
		level = "WARN"
	}
	msg, ok := eventMessages[eventType]
	if !ok {
		msg = eventType
	}
	return Event{
		Time:    time.Now().UTC(),
		Level:   level,
		Type:    eventType,
		Message: msg,
		Data:    data,
	}
}

type jsonlEventLog struct {
	path string
	file *os.File
	mu   sync.Mutex
}

// NewJSONLEventLog opens (or creates) an append-only JSONL log at path. The
// file is private to the user since events carry account emails.
func NewJSONLEventLog(path string) (EventLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating event log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	return &jsonlEventLog{path: path, file: f}, nil
}

func (l *jsonlEventLog) Write(event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return fmt.Errorf("writing event: log is closed")
	}
	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	return nil
}

// Read scans the whole file. Malformed lines are skipped.
func (l *jsonlEventLog) Read(filter EventFilter) ([]Event, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening event log for reading: %w", err)
	}
	defer func() { _ = f.Close() }()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}
		if filter.matches(event) {
			events = append(events, event)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning event log: %w", err)
	}

	if filter.Tail > 0 && len(events) > filter.Tail {
		events = events[len(events)-filter.Tail:]
	}
	return events, nil
}

// Close is idempotent.
func (l *jsonlEventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("closing event log: %w", err)
	}
	return nil
}

func (f EventFilter) matches(event Event) bool {
	if f.Since != nil && event.Time.Before(*f.Since) {
		return false
	}
	if f.Until != nil && event.Time.After(*f.Until) {
		return false
	}
	if f.Type != "" && event.Type != f.Type {
		return false
	}
	if f.TypePrefix != "" && !strings.HasPrefix(event.Type, f.TypePrefix) {
		return false
	}
	if f.Level != "" && event.Level != f.Level {
		return false
	}
	return true
}
