package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TaskStatus represents the current lifecycle state of a task. It is encoded
// as its ordinal on the wire.
type TaskStatus int

const (
	StatusPending TaskStatus = iota
	StatusInProgress
	StatusCompleted
)

// AllStatuses lists every status in ordinal order.
var AllStatuses = []TaskStatus{StatusPending, StatusInProgress, StatusCompleted}

// String returns the display name of the status.
func (s TaskStatus) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusInProgress:
		return "InProgress"
	case StatusCompleted:
		return "Completed"
	default:
		return fmt.Sprintf("TaskStatus(%d)", int(s))
	}
}

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	return s >= StatusPending && s <= StatusCompleted
}

// ParseTaskStatus parses a status name or ordinal. Matching is
// case-insensitive and tolerates "in_progress", "in-progress" and "done".
func ParseTaskStatus(s string) (TaskStatus, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("_", "", "-", "", " ", "").Replace(norm)
	switch norm {
	case "pending", "0", "todo":
		return StatusPending, nil
	case "inprogress", "1", "started":
		return StatusInProgress, nil
	case "completed", "2", "done", "complete":
		return StatusCompleted, nil
	}
	return 0, fmt.Errorf("invalid status %q: must be one of Pending, InProgress, Completed", s)
}

// MarshalJSON encodes the status as its ordinal.
func (s TaskStatus) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Itoa(int(s))), nil
}

// UnmarshalJSON accepts the ordinal or the status name.
func (s *TaskStatus) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		parsed, err := ParseTaskStatus(name)
		if err != nil {
			return err
		}
		*s = parsed
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decoding task status: %w", err)
	}
	*s = TaskStatus(n)
	return nil
}

// TaskID is the opaque, server-assigned identifier of a task.
type TaskID string

// String returns the identifier text.
func (id TaskID) String() string { return string(id) }

// Task is one unit of work as held by the remote API.
type Task struct {
	ID          TaskID
	Title       string
	Description string
	Status      TaskStatus
	DueDate     *time.Time
	CreatedAt   time.Time

	// raw is the object as the server sent it. Fields the client does not
	// model are kept here and returned unchanged on replace. Only Status is
	// re-encoded from a decoded task; build a new Task to change the rest.
	raw map[string]json.RawMessage
}

// HasDueDate reports whether the task carries a deadline.
func (t Task) HasDueDate() bool {
	return t.DueDate != nil && !t.DueDate.IsZero()
}

// WithStatus returns a copy of t with only the status replaced.
func (t Task) WithStatus(status TaskStatus) Task {
	t.Status = status
	return t
}

type taskWire struct {
	ID          json.RawMessage `json:"id,omitempty"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Status      TaskStatus      `json:"status"`
	DueDate     *string         `json:"dueDate"`
	CreatedAt   string          `json:"createdAt,omitempty"`
}

// MarshalJSON encodes the full task payload as the remote API expects it.
// A task decoded from the server is re-encoded exactly as received, with
// only the status replaced.
func (t Task) MarshalJSON() ([]byte, error) {
	if t.raw != nil {
		return t.marshalRaw()
	}
	w := taskWire{
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
	}
	if t.ID != "" {
		raw, err := json.Marshal(string(t.ID))
		if err != nil {
			return nil, err
		}
		w.ID = raw
	}
	if t.HasDueDate() {
		s := FormatTimestamp(*t.DueDate)
		w.DueDate = &s
	}
	if !t.CreatedAt.IsZero() {
		w.CreatedAt = FormatTimestamp(t.CreatedAt)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a task, accepting string or numeric ids and the
// timestamp layouts produced by common backends.
func (t *Task) UnmarshalJSON(data []byte) error {
	var w taskWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	out := Task{
		Title:       w.Title,
		Description: w.Description,
		Status:      w.Status,
	}

	raw := bytes.TrimSpace(w.ID)
	switch {
	case len(raw) == 0 || bytes.Equal(raw, []byte("null")):
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("decoding task id: %w", err)
		}
		out.ID = TaskID(s)
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return fmt.Errorf("decoding task id: %w", err)
		}
		out.ID = TaskID(n.String())
	}

	if w.DueDate != nil && strings.TrimSpace(*w.DueDate) != "" {
		due, err := ParseTimestamp(*w.DueDate)
		if err != nil {
			return fmt.Errorf("decoding dueDate: %w", err)
		}
		out.DueDate = &due
	}
	if strings.TrimSpace(w.CreatedAt) != "" {
		created, err := ParseTimestamp(w.CreatedAt)
		if err != nil {
			return fmt.Errorf("decoding createdAt: %w", err)
		}
		out.CreatedAt = created
	}

	if err := json.Unmarshal(data, &out.raw); err != nil {
		return err
	}

	*t = out
	return nil
}

func (t Task) marshalRaw() ([]byte, error) {
	obj := make(map[string]json.RawMessage, len(t.raw)+1)
	key := "status"
	for k, v := range t.raw {
		if strings.EqualFold(k, "status") {
			key = k
		}
		obj[k] = v
	}
	status, err := t.Status.MarshalJSON()
	if err != nil {
		return nil, err
	}
	obj[key] = status
	return json.Marshal(obj)
}

// CreateTaskInput holds the client-supplied fields of a new task. The id and
// creation time are always assigned by the server.
type CreateTaskInput struct {
	Title       string
	Description string
	DueDate     *time.Time
}

// MarshalJSON encodes the creation payload, omitting an unset due date.
func (in CreateTaskInput) MarshalJSON() ([]byte, error) {
	w := struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		DueDate     string `json:"dueDate,omitempty"`
	}{
		Title:       in.Title,
		Description: in.Description,
	}
	if in.DueDate != nil && !in.DueDate.IsZero() {
		w.DueDate = FormatTimestamp(*in.DueDate)
	}
	return json.Marshal(w)
}

// timestampLayouts are tried in order by ParseTimestamp. Layouts without a
// zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses the timestamp formats accepted on the wire.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// FormatTimestamp renders t in UTC with millisecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
