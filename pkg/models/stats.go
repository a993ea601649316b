package models

// TaskStats holds aggregate counts derived from a task list. It is never
// persisted and is recomputed from the full list on every change.
type TaskStats struct {
	Total          int `json:"total"`
	Completed      int `json:"completed"`
	InProgress     int `json:"inProgress"`
	Pending        int `json:"pending"`
	Overdue        int `json:"overdue"`
	DueSoon        int `json:"dueSoon"`
	CompletionRate int `json:"completionRate"`
}

// DueState classifies a task relative to its deadline.
type DueState string

const (
	DueNone    DueState = "none"
	DueOverdue DueState = "overdue"
	DueSoon    DueState = "due-soon"
)
