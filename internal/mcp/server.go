// Package mcp provides an MCP (Model Context Protocol) server that exposes
// the signed-in account's tasks as MCP tools for AI assistants.
package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/valter-silva-au/tasker/internal/core"
	"github.com/valter-silva-au/tasker/internal/observability"
	"github.com/valter-silva-au/tasker/pkg/models"
)

// TaskService is the part of the task store the tools read and create
// through.
type TaskService interface {
	FetchTasks(ctx context.Context) error
	Snapshot() core.TaskSnapshot
	Task(id models.TaskID) (models.Task, bool)
	CreateTask(ctx context.Context, in models.CreateTaskInput) error
}

// StatsService supplies aggregate counts.
type StatsService interface {
	Refresh(ctx context.Context) error
	Recompute() models.TaskStats
	DueSoonDays() int
}

// MutationService changes or removes existing tasks.
type MutationService interface {
	SetStatusByID(ctx context.Context, id models.TaskID, status models.TaskStatus) error
	Delete(ctx context.Context, id models.TaskID) error
}

// Services are the dependencies of the MCP server. Alerts may be nil; Now
// defaults to time.Now.
type Services struct {
	Tasks   TaskService
	Stats   StatsService
	Mutator MutationService
	Alerts  observability.AlertEngine
	Now     func() time.Time
}

// Server wraps the task services and exposes them as MCP tools.
type Server struct {
	server *gomcp.Server
	svc    Services
}

// NewServer creates a new MCP server backed by svc.
func NewServer(svc Services, version string) *Server {
	if version == "" {
		version = "dev"
	}
	if svc.Now == nil {
		svc.Now = time.Now
	}

	s := &Server{svc: svc}
	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "tasker", Version: version},
		nil,
	)
	s.registerTools()
	return s
}

// Run serves on stdio until the client disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type taskOutput struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	DueDate     string `json:"due_date,omitempty"`
	DueState    string `json:"due_state"`
	CreatedAt   string `json:"created_at,omitempty"`
}

type listTasksInput struct {
	Status string `json:"status,omitempty" jsonschema:"filter tasks by status (Pending, InProgress, Completed)"`
}

type listTasksOutput struct {
	Tasks []taskOutput `json:"tasks"`
	Count int          `json:"count"`
}

type getTaskInput struct {
	TaskID string `json:"task_id" jsonschema:"the task identifier"`
}

type getStatsInput struct{}

type statsOutput struct {
	Total          int `json:"total"`
	Completed      int `json:"completed"`
	InProgress     int `json:"in_progress"`
	Pending        int `json:"pending"`
	Overdue        int `json:"overdue"`
	DueSoon        int `json:"due_soon"`
	CompletionRate int `json:"completion_rate"`
	DueSoonDays    int `json:"due_soon_days"`
}

type getAlertsInput struct{}

type alertOutput struct {
	ID       string `json:"id"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	TaskID   string `json:"task_id,omitempty"`
}

type getAlertsOutput struct {
	Alerts []alertOutput `json:"alerts"`
	Count  int           `json:"count"`
}

type createTaskInput struct {
	Title       string `json:"title" jsonschema:"the task title, at most 200 characters"`
	Description string `json:"description,omitempty" jsonschema:"optional free-text description"`
	DueDate     string `json:"due_date,omitempty" jsonschema:"optional due date as YYYY-MM-DD or RFC 3339"`
}

type updateTaskStatusInput struct {
	TaskID string `json:"task_id" jsonschema:"the task identifier"`
	Status string `json:"status" jsonschema:"the new status (Pending, InProgress, Completed)"`
}

type deleteTaskInput struct {
	TaskID string `json:"task_id" jsonschema:"the task identifier"`
}

type messageOutput struct {
	Message string `json:"message"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_tasks",
		Description: "List the signed-in user's tasks with an optional status filter.",
	}, s.handleListTasks)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_task",
		Description: "Get one task by id, including its due state (none, overdue, due-soon).",
	}, s.handleGetTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_stats",
		Description: "Get task statistics: totals per status, overdue and due-soon counts, completion rate.",
	}, s.handleGetStats)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_alerts",
		Description: "Evaluate and return active alerts (overdue tasks, tasks due soon, repeated fetch failures).",
	}, s.handleGetAlerts)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "create_task",
		Description: "Create a new Pending task.",
	}, s.handleCreateTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "update_task_status",
		Description: "Change a task's status. Valid statuses: Pending, InProgress, Completed.",
	}, s.handleUpdateTaskStatus)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "delete_task",
		Description: "Delete a task by id.",
	}, s.handleDeleteTask)
}

// --- Tool handlers ---

func (s *Server) handleListTasks(ctx context.Context, _ *gomcp.CallToolRequest, input listTasksInput) (*gomcp.CallToolResult, listTasksOutput, error) {
	var filter *models.TaskStatus
	if input.Status != "" {
		status, err := models.ParseTaskStatus(input.Status)
		if err != nil {
			return errorResult(err.Error()), listTasksOutput{}, nil
		}
		filter = &status
	}

	if err := s.svc.Tasks.FetchTasks(ctx); err != nil {
		return errorResult(fmt.Sprintf("listing tasks: %s", err)), listTasksOutput{}, nil
	}

	now := s.svc.Now()
	out := listTasksOutput{Tasks: []taskOutput{}}
	for _, t := range s.svc.Tasks.Snapshot().Tasks {
		if filter != nil && t.Status != *filter {
			continue
		}
		out.Tasks = append(out.Tasks, s.taskToOutput(t, now))
	}
	out.Count = len(out.Tasks)
	return nil, out, nil
}

func (s *Server) handleGetTask(ctx context.Context, _ *gomcp.CallToolRequest, input getTaskInput) (*gomcp.CallToolResult, taskOutput, error) {
	id := models.TaskID(strings.TrimSpace(input.TaskID))
	if id == "" {
		return errorResult("task_id is required"), taskOutput{}, nil
	}
	if err := s.svc.Tasks.FetchTasks(ctx); err != nil {
		return errorResult(fmt.Sprintf("getting task %s: %s", id, err)), taskOutput{}, nil
	}
	task, ok := s.svc.Tasks.Task(id)
	if !ok {
		return errorResult(fmt.Sprintf("getting task %s: %s", id, core.ErrTaskNotFound)), taskOutput{}, nil
	}
	return nil, s.taskToOutput(task, s.svc.Now()), nil
}

func (s *Server) handleGetStats(ctx context.Context, _ *gomcp.CallToolRequest, _ getStatsInput) (*gomcp.CallToolResult, statsOutput, error) {
	if err := s.svc.Stats.Refresh(ctx); err != nil {
		return errorResult(fmt.Sprintf("computing statistics: %s", err)), statsOutput{}, nil
	}
	stats := s.svc.Stats.Recompute()
	return nil, statsOutput{
		Total:          stats.Total,
		Completed:      stats.Completed,
		InProgress:     stats.InProgress,
		Pending:        stats.Pending,
		Overdue:        stats.Overdue,
		DueSoon:        stats.DueSoon,
		CompletionRate: stats.CompletionRate,
		DueSoonDays:    s.svc.Stats.DueSoonDays(),
	}, nil
}

func (s *Server) handleGetAlerts(ctx context.Context, _ *gomcp.CallToolRequest, _ getAlertsInput) (*gomcp.CallToolResult, getAlertsOutput, error) {
	if s.svc.Alerts == nil {
		return errorResult("alert engine not available"), getAlertsOutput{}, nil
	}
	if err := s.svc.Tasks.FetchTasks(ctx); err != nil {
		return errorResult(fmt.Sprintf("fetching tasks: %s", err)), getAlertsOutput{}, nil
	}

	alerts, err := s.svc.Alerts.Evaluate(s.svc.Tasks.Snapshot().Tasks, s.svc.Now())
	if err != nil {
		return errorResult(fmt.Sprintf("evaluating alerts: %s", err)), getAlertsOutput{}, nil
	}

	out := getAlertsOutput{
		Alerts: make([]alertOutput, len(alerts)),
		Count:  len(alerts),
	}
	for i, a := range alerts {
		out.Alerts[i] = alertOutput{
			ID:       a.ID,
			Severity: string(a.Severity),
			Message:  a.Message,
			TaskID:   a.TaskID,
		}
	}
	return nil, out, nil
}

func (s *Server) handleCreateTask(ctx context.Context, _ *gomcp.CallToolRequest, input createTaskInput) (*gomcp.CallToolResult, messageOutput, error) {
	in := models.CreateTaskInput{
		Title:       input.Title,
		Description: input.Description,
	}
	if strings.TrimSpace(input.DueDate) != "" {
		due, err := models.ParseTimestamp(input.DueDate)
		if err != nil {
			return errorResult(fmt.Sprintf("invalid due_date: %s", err)), messageOutput{}, nil
		}
		in.DueDate = &due
	}
	if err := s.svc.Tasks.CreateTask(ctx, in); err != nil {
		return errorResult(fmt.Sprintf("creating task: %s", err)), messageOutput{}, nil
	}
	return nil, messageOutput{Message: fmt.Sprintf("task %q created", strings.TrimSpace(in.Title))}, nil
}

func (s *Server) handleUpdateTaskStatus(ctx context.Context, _ *gomcp.CallToolRequest, input updateTaskStatusInput) (*gomcp.CallToolResult, messageOutput, error) {
	id := models.TaskID(strings.TrimSpace(input.TaskID))
	if id == "" {
		return errorResult("task_id is required"), messageOutput{}, nil
	}
	status, err := models.ParseTaskStatus(input.Status)
	if err != nil {
		return errorResult(err.Error()), messageOutput{}, nil
	}
	if err := s.svc.Mutator.SetStatusByID(ctx, id, status); err != nil {
		return errorResult(fmt.Sprintf("updating task %s status: %s", id, err)), messageOutput{}, nil
	}
	return nil, messageOutput{Message: fmt.Sprintf("task %s status updated to %s", id, status)}, nil
}

func (s *Server) handleDeleteTask(ctx context.Context, _ *gomcp.CallToolRequest, input deleteTaskInput) (*gomcp.CallToolResult, messageOutput, error) {
	id := models.TaskID(strings.TrimSpace(input.TaskID))
	if id == "" {
		return errorResult("task_id is required"), messageOutput{}, nil
	}
	if err := s.svc.Mutator.Delete(ctx, id); err != nil {
		return errorResult(fmt.Sprintf("deleting task %s: %s", id, err)), messageOutput{}, nil
	}
	return nil, messageOutput{Message: fmt.Sprintf("task %s deleted", id)}, nil
}

// --- Helpers ---

func (s *Server) taskToOutput(t models.Task, now time.Time) taskOutput {
	days := core.DefaultDueSoonDays
	if s.svc.Stats != nil {
		days = s.svc.Stats.DueSoonDays()
	}
	out := taskOutput{
		ID:          string(t.ID),
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status.String(),
		DueState:    string(core.Classify(t, now, days)),
	}
	if t.HasDueDate() {
		out.DueDate = t.DueDate.UTC().Format(time.RFC3339)
	}
	if !t.CreatedAt.IsZero() {
		out.CreatedAt = t.CreatedAt.UTC().Format(time.RFC3339)
	}
	return out
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}
