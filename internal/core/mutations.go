package core

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/valter-silva-au/tasker/pkg/models"
)

// maxConcurrentMutations bounds the batch operations.
const maxConcurrentMutations = 4

func taskPath(id models.TaskID) string {
	return tasksPath + "/" + url.PathEscape(string(id))
}

// TaskMutator performs status changes and deletions. Nothing is changed
// locally; every successful call is followed by a refetch of the store.
type TaskMutator struct {
	client APIClient
	store  TaskSource
	deps
}

// NewTaskMutator creates a TaskMutator that refreshes store after each
// mutation.
func NewTaskMutator(client APIClient, store TaskSource, opts ...Option) *TaskMutator {
	return &TaskMutator{client: client, store: store, deps: newDeps(opts)}
}

// SetStatus replaces task on the server with only its status changed, then
// refetches.
func (m *TaskMutator) SetStatus(ctx context.Context, task models.Task, status models.TaskStatus) error {
	if err := m.putStatus(ctx, task, status); err != nil {
		return err
	}
	m.refresh(ctx)
	return nil
}

// SetStatusByID resolves the task from the store cache, fetching once when
// it is not cached, and calls SetStatus.
func (m *TaskMutator) SetStatusByID(ctx context.Context, id models.TaskID, status models.TaskStatus) error {
	task, err := m.resolve(ctx, id)
	if err != nil {
		return err
	}
	return m.SetStatus(ctx, task, status)
}

// Delete removes a task on the server, then refetches.
func (m *TaskMutator) Delete(ctx context.Context, id models.TaskID) error {
	if err := m.delete(ctx, id); err != nil {
		return err
	}
	m.refresh(ctx)
	return nil
}

// DeleteMany deletes every id concurrently and refetches once when all calls
// have finished, including after partial failure. The returned error joins
// every individual failure.
func (m *TaskMutator) DeleteMany(ctx context.Context, ids []models.TaskID) error {
	for _, id := range ids {
		if err := ValidateTaskID(id); err != nil {
			return err
		}
	}
	return m.batch(ctx, len(ids), func(ctx context.Context, i int) error {
		return m.delete(ctx, ids[i])
	})
}

// SetStatusMany changes the status of every id concurrently. Ids are
// resolved against the store first; unknown ids fail individually.
func (m *TaskMutator) SetStatusMany(ctx context.Context, ids []models.TaskID, status models.TaskStatus) error {
	if !status.Valid() {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %d", int(status))}
	}
	return m.batch(ctx, len(ids), func(ctx context.Context, i int) error {
		task, err := m.resolve(ctx, ids[i])
		if err != nil {
			return err
		}
		return m.putStatus(ctx, task, status)
	})
}

func (m *TaskMutator) batch(ctx context.Context, n int, call func(context.Context, int) error) error {
	if n == 0 {
		return nil
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g := new(errgroup.Group)
	g.SetLimit(maxConcurrentMutations)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := call(ctx, i); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	m.refresh(ctx)
	return errors.Join(errs...)
}

func (m *TaskMutator) putStatus(ctx context.Context, task models.Task, status models.TaskStatus) error {
	if err := ValidateTaskID(task.ID); err != nil {
		return err
	}
	if !status.Valid() {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %d", int(status))}
	}

	if err := m.client.Put(ctx, taskPath(task.ID), task.WithStatus(status), nil); err != nil {
		m.failed("set_status", task.ID, err)
		return fmt.Errorf("updating status of task %s: %w", task.ID, err)
	}
	emit(m.events, m.logger, "task.status_changed", map[string]any{
		"task_id":    task.ID.String(),
		"old_status": task.Status.String(),
		"new_status": status.String(),
	})
	return nil
}

func (m *TaskMutator) delete(ctx context.Context, id models.TaskID) error {
	if err := ValidateTaskID(id); err != nil {
		return err
	}
	if err := m.client.Delete(ctx, taskPath(id), nil); err != nil {
		m.failed("delete", id, err)
		return fmt.Errorf("deleting task %s: %w", id, err)
	}
	emit(m.events, m.logger, "task.deleted", map[string]any{"task_id": id.String()})
	return nil
}

func (m *TaskMutator) resolve(ctx context.Context, id models.TaskID) (models.Task, error) {
	if err := ValidateTaskID(id); err != nil {
		return models.Task{}, err
	}
	if task, ok := m.store.Task(id); ok {
		return task, nil
	}
	if err := m.store.FetchTasks(ctx); err != nil {
		return models.Task{}, fmt.Errorf("looking up task %s: %w", id, err)
	}
	if task, ok := m.store.Task(id); ok {
		return task, nil
	}
	return models.Task{}, fmt.Errorf("task %s: %w", id, ErrTaskNotFound)
}

func (m *TaskMutator) failed(op string, id models.TaskID, err error) {
	m.logger.Warn("task mutation failed", "op", op, "task_id", id, "error", err)
	emit(m.events, m.logger, "task.mutation_failed", map[string]any{
		"op":      op,
		"task_id": id.String(),
		"error":   err.Error(),
	})
}

// refresh refetches after a confirmed mutation. A refetch failure is left in
// the store's error field and does not fail the mutation.
func (m *TaskMutator) refresh(ctx context.Context) {
	if err := m.store.FetchTasks(ctx); err != nil {
		m.logger.Warn("refreshing tasks after mutation", "error", err)
	}
}
