package core

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/valter-silva-au/tasker/internal/apiclient"
	"github.com/valter-silva-au/tasker/pkg/models"
)

const (
	tasksPath          = "/TodoTask"
	fetchFailedMessage = "Failed to fetch tasks"
)

// TaskSnapshot is a copy of the task store state. Views read snapshots and
// never share the store's slice.
type TaskSnapshot struct {
	Tasks   []models.Task
	Loading bool
	// Err is the message of the last applied fetch failure, "" when the last
	// applied fetch succeeded.
	Err string
	// Version increments each time the task list is replaced.
	Version uint64
	// Seq increments with every published change. Notifications run outside
	// the store lock and may arrive out of order; subscribers drop a
	// snapshot whose Seq is lower than one they already applied.
	Seq       uint64
	FetchedAt time.Time
}

// TaskSource is what the statistics engine and the mutator need from the
// task store.
type TaskSource interface {
	Snapshot() TaskSnapshot
	Subscribe(fn func(TaskSnapshot)) (unsubscribe func())
	FetchTasks(ctx context.Context) error
	Task(id models.TaskID) (models.Task, bool)
}

// TaskStore caches the authenticated user's tasks. It is the only writer of
// the cached list.
type TaskStore struct {
	client APIClient
	deps

	mu        sync.Mutex
	tasks     []models.Task
	errMsg    string
	inflight  int
	issued    uint64
	version   uint64
	published uint64
	fetchedAt time.Time
	closed    bool

	listeners listenerSet[TaskSnapshot]
}

// NewTaskStore creates an empty TaskStore.
func NewTaskStore(client APIClient, opts ...Option) *TaskStore {
	return &TaskStore{
		client: client,
		deps:   newDeps(opts),
		tasks:  []models.Task{},
	}
}

// FetchTasks replaces the cached list with the server's. Concurrent fetches
// are allowed; a response is applied only if no later fetch was started
// before it arrived. A failure keeps the previous list and records the
// error message.
func (s *TaskStore) FetchTasks(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	s.issued++
	seq := s.issued
	s.inflight++
	snap := s.publishLocked()
	s.mu.Unlock()
	s.listeners.notify(snap)

	var tasks []models.Task
	err := s.client.Get(ctx, tasksPath, &tasks)

	s.mu.Lock()
	s.inflight--
	if s.closed {
		s.mu.Unlock()
		s.logger.Debug("dropping fetch response after close", "seq", seq)
		if err != nil {
			return fmt.Errorf("fetching tasks: %w", err)
		}
		return nil
	}
	latest := s.issued
	current := seq == latest
	if current {
		if err != nil {
			s.errMsg = apiclient.Message(err, fetchFailedMessage)
		} else {
			if tasks == nil {
				tasks = []models.Task{}
			}
			s.tasks = tasks
			s.errMsg = ""
			s.version++
			s.fetchedAt = s.now()
		}
	}
	snap = s.publishLocked()
	s.mu.Unlock()

	if !current {
		s.logger.Debug("discarding stale fetch response", "seq", seq, "latest", latest)
	}
	s.listeners.notify(snap)

	if err != nil {
		emit(s.events, s.logger, "task.fetch_failed", map[string]any{"error": err.Error(), "status": apiclient.StatusCode(err)})
		return fmt.Errorf("fetching tasks: %w", err)
	}
	if current {
		emit(s.events, s.logger, "task.fetched", map[string]any{"count": len(tasks)})
	}
	return nil
}

// CreateTask posts a new task and, on success, refetches the list once. A
// failed refetch is reported through the store's error field only.
func (s *TaskStore) CreateTask(ctx context.Context, in models.CreateTaskInput) error {
	if err := ValidateCreateTask(in); err != nil {
		return err
	}
	if s.isClosed() {
		return ErrStoreClosed
	}
	in.Title = strings.TrimSpace(in.Title)

	if err := s.client.Post(ctx, tasksPath, in, nil); err != nil {
		emit(s.events, s.logger, "task.mutation_failed", map[string]any{"op": "create", "error": err.Error()})
		return fmt.Errorf("creating task %q: %w", in.Title, err)
	}
	emit(s.events, s.logger, "task.created", map[string]any{"title": in.Title, "has_due_date": in.DueDate != nil})

	if err := s.FetchTasks(ctx); err != nil {
		s.logger.Warn("refreshing tasks after create", "error", err)
	}
	return nil
}

// Snapshot returns a copy of the current state.
func (s *TaskStore) Snapshot() TaskSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Task looks up a cached task by id.
func (s *TaskStore) Task(id models.TaskID) (models.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return models.Task{}, false
}

// Subscribe registers fn to receive a snapshot after every state change,
// including loading transitions. Concurrent fetches can deliver snapshots
// out of order; compare Seq.
func (s *TaskStore) Subscribe(fn func(TaskSnapshot)) (unsubscribe func()) {
	return s.listeners.add(fn)
}

// Close detaches all subscribers. Fetches still in flight complete but
// their responses are dropped.
func (s *TaskStore) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.listeners.clear()
}

func (s *TaskStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *TaskStore) snapshotLocked() TaskSnapshot {
	return TaskSnapshot{
		Tasks:     slices.Clone(s.tasks),
		Loading:   s.inflight > 0,
		Err:       s.errMsg,
		Version:   s.version,
		Seq:       s.published,
		FetchedAt: s.fetchedAt,
	}
}

// publishLocked stamps a new Seq for a snapshot about to be notified.
func (s *TaskStore) publishLocked() TaskSnapshot {
	s.published++
	return s.snapshotLocked()
}
