package core

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/valter-silva-au/tasker/internal/apiclient"
	"github.com/valter-silva-au/tasker/pkg/models"
)

func TestFetchTasks_ReplacesList(t *testing.T) {
	api := newFakeAPI()
	api.setTasks(newTask("1", models.StatusPending, nil), newTask("2", models.StatusCompleted, nil))
	events := &recordingEvents{}
	store := NewTaskStore(api, WithClock(fixedClock), WithEventLogger(events))

	if err := store.FetchTasks(context.Background()); err != nil {
		t.Fatalf("FetchTasks: %v", err)
	}

	snap := store.Snapshot()
	if len(snap.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(snap.Tasks))
	}
	if snap.Loading {
		t.Error("expected Loading false after fetch")
	}
	if snap.Err != "" {
		t.Errorf("expected no error, got %q", snap.Err)
	}
	if snap.Version != 1 {
		t.Errorf("Version = %d, want 1", snap.Version)
	}
	if !snap.FetchedAt.Equal(refTime) {
		t.Errorf("FetchedAt = %v, want %v", snap.FetchedAt, refTime)
	}
	if !events.has("task.fetched") {
		t.Error("expected task.fetched event")
	}
}

func TestFetchTasks_EmptyBody(t *testing.T) {
	api := newFakeAPI()
	store := NewTaskStore(api)

	if err := store.FetchTasks(context.Background()); err != nil {
		t.Fatalf("FetchTasks: %v", err)
	}
	snap := store.Snapshot()
	if snap.Tasks == nil || len(snap.Tasks) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", snap.Tasks)
	}
}

func TestFetchTasks_FailureKeepsPreviousList(t *testing.T) {
	api := newFakeAPI()
	api.setTasks(newTask("1", models.StatusPending, nil))
	store := NewTaskStore(api)
	ctx := context.Background()

	if err := store.FetchTasks(ctx); err != nil {
		t.Fatalf("first fetch: %v", err)
	}

	api.setError(http.MethodGet, tasksPath, apiErr(http.MethodGet, tasksPath, http.StatusInternalServerError, "database offline"))
	err := store.FetchTasks(ctx)
	if err == nil {
		t.Fatal("expected error")
	}
	if apiclient.StatusCode(err) != http.StatusInternalServerError {
		t.Errorf("expected wrapped APIError, got %v", err)
	}

	snap := store.Snapshot()
	if len(snap.Tasks) != 1 || snap.Tasks[0].ID != "1" {
		t.Errorf("previous list should stay in place, got %+v", snap.Tasks)
	}
	if snap.Err != "database offline" {
		t.Errorf("Err = %q, want server message", snap.Err)
	}
	if snap.Version != 1 {
		t.Errorf("Version = %d, want 1", snap.Version)
	}
}

func TestFetchTasks_TransportFailureUsesFallbackMessage(t *testing.T) {
	api := newFakeAPI()
	api.setError(http.MethodGet, tasksPath, &apiclient.TransportError{Method: "GET", Path: tasksPath, Err: errors.New("connection refused")})
	store := NewTaskStore(api)

	if err := store.FetchTasks(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if got := store.Snapshot().Err; got != "Failed to fetch tasks" {
		t.Errorf("Err = %q, want fallback", got)
	}
}

func TestFetchTasks_SuccessClearsError(t *testing.T) {
	api := newFakeAPI()
	api.setError(http.MethodGet, tasksPath, errors.New("boom"))
	store := NewTaskStore(api)
	ctx := context.Background()

	_ = store.FetchTasks(ctx)
	if store.Snapshot().Err == "" {
		t.Fatal("expected error to be recorded")
	}

	api.setError(http.MethodGet, tasksPath, nil)
	api.setTasks(newTask("1", models.StatusPending, nil))
	if err := store.FetchTasks(ctx); err != nil {
		t.Fatalf("FetchTasks: %v", err)
	}
	if got := store.Snapshot().Err; got != "" {
		t.Errorf("expected error cleared, got %q", got)
	}
}

func TestFetchTasks_LoadingWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	api := newFakeAPI()
	api.onFetch = func(ctx context.Context, n int) ([]models.Task, error) {
		<-release
		return nil, nil
	}
	store := NewTaskStore(api)

	var mu sync.Mutex
	var seen []bool
	store.Subscribe(func(s TaskSnapshot) {
		mu.Lock()
		seen = append(seen, s.Loading)
		mu.Unlock()
	})

	done := make(chan error)
	go func() { done <- store.FetchTasks(context.Background()) }()

	waitFor(t, func() bool { return store.Snapshot().Loading })
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("FetchTasks: %v", err)
	}

	if store.Snapshot().Loading {
		t.Error("expected Loading false after completion")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || !seen[0] || seen[1] {
		t.Errorf("expected loading notifications [true false], got %v", seen)
	}
}

// An older fetch that resolves after a newer one must not overwrite it.
func TestFetchTasks_OutOfOrderResponsesLatestWins(t *testing.T) {
	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})

	api := newFakeAPI()
	api.onFetch = func(ctx context.Context, n int) ([]models.Task, error) {
		if n == 1 {
			close(firstStarted)
			<-releaseFirst
			return []models.Task{newTask("old", models.StatusPending, nil)}, nil
		}
		return []models.Task{newTask("new", models.StatusPending, nil)}, nil
	}
	store := NewTaskStore(api)
	ctx := context.Background()

	firstDone := make(chan error)
	go func() { firstDone <- store.FetchTasks(ctx) }()
	<-firstStarted

	if err := store.FetchTasks(ctx); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if !store.Snapshot().Loading {
		t.Error("expected Loading while the first fetch is outstanding")
	}

	close(releaseFirst)
	if err := <-firstDone; err != nil {
		t.Fatalf("first fetch: %v", err)
	}

	snap := store.Snapshot()
	if len(snap.Tasks) != 1 || snap.Tasks[0].ID != "new" {
		t.Fatalf("expected latest response to win, got %+v", snap.Tasks)
	}
	if snap.Loading {
		t.Error("expected Loading false once both fetches finished")
	}
	if snap.Version != 1 {
		t.Errorf("Version = %d, want 1 (stale response not applied)", snap.Version)
	}
}

// A stale fetch's notification delivered after the newer fetch's must not
// roll subscribers back to the older list.
func TestFetchTasks_LateStaleNotificationDoesNotRollBackStats(t *testing.T) {
	xStarted, yStarted := make(chan struct{}), make(chan struct{})
	releaseX, releaseY := make(chan struct{}), make(chan struct{})

	api := newFakeAPI()
	api.onFetch = func(ctx context.Context, n int) ([]models.Task, error) {
		if n == 1 {
			close(xStarted)
			<-releaseX
			return []models.Task{}, nil
		}
		close(yStarted)
		<-releaseY
		return []models.Task{
			newTask("1", models.StatusPending, nil),
			newTask("2", models.StatusInProgress, nil),
			newTask("3", models.StatusCompleted, nil),
		}, nil
	}
	store := NewTaskStore(api)

	// Published order: X loading (1), Y loading (2), X stale result (3),
	// Y result (4). Hold delivery of 3 in a subscriber that runs before the
	// engine's.
	xHeld, releaseHeld := make(chan struct{}), make(chan struct{})
	var seqs []uint64
	var seqMu sync.Mutex
	store.Subscribe(func(s TaskSnapshot) {
		seqMu.Lock()
		seqs = append(seqs, s.Seq)
		seqMu.Unlock()
		if s.Seq == 3 {
			close(xHeld)
			<-releaseHeld
		}
	})
	engine := NewStatsEngine(store, 0, WithClock(fixedClock))
	defer engine.Close()
	var pushed []models.TaskStats
	engine.Subscribe(func(s models.TaskStats) { pushed = append(pushed, s) })

	ctx := context.Background()
	xDone, yDone := make(chan error), make(chan error)
	go func() { xDone <- store.FetchTasks(ctx) }()
	<-xStarted
	go func() { yDone <- store.FetchTasks(ctx) }()
	<-yStarted

	close(releaseX)
	<-xHeld
	close(releaseY)
	if err := <-yDone; err != nil {
		t.Fatalf("newer fetch: %v", err)
	}
	if got := engine.Stats().Total; got != 3 {
		t.Fatalf("after newer fetch: Total = %d, want 3", got)
	}

	close(releaseHeld)
	if err := <-xDone; err != nil {
		t.Fatalf("stale fetch: %v", err)
	}

	if got := engine.Stats().Total; got != 3 {
		t.Errorf("stats rolled back to the stale list: Total = %d, want 3", got)
	}
	if got := len(store.Snapshot().Tasks); got != 3 {
		t.Errorf("store holds %d tasks, want 3", got)
	}
	if len(pushed) != 1 || pushed[0].Total != 3 {
		t.Errorf("stats listeners saw %+v, want a single push of the newer list", pushed)
	}
	seqMu.Lock()
	defer seqMu.Unlock()
	if len(seqs) != 4 {
		t.Errorf("expected 4 published snapshots, got seqs %v", seqs)
	}
}

func TestFetchTasks_StaleFailureIgnored(t *testing.T) {
	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})

	api := newFakeAPI()
	api.onFetch = func(ctx context.Context, n int) ([]models.Task, error) {
		if n == 1 {
			close(firstStarted)
			<-releaseFirst
			return nil, errors.New("slow failure")
		}
		return []models.Task{newTask("1", models.StatusPending, nil)}, nil
	}
	store := NewTaskStore(api)
	ctx := context.Background()

	firstDone := make(chan error)
	go func() { firstDone <- store.FetchTasks(ctx) }()
	<-firstStarted
	if err := store.FetchTasks(ctx); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	close(releaseFirst)
	if err := <-firstDone; err == nil {
		t.Error("the caller of the failed fetch should still see its error")
	}

	if got := store.Snapshot().Err; got != "" {
		t.Errorf("stale failure must not set the error field, got %q", got)
	}
}

func TestTaskStore_CloseDropsLateResponses(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	api := newFakeAPI()
	api.onFetch = func(ctx context.Context, n int) ([]models.Task, error) {
		close(started)
		<-release
		return []models.Task{newTask("1", models.StatusPending, nil)}, nil
	}
	store := NewTaskStore(api)

	notified := 0
	store.Subscribe(func(TaskSnapshot) { notified++ })

	done := make(chan error)
	go func() { done <- store.FetchTasks(context.Background()) }()
	<-started
	store.Close()
	close(release)
	<-done

	if got := len(store.Snapshot().Tasks); got != 0 {
		t.Errorf("response after Close must be dropped, got %d tasks", got)
	}
	if notified != 1 {
		t.Errorf("expected only the loading notification before Close, got %d", notified)
	}
	if err := store.FetchTasks(context.Background()); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("expected ErrStoreClosed, got %v", err)
	}
}

func TestCreateTask_SuccessRefetchesOnce(t *testing.T) {
	api := newFakeAPI()
	api.setTasks(newTask("1", models.StatusPending, nil))
	events := &recordingEvents{}
	store := NewTaskStore(api, WithEventLogger(events))

	due := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	err := store.CreateTask(context.Background(), models.CreateTaskInput{
		Title:       "  Write report ",
		Description: "quarterly",
		DueDate:     &due,
	})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	posts := api.callsTo(http.MethodPost, tasksPath)
	if len(posts) != 1 {
		t.Fatalf("expected 1 POST, got %d", len(posts))
	}
	body := string(posts[0].Body)
	for _, want := range []string{`"title":"Write report"`, `"description":"quarterly"`, `"dueDate":"2026-04-01T00:00:00.000Z"`} {
		if !strings.Contains(body, want) {
			t.Errorf("POST body %s missing %s", body, want)
		}
	}
	if strings.Contains(body, `"id"`) || strings.Contains(body, `"createdAt"`) {
		t.Errorf("client must not send id or createdAt: %s", body)
	}

	if got := len(api.callsTo(http.MethodGet, tasksPath)); got != 1 {
		t.Errorf("expected exactly 1 refetch, got %d", got)
	}
	calls := api.allCalls()
	if calls[0].Method != http.MethodPost || calls[1].Method != http.MethodGet {
		t.Errorf("expected POST then GET, got %+v", calls)
	}
	if !events.has("task.created") {
		t.Error("expected task.created event")
	}
}

func TestCreateTask_FailureNoRefetch(t *testing.T) {
	api := newFakeAPI()
	api.setTasks(newTask("1", models.StatusPending, nil))
	store := NewTaskStore(api)
	ctx := context.Background()
	if err := store.FetchTasks(ctx); err != nil {
		t.Fatal(err)
	}

	api.setError(http.MethodPost, tasksPath, apiErr(http.MethodPost, tasksPath, http.StatusBadRequest, "Title is required"))
	err := store.CreateTask(ctx, models.CreateTaskInput{Title: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if apiclient.StatusCode(err) != http.StatusBadRequest {
		t.Errorf("expected APIError to be wrapped, got %v", err)
	}
	if got := len(api.callsTo(http.MethodGet, tasksPath)); got != 1 {
		t.Errorf("expected no refetch after failed create, GETs = %d", got)
	}
	snap := store.Snapshot()
	if len(snap.Tasks) != 1 || snap.Version != 1 {
		t.Errorf("list must be untouched, got %+v", snap)
	}
}

func TestCreateTask_ValidationSendsNothing(t *testing.T) {
	store := NewTaskStore(failingAPI{t})
	err := store.CreateTask(context.Background(), models.CreateTaskInput{Title: "   "})
	if !IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestCreateTask_RefetchFailureStillSucceeds(t *testing.T) {
	api := newFakeAPI()
	api.setError(http.MethodGet, tasksPath, apiErr(http.MethodGet, tasksPath, http.StatusBadGateway, ""))
	store := NewTaskStore(api)

	if err := store.CreateTask(context.Background(), models.CreateTaskInput{Title: "ok"}); err != nil {
		t.Fatalf("CreateTask should report success, got %v", err)
	}
	if got := store.Snapshot().Err; got != "Failed to fetch tasks" {
		t.Errorf("refetch failure should be visible in Err, got %q", got)
	}
}

func TestTaskStore_SnapshotIsCopy(t *testing.T) {
	api := newFakeAPI()
	api.setTasks(newTask("1", models.StatusPending, nil))
	store := NewTaskStore(api)
	if err := store.FetchTasks(context.Background()); err != nil {
		t.Fatal(err)
	}

	snap := store.Snapshot()
	snap.Tasks[0].Title = "mutated"

	if got, _ := store.Task("1"); got.Title != "task 1" {
		t.Errorf("store state changed through snapshot: %q", got.Title)
	}
}

func TestTaskStore_Unsubscribe(t *testing.T) {
	api := newFakeAPI()
	store := NewTaskStore(api)

	calls := 0
	unsubscribe := store.Subscribe(func(TaskSnapshot) { calls++ })
	_ = store.FetchTasks(context.Background())
	unsubscribe()
	unsubscribe()
	_ = store.FetchTasks(context.Background())

	if calls != 2 {
		t.Errorf("expected 2 notifications from the first fetch only, got %d", calls)
	}
}

func TestTaskStore_AgainstHTTPServer(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/api/TodoTask" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id": 7, "title": "numeric id", "description": "", "status": 1, "dueDate": "2026-03-11T09:00:00", "createdAt": "2026-03-01T10:00:00.1234567"},
			{"id": "b2", "title": "string id", "status": 2, "dueDate": null, "createdAt": "2026-03-02T10:00:00Z"}
		]`))
	}))
	defer srv.Close()

	client, err := apiclient.New(srv.URL+"/api", apiclient.WithTokenSource(apiclient.TokenFunc(func() (string, error) {
		return "tok", nil
	})))
	if err != nil {
		t.Fatal(err)
	}
	store := NewTaskStore(client)
	if err := store.FetchTasks(context.Background()); err != nil {
		t.Fatalf("FetchTasks: %v", err)
	}

	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	snap := store.Snapshot()
	if len(snap.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(snap.Tasks))
	}
	if snap.Tasks[0].ID != "7" || snap.Tasks[0].Status != models.StatusInProgress || !snap.Tasks[0].HasDueDate() {
		t.Errorf("unexpected first task: %+v", snap.Tasks[0])
	}
	if snap.Tasks[1].ID != "b2" || snap.Tasks[1].HasDueDate() {
		t.Errorf("unexpected second task: %+v", snap.Tasks[1])
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}
