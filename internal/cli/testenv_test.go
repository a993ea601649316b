package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/valter-silva-au/tasker/internal/apiclient"
	"github.com/valter-silva-au/tasker/internal/core"
	"github.com/valter-silva-au/tasker/internal/observability"
	"github.com/valter-silva-au/tasker/internal/storage"
	"github.com/valter-silva-au/tasker/pkg/models"
)

const (
	testToken    = "tok-1"
	testPassword = "secret"
)

// testNow is the fixed clock used by command tests.
var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// taskAPI is an in-memory task service speaking the remote API's wire format.
type taskAPI struct {
	mu        sync.Mutex
	tasks     []models.Task
	nextID    int
	failFetch bool
	requests  []string
}

func (a *taskAPI) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", a.login)
	mux.HandleFunc("POST /api/auth/register", a.register)
	mux.HandleFunc("GET /api/TodoTask", a.authed(a.list))
	mux.HandleFunc("POST /api/TodoTask", a.authed(a.create))
	mux.HandleFunc("PUT /api/TodoTask/{id}", a.authed(a.replace))
	mux.HandleFunc("DELETE /api/TodoTask/{id}", a.authed(a.remove))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		a.mu.Lock()
		a.requests = append(a.requests, r.Method+" "+strings.TrimPrefix(r.URL.Path, "/api"))
		a.mu.Unlock()
		mux.ServeHTTP(w, r)
	})
}

func (a *taskAPI) count(request string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, r := range a.requests {
		if r == request {
			n++
		}
	}
	return n
}

func (a *taskAPI) snapshot() []models.Task {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.tasks)
}

func (a *taskAPI) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testToken {
			writeStatus(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
			return
		}
		next(w, r)
	}
}

func (a *taskAPI) login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Password != testPassword {
		writeStatus(w, http.StatusUnauthorized, map[string]string{"message": "Invalid credentials"})
		return
	}
	writeStatus(w, http.StatusOK, map[string]any{
		"token": testToken,
		"user":  map[string]any{"id": 7, "email": req.Email, "role": "User"},
	})
}

func (a *taskAPI) register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Email == "taken@example.com" {
		writeStatus(w, http.StatusConflict, map[string]string{"message": "Email already registered"})
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (a *taskAPI) list(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	fail := a.failFetch
	tasks := slices.Clone(a.tasks)
	a.mu.Unlock()
	if fail {
		writeStatus(w, http.StatusInternalServerError, map[string]string{"message": "database offline"})
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	writeStatus(w, http.StatusOK, tasks)
}

func (a *taskAPI) create(w http.ResponseWriter, r *http.Request) {
	var in models.Task
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeStatus(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	a.mu.Lock()
	a.nextID++
	task := models.Task{
		ID:          models.TaskID(strconv.Itoa(a.nextID)),
		Title:       in.Title,
		Description: in.Description,
		Status:      models.StatusPending,
		DueDate:     in.DueDate,
		CreatedAt:   testNow,
	}
	a.tasks = append(a.tasks, task)
	a.mu.Unlock()
	writeStatus(w, http.StatusCreated, task)
}

func (a *taskAPI) replace(w http.ResponseWriter, r *http.Request) {
	var task models.Task
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		writeStatus(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	id := models.TaskID(r.PathValue("id"))
	a.mu.Lock()
	defer a.mu.Unlock()
	i := slices.IndexFunc(a.tasks, func(t models.Task) bool { return t.ID == id })
	if i < 0 {
		writeStatus(w, http.StatusNotFound, map[string]string{"message": "Task not found"})
		return
	}
	a.tasks[i] = task
	w.WriteHeader(http.StatusNoContent)
}

func (a *taskAPI) remove(w http.ResponseWriter, r *http.Request) {
	id := models.TaskID(r.PathValue("id"))
	a.mu.Lock()
	defer a.mu.Unlock()
	i := slices.IndexFunc(a.tasks, func(t models.Task) bool { return t.ID == id })
	if i < 0 {
		writeStatus(w, http.StatusNotFound, map[string]string{"message": "Task not found"})
		return
	}
	a.tasks = slices.Delete(a.tasks, i, i+1)
	w.WriteHeader(http.StatusNoContent)
}

func writeStatus(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// seed adds a task with the given id, status and optional due date.
func (a *taskAPI) seed(title string, status models.TaskStatus, due *time.Time) models.TaskID {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	id := models.TaskID(strconv.Itoa(a.nextID))
	a.tasks = append(a.tasks, models.Task{ID: id, Title: title, Status: status, DueDate: due, CreatedAt: testNow.Add(-time.Hour)})
	return id
}

type testEnv struct {
	api      *taskAPI
	creds    *storage.MemoryCredentialStore
	eventLog observability.EventLog
}

// setupCLI points the package-level services at a fresh in-memory API. When
// loggedIn is set the credential store starts with a valid token.
func setupCLI(t *testing.T, loggedIn bool) *testEnv {
	t.Helper()

	api := &taskAPI{}
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	token := ""
	if loggedIn {
		token = testToken
	}
	creds := storage.NewMemoryCredentialStore(token)
	client, err := apiclient.New(srv.URL+"/api", apiclient.WithTokenSource(apiclient.TokenFunc(creds.Load)))
	if err != nil {
		t.Fatalf("creating client: %v", err)
	}

	eventLog, err := observability.NewJSONLEventLog(filepath.Join(t.TempDir(), "events.jsonl"))
	if err != nil {
		t.Fatalf("opening event log: %v", err)
	}
	t.Cleanup(func() { _ = eventLog.Close() })

	events := eventSink{log: eventLog}
	clock := func() time.Time { return testNow }
	opts := []core.Option{core.WithEventLogger(events), core.WithClock(clock)}

	auth, err := core.NewAuthStore(client, creds, opts...)
	if err != nil {
		t.Fatalf("creating auth store: %v", err)
	}
	tasks := core.NewTaskStore(client, opts...)
	stats := core.NewStatsEngine(tasks, 0, opts...)
	mutator := core.NewTaskMutator(client, tasks, opts...)
	t.Cleanup(func() {
		stats.Close()
		tasks.Close()
	})

	origAuth, origTasks, origStats, origMutator := Auth, Tasks, Stats, Mutator
	origEvents, origAlerts, origMetrics, origNotifier := EventLog, AlertEngine, MetricsCalc, Notifier
	origLogger, origNow := Logger, nowFunc
	t.Cleanup(func() {
		Auth, Tasks, Stats, Mutator = origAuth, origTasks, origStats, origMutator
		EventLog, AlertEngine, MetricsCalc, Notifier = origEvents, origAlerts, origMetrics, origNotifier
		Logger, nowFunc = origLogger, origNow
	})

	Auth, Tasks, Stats, Mutator = auth, tasks, stats, mutator
	EventLog = eventLog
	AlertEngine = observability.NewAlertEngine(eventLog, observability.DefaultAlertThresholds())
	MetricsCalc = observability.NewMetricsCalculator(eventLog)
	Notifier = nil
	Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	nowFunc = clock

	return &testEnv{api: api, creds: creds, eventLog: eventLog}
}

// eventSink writes store events to the test event log.
type eventSink struct {
	log observability.EventLog
}

func (s eventSink) LogEvent(eventType string, data map[string]any) error {
	return s.log.Write(observability.NewEvent(eventType, data))
}

// runCmd executes the root command with args and returns its stdout.
func runCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetArgs(nil)
	})

	err := executeContext(context.Background())
	return out.String(), err
}

// resetFlags restores every flag to its default so state does not leak
// between executions of the shared command tree.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func ptrTime(t time.Time) *time.Time { return &t }
