package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/valter-silva-au/tasker/internal/apiclient"
	"github.com/valter-silva-au/tasker/pkg/models"
)

// apiCall records one request made against fakeAPI.
type apiCall struct {
	Method string
	Path   string
	Body   json.RawMessage
}

// fakeAPI implements APIClient in memory. Responses are round-tripped
// through JSON so decoding behaves as it does against a real server.
type fakeAPI struct {
	mu        sync.Mutex
	calls     []apiCall
	responses map[string]any
	errs      map[string]error
	fetches   int
	// onFetch, when set, serves GET /TodoTask. n counts fetches from 1.
	onFetch func(ctx context.Context, n int) ([]models.Task, error)
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		responses: make(map[string]any),
		errs:      make(map[string]error),
	}
}

func (f *fakeAPI) Get(ctx context.Context, path string, out any) error {
	return f.do(ctx, http.MethodGet, path, nil, out)
}

func (f *fakeAPI) Post(ctx context.Context, path string, body, out any) error {
	return f.do(ctx, http.MethodPost, path, body, out)
}

func (f *fakeAPI) Put(ctx context.Context, path string, body, out any) error {
	return f.do(ctx, http.MethodPut, path, body, out)
}

func (f *fakeAPI) Delete(ctx context.Context, path string, out any) error {
	return f.do(ctx, http.MethodDelete, path, nil, out)
}

func (f *fakeAPI) do(ctx context.Context, method, path string, body, out any) error {
	var raw json.RawMessage
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		raw = data
	}

	key := method + " " + path
	f.mu.Lock()
	f.calls = append(f.calls, apiCall{Method: method, Path: path, Body: raw})
	resp, hasResp := f.responses[key]
	err := f.errs[key]
	hook := f.onFetch
	n := 0
	isFetch := method == http.MethodGet && path == tasksPath
	if isFetch {
		f.fetches++
		n = f.fetches
	}
	f.mu.Unlock()

	if isFetch && hook != nil {
		tasks, hookErr := hook(ctx, n)
		resp, hasResp, err = tasks, true, hookErr
	}
	if err != nil {
		return err
	}
	if hasResp && out != nil {
		data, err := json.Marshal(resp)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, out)
	}
	return nil
}

func (f *fakeAPI) setTasks(tasks ...models.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[http.MethodGet+" "+tasksPath] = tasks
}

func (f *fakeAPI) setError(method, path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[method+" "+path] = err
}

func (f *fakeAPI) setResponse(method, path string, resp any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[method+" "+path] = resp
}

func (f *fakeAPI) callsTo(method, path string) []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []apiCall
	for _, c := range f.calls {
		if c.Method == method && c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeAPI) allCalls() []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]apiCall(nil), f.calls...)
}

// failingAPI fails the test on any call.
type failingAPI struct{ t interface{ Errorf(string, ...any) } }

func (f failingAPI) Get(context.Context, string, any) error {
	f.t.Errorf("unexpected GET")
	return errors.New("network unreachable")
}

func (f failingAPI) Post(context.Context, string, any, any) error {
	f.t.Errorf("unexpected POST")
	return errors.New("network unreachable")
}

func (f failingAPI) Put(context.Context, string, any, any) error {
	f.t.Errorf("unexpected PUT")
	return errors.New("network unreachable")
}

func (f failingAPI) Delete(context.Context, string, any) error {
	f.t.Errorf("unexpected DELETE")
	return errors.New("network unreachable")
}

// memCreds is an in-memory CredentialStore with injectable failures.
type memCreds struct {
	mu       sync.Mutex
	token    string
	loadErr  error
	saveErr  error
	clearErr error
	saves    int
}

func (c *memCreds) Load() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, c.loadErr
}

func (c *memCreds) Save(token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saves++
	if c.saveErr != nil {
		return c.saveErr
	}
	c.token = token
	return nil
}

func (c *memCreds) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	return c.clearErr
}

// recordingEvents collects logged event types.
type recordingEvents struct {
	mu    sync.Mutex
	types []string
	data  []map[string]any
}

func (r *recordingEvents) LogEvent(eventType string, data map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, eventType)
	r.data = append(r.data, data)
	return nil
}

func (r *recordingEvents) has(eventType string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.types {
		if t == eventType {
			return true
		}
	}
	return false
}

func apiErr(method, path string, status int, msg string) error {
	return &apiclient.APIError{Method: method, Path: path, Status: status, Message: msg}
}

var refTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return refTime }

func ptrTime(t time.Time) *time.Time { return &t }

func newTask(id string, status models.TaskStatus, due *time.Time) models.Task {
	return models.Task{
		ID:      models.TaskID(id),
		Title:   "task " + id,
		Status:  status,
		DueDate: due,
	}
}
