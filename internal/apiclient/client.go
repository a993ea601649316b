// Package apiclient wraps outbound calls to the remote task API. It attaches
// the stored bearer credential to every request and reports failures as
// APIError or TransportError. It never retries and never caches.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultTimeout bounds every call when no other timeout is configured.
const DefaultTimeout = 30 * time.Second

// maxErrorBody caps how much of an error response is read for its message.
const maxErrorBody = 64 << 10

// TokenSource yields the credential to attach to outgoing requests. An empty
// token means no Authorization header is sent.
type TokenSource interface {
	Token() (string, error)
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func() (string, error)

// Token calls f.
func (f TokenFunc) Token() (string, error) { return f() }

// Client performs JSON requests against the remote API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	tokens     TokenSource
	logger     *slog.Logger
	userAgent  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-call timeout of the underlying http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithTokenSource sets where the bearer credential is read from.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithLogger sets the structured logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// New creates a Client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("api base URL must not be empty")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing api base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api base URL %q must use http or https", baseURL)
	}

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		userAgent:  "tasker",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Get issues a GET and decodes the response body into out (if non-nil).
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

// Post issues a POST with body encoded as JSON.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, body, out)
}

// Put issues a PUT with body encoded as JSON.
func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, body, out)
}

// Delete issues a DELETE.
func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out)
}

// Do performs a single request. A nil body sends no payload; a nil out
// discards the response body.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding %s %s request: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), reader)
	if err != nil {
		return fmt.Errorf("building %s %s request: %w", method, path, err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return fmt.Errorf("reading credential: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	log := c.logger.With("method", method, "path", path, "request_id", requestID)
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug("api request failed", "error", err, "duration", time.Since(start))
		return &TransportError{Method: method, Path: path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	log.Debug("api response", "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{
			Method:  method,
			Path:    path,
			Status:  resp.StatusCode,
			Message: readErrorMessage(resp.Body),
		}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Method: method, Path: path, Err: fmt.Errorf("reading response body: %w", err)}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

// resolve joins a relative resource path onto the base URL.
func (c *Client) resolve(path string) string {
	u := *c.baseURL
	rel, err := url.Parse(path)
	if err != nil {
		u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
		return u.String()
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(rel.Path, "/")
	if rel.RawPath != "" {
		u.RawPath = strings.TrimRight(c.baseURL.EscapedPath(), "/") + "/" + strings.TrimLeft(rel.RawPath, "/")
	}
	u.RawQuery = rel.RawQuery
	return u.String()
}

// readErrorMessage extracts a human-readable message from an error body:
// the JSON "message", "title" or "error" field, else the trimmed text.
func readErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil {
		return ""
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ""
	}

	var payload struct {
		Message string `json:"message"`
		Title   string `json:"title"`
		Error   string `json:"error"`
	}
	if data[0] == '{' && json.Unmarshal(data, &payload) == nil {
		switch {
		case payload.Message != "":
			return payload.Message
		case payload.Title != "":
			return payload.Title
		case payload.Error != "":
			return payload.Error
		}
		return ""
	}
	if data[0] == '"' {
		var s string
		if json.Unmarshal(data, &s) == nil {
			return s
		}
	}
	if data[0] == '<' {
		return ""
	}
	return string(data)
}
