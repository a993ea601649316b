package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is returned when the remote API answered with a non-2xx status.
type APIError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
}

// TransportError is returned when no response was received: dial, DNS,
// timeout or cancellation failures. It carries no status.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status carried by err, or 0 when err is not an
// APIError.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsUnauthorized reports whether err is a 401 or 403 from the remote API.
func IsUnauthorized(err error) bool {
	code := StatusCode(err)
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var tErr *TransportError
	return errors.As(err, &tErr)
}

// Message returns the server-supplied message of an APIError, or fallback.
func Message(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
