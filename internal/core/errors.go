package core

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingToken is returned when the login endpoint answered 2xx
	// without a credential.
	ErrMissingToken = errors.New("login response did not include a token")
	// ErrNotAuthenticated is returned when an operation needs a stored
	// credential and none is present.
	ErrNotAuthenticated = errors.New("not logged in")
	// ErrTaskNotFound is returned when a task id is not in the fetched list.
	ErrTaskNotFound = errors.New("task not found")
	// ErrStoreClosed is returned by operations started after Close.
	ErrStoreClosed = errors.New("store is closed")
)

// ValidationError reports a client-side input problem. Requests that fail
// validation are never sent to the server.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}
