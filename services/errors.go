package services

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across services. NotFound deliberately covers
// missing, soft-deleted, and not-visible so callers cannot probe for
// existence of other users' private quizzes.
var (
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("authentication required")
)

// ValidationError rejects a structurally invalid payload before any write.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "validation failed"
	}
	return "validation failed: " + e.Errors[0]
}

// UnprocessableError is for payloads that are structurally fine but break a
// business rule (publish checks, illegal status transitions).
type UnprocessableError struct {
	Message string
	Details []string
}

func (e *UnprocessableError) Error() string {
	return e.Message
}

// BackendError wraps a persistence or collaborator failure. The cause is
// logged server-side; only Code is meant for clients.
type BackendError struct {
	Code string
	Err  error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend failure (%s): %v", e.Code, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

func backendErr(code string, err error) error {
	return &BackendError{Code: code, Err: err}
}
