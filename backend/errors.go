package backend

import (
	"errors"
	"fmt"
)

// BackendError represents an error from a remote sync operation.
// It provides structured error information including HTTP status codes,
// operation context, and the underlying error message.
// StatusCode 0 means the request never produced a response (transport failure).
type BackendError struct {
	Operation  string // e.g., "Push", "Pull"
	StatusCode int    // HTTP status code (0 if not an HTTP error)
	Message    string // Human-readable error message
	UserID     string // Optional: user the request was made for
	Body       string // Optional: response body for debugging
	Err        error  // Optional: underlying error
}

// Error implements the error interface
func (e *BackendError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s failed with status %d: %s", e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the underlying error for error wrapping
func (e *BackendError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error is a 404 Not Found
func (e *BackendError) IsNotFound() bool {
	return e.StatusCode == 404
}

// IsUnauthorized returns true if the error is a 401 Unauthorized or 403 Forbidden
func (e *BackendError) IsUnauthorized() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// IsServerError returns true if the error is a 5xx server error
func (e *BackendError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsTransport returns true if no response was received or it could not be decoded
func (e *BackendError) IsTransport() bool {
	return e.StatusCode == 0
}

// NewBackendError creates a new BackendError
func NewBackendError(operation string, statusCode int, message string) *BackendError {
	return &BackendError{
		Operation:  operation,
		StatusCode: statusCode,
		Message:    message,
	}
}

// WithUserID adds the user ID to the error for context
func (e *BackendError) WithUserID(userID string) *BackendError {
	e.UserID = userID
	return e
}

// WithBody adds the response body to the error for debugging
func (e *BackendError) WithBody(body string) *BackendError {
	e.Body = body
	return e
}

// WithError wraps an underlying error
func (e *BackendError) WithError(err error) *BackendError {
	e.Err = err
	return e
}

// StoreError represents a failure of the local persistent store
type StoreError struct {
	Op   string // Operation that failed
	Kind Kind   // Optional: entity kind if relevant
	ID   string // Optional: entity ID if relevant
	Err  error  // Underlying error
}

func (e *StoreError) Error() string {
	if e.Kind != "" && e.ID != "" {
		return fmt.Sprintf("store %s failed for %s %s: %v", e.Op, e.Kind, e.ID, e.Err)
	} else if e.Kind != "" {
		return fmt.Sprintf("store %s failed for %ss: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// ErrUnknownKind is returned for an entity kind the store has no table for
var ErrUnknownKind = errors.New("unknown entity kind")
