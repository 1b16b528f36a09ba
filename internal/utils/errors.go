package utils

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorWithSuggestion wraps an error with a helpful suggestion for the user
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface
func (e *ErrorWithSuggestion) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%v\n\nSuggestion: %s", e.Err, e.Suggestion)
	}
	return e.Err.Error()
}

// Unwrap allows errors.Is and errors.As to work
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// ErrNotEntitled is the sentinel behind ErrSyncNotEntitled
var ErrNotEntitled = errors.New("sync is not included in the current plan")

// Common error constructors with suggestions

// ErrTaskNotFound creates an error when a task is not found
func ErrTaskNotFound(searchTerm string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("no task found matching '%s'", searchTerm),
		Suggestion: "Run 'tasksync task list' to see task IDs",
	}
}

// ErrAmbiguousTask creates an error when an ID prefix matches several tasks
func ErrAmbiguousTask(prefix string, count int) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("'%s' matches %d tasks", prefix, count),
		Suggestion: "Use a longer ID prefix",
	}
}

// ErrDomainNotFound creates an error when a domain is not found
func ErrDomainNotFound(searchTerm string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("domain '%s' not found", searchTerm),
		Suggestion: "Run 'tasksync domain list' to see available domains",
	}
}

// ErrSyncNotEntitled creates an error when sync is attempted without entitlement
func ErrSyncNotEntitled() error {
	return &ErrorWithSuggestion{
		Err:        ErrNotEntitled,
		Suggestion: "Set 'sync.entitled: true' in ~/.config/tasksync/config.yaml once your plan includes sync",
	}
}

// ErrMissingUserID creates an error when no user identifier is configured
func ErrMissingUserID() error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("no user identifier configured"),
		Suggestion: "Set 'user_id' in ~/.config/tasksync/config.yaml or export TASKSYNC_USER_ID",
	}
}

// ErrMissingRemoteURL creates an error when no remote authority is configured
func ErrMissingRemoteURL() error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("no remote URL configured"),
		Suggestion: "Set 'remote.url' in ~/.config/tasksync/config.yaml or export TASKSYNC_REMOTE_URL",
	}
}

// ErrRemoteOffline creates an error when the remote authority cannot be reached
func ErrRemoteOffline(url, reason string) error {
	suggestion := "Check your internet connection and try again"
	if strings.Contains(reason, "no such host") {
		suggestion = "Check your DNS settings and the remote.url setting"
	} else if strings.Contains(reason, "refused") {
		suggestion = "Check if the server is running and accessible (try 'tasksync serve' locally)"
	} else if strings.Contains(reason, "timeout") || strings.Contains(reason, "deadline") {
		suggestion = "The server may be slow or unreachable. Try again later or raise remote.timeout"
	}

	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("remote %s is unreachable: %s", url, reason),
		Suggestion: suggestion,
	}
}

// ErrInvalidPriority creates an error for invalid priority values
func ErrInvalidPriority(priority int) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid priority %d", priority),
		Suggestion: "Priority must be between 0 (none) and 3 (high)",
	}
}

// ErrInvalidDate creates an error for invalid date formats
func ErrInvalidDate(dateStr string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid date format: %s", dateStr),
		Suggestion: "Use YYYY-MM-DD format (e.g., 2026-01-15)",
	}
}

// ErrInvalidStatus creates an error for invalid status values
func ErrInvalidStatus(status string, validStatuses []string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid status: %s", status),
		Suggestion: fmt.Sprintf("Valid statuses: %s", strings.Join(validStatuses, ", ")),
	}
}

// ErrCredentialsNotFound creates an error when no token is stored for a user
func ErrCredentialsNotFound(userID string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("no token found for user %s", userID),
		Suggestion: "Store one with 'tasksync credentials set --prompt' or export TASKSYNC_TOKEN",
	}
}

// ErrAuthenticationFailed creates an error when the remote rejects the token
func ErrAuthenticationFailed() error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("the remote rejected the credentials"),
		Suggestion: "Check your token with 'tasksync credentials get' and update it if needed",
	}
}

// ErrSyncAlreadyRunning creates an error when a second daemon is started for the same database
func ErrSyncAlreadyRunning(dbPath string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("a sync daemon is already running for %s", dbPath),
		Suggestion: "Stop the other daemon first, or point this one at a different database.path",
	}
}

// ErrInvalidConfig creates an error for invalid configuration
func ErrInvalidConfig(field string, reason string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid configuration for '%s': %s", field, reason),
		Suggestion: fmt.Sprintf("Check ~/.config/tasksync/config.yaml and fix the '%s' field", field),
	}
}

// WrapWithSuggestion wraps an existing error with a suggestion
func WrapWithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}
	return &ErrorWithSuggestion{
		Err:        err,
		Suggestion: suggestion,
	}
}
