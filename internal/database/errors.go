package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nfrund/chatroom/internal/domain"
)

// ErrNotConnected is returned when a backend has no usable connection. It
// matches domain.ErrTransientStore.
var ErrNotConnected = fmt.Errorf("database not connected: %w", domain.ErrTransientStore)

// DBError represents a database error with additional context.
type DBError struct {
	// The underlying error, usually a domain sentinel joined with the
	// driver error.
	err error

	// Additional context about where the error occurred.
	context string

	// The query that was being executed when the error occurred.
	query string

	// Optional parameters that were used with the query.
	params map[string]any
}

// NewDBError creates a new DBError with the given error and context.
// The context should describe what operation was being performed when the error occurred.
func NewDBError(err error, context string) *DBError {
	return &DBError{
		err:     err,
		context: context,
	}
}

// WithQuery adds query information to the error.
func (e *DBError) WithQuery(query string) *DBError {
	e.query = query
	return e
}

// WithParams adds query parameters to the error. Values under keys that look
// like secrets are masked.
func (e *DBError) WithParams(params map[string]any) *DBError {
	masked := make(map[string]any, len(params))
	for k, v := range params {
		if strings.Contains(strings.ToLower(k), "password") {
			masked[k] = "[REDACTED]"
			continue
		}
		masked[k] = v
	}
	e.params = masked
	return e
}

// Error returns the error message.
func (e *DBError) Error() string {
	msg := e.context
	if e.query != "" {
		msg = fmt.Sprintf("%s\nQuery: %s", msg, e.query)
	}
	if len(e.params) > 0 {
		msg = fmt.Sprintf("%s\nParams: %+v", msg, e.params)
	}
	if e.err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *DBError) Unwrap() error {
	return e.err
}

// Is reports whether the wrapped error matches one of the domain sentinels.
func (e *DBError) Is(target error) bool {
	if target == nil {
		return e == nil
	}

	switch target {
	case domain.ErrNotFound, domain.ErrConflict, domain.ErrTransientStore, domain.ErrValidation:
		return errors.Is(e.err, target)
	}

	return false
}

// WrapError wraps an error with additional context.
// If the error is already a DBError, it adds the context to the existing error.
// Otherwise, it creates a new DBError with the given context.
func WrapError(err error, context string) *DBError {
	if err == nil {
		return nil
	}

	var dbErr *DBError
	if errors.As(err, &dbErr) {
		// If the error already has context, preserve it
		if dbErr.context != "" {
			context = fmt.Sprintf("%s: %s", context, dbErr.context)
		}
		dbErr.context = context
		return dbErr
	}

	return NewDBError(err, context)
}

// transient marks err as a store outage.
func transient(err error) error {
	if err == nil || errors.Is(err, domain.ErrTransientStore) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrTransientStore, err)
}

// conflict marks err as a unique constraint violation.
func conflict(err error) error {
	if err == nil {
		return domain.ErrConflict
	}
	return fmt.Errorf("%w: %w", domain.ErrConflict, err)
}

// isConnectionError checks if an error is likely due to a lost or failed connection.
// This helps prevent unnecessary reconnection attempts for application-level errors.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	// Check for context cancellation errors, which often wrap network issues.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Check for common network error substrings. This is not exhaustive but covers many cases.
	errMsg := strings.ToLower(err.Error())
	return strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "broken pipe") ||
		strings.Contains(errMsg, "unexpected eof") ||
		strings.Contains(errMsg, "use of closed network connection") ||
		strings.Contains(errMsg, "connection reset")
}
