// Package apperr defines the error taxonomy shared by the query engine and
// its transports.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrExecution  = errors.New("execution failed")
)

// ValidationError reports a caller-fixable problem with a request. Field is
// the offending field path as the caller wrote it (e.g. "participant.name").
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid is shorthand for building a *ValidationError.
func Invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown target entity or relationship name.
type NotFoundError struct {
	Kind string // "entity" or "relationship"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.Kind, e.Name)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ExecutionError wraps a database failure. The message carries the operation
// and the driver cause only; query text and parameters are never included.
type ExecutionError struct {
	Op  string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution: %s: %v", e.Op, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause, so callers can
// test for context.Canceled or context.DeadlineExceeded as well.
func (e *ExecutionError) Unwrap() []error { return []error{ErrExecution, e.Err} }

// Execution wraps err as an *ExecutionError unless it already is one.
func Execution(op string, err error) error {
	if err == nil {
		return nil
	}
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return err
	}
	return &ExecutionError{Op: op, Err: err}
}
