package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestValidationError(t *testing.T) {
	err := Invalid("workout.intensity", "expected a number, got %q", "high")
	if err.Error() != `validation: workout.intensity: expected a number, got "high"` {
		t.Errorf("message = %q", err.Error())
	}
	if !errors.Is(fmt.Errorf("wrapped: %w", err), ErrValidation) {
		t.Error("should match ErrValidation through wrapping")
	}
	if (&ValidationError{Message: "empty"}).Error() != "validation: empty" {
		t.Error("field-less message")
	}
}

func TestNotFoundError(t *testing.T) {
	err := &NotFoundError{Kind: "relationship", Name: "friends"}
	if !errors.Is(err, ErrNotFound) {
		t.Error("should match ErrNotFound")
	}
	if errors.Is(err, ErrValidation) {
		t.Error("should not match ErrValidation")
	}
}

func TestExecution(t *testing.T) {
	if Execution("query", nil) != nil {
		t.Error("nil cause should stay nil")
	}

	err := Execution("query", context.DeadlineExceeded)
	if !errors.Is(err, ErrExecution) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("unwrap chain broken: %v", err)
	}

	again := Execution("hydrate", err)
	var ee *ExecutionError
	if !errors.As(again, &ee) || ee.Op != "query" {
		t.Errorf("rewrapped op = %+v", ee)
	}
}
