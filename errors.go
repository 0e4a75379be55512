package harness

import (
	"errors"
	"fmt"

	"github.com/pome-lang/pome-harness/invoker"
)

// RuntimeError represents an operational error that should lead to exit code 2
// Examples include configuration errors, unreadable corpora or scripts that
// could not be launched.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a new RuntimeError
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// TestFailureError represents one or more failed verdicts (exit code 1)
type TestFailureError struct {
	Message string
}

func (e *TestFailureError) Error() string {
	return fmt.Sprintf("test failure: %s", e.Message)
}

// NewTestFailureError creates a new TestFailureError
func NewTestFailureError(message string) *TestFailureError {
	return &TestFailureError{Message: message}
}

// IsTestFailureError checks if the error is or wraps a TestFailureError
func IsTestFailureError(err error) bool {
	var testErr *TestFailureError
	return err != nil && errors.As(err, &testErr)
}

// MissingBinaryError reports that the interpreter does not exist (exit code 3).
// Nothing is run when it is returned.
type MissingBinaryError struct {
	Err error
}

func (e *MissingBinaryError) Error() string {
	return fmt.Sprintf("missing binary: %v", e.Err)
}

// Unwrap implements the errors.Unwrap interface
func (e *MissingBinaryError) Unwrap() error {
	return e.Err
}

// NewMissingBinaryError creates a new MissingBinaryError
func NewMissingBinaryError(err error) *MissingBinaryError {
	return &MissingBinaryError{Err: err}
}

// IsMissingBinaryError checks if the error is or wraps a MissingBinaryError
func IsMissingBinaryError(err error) bool {
	var missingErr *MissingBinaryError
	return err != nil && errors.As(err, &missingErr)
}

// classifyError wraps an error that aborted a run in the typed error matching
// its exit code.
func classifyError(err error) error {
	switch {
	case err == nil:
		return nil
	case IsMissingBinaryError(err), IsRuntimeError(err), IsTestFailureError(err):
		return err
	case errors.Is(err, invoker.ErrBinaryMissing):
		return NewMissingBinaryError(err)
	default:
		return NewRuntimeError(err)
	}
}
