// Package errors provides sentinel errors, structured error details and exit
// codes shared by the opc packages.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors for known conditions.
var (
	// ErrValidation indicates a manifest or config schema validation failure.
	ErrValidation = errors.New("validation error")

	// ErrNotFound indicates a manifest, operation or file was not found.
	ErrNotFound = errors.New("not found")

	// ErrUnresolvedDependency indicates a frame input has no producer and is
	// not container-resolvable.
	ErrUnresolvedDependency = errors.New("unresolved dependency")

	// ErrCyclicDependency indicates frame resolution revisited a frame.
	ErrCyclicDependency = errors.New("cyclic dependency")

	// ErrCompilation indicates a generated unit failed to compile.
	ErrCompilation = errors.New("compilation error")

	// ErrDuplicateConfiguration indicates the registration surface was used
	// more than once.
	ErrDuplicateConfiguration = errors.New("duplicate configuration")

	// ErrOperationFailed indicates a frame failed while processing a request.
	ErrOperationFailed = errors.New("operation execution failure")

	// ErrCancelled indicates a request was cancelled or ran past its deadline.
	ErrCancelled = errors.New("operation cancelled")

	// ErrNotCompiled indicates a request reached an executor that is not in
	// the compiled state.
	ErrNotCompiled = errors.New("executor not compiled")
)

// Exit codes.
const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError = 1

	// ExitValidationError indicates manifest or config validation failed.
	ExitValidationError = 2

	// ExitNotFound indicates a manifest, operation or file was not found.
	ExitNotFound = 5

	// ExitBuildFailure indicates the pipeline could not be compiled.
	ExitBuildFailure = 7

	// ExitOperationFailure indicates an operation failed while executing.
	ExitOperationFailure = 8

	// ExitCancelled indicates an operation was cancelled or timed out.
	ExitCancelled = 9
)

// ExitError wraps an error with a process exit code.
type ExitError struct {
	Err  error
	Code int

	// Printed is set when the command layer already reported the error.
	Printed bool
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCodeFromError maps an error onto an exit code.
func ExitCodeFromError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	switch {
	case errors.Is(err, ErrValidation):
		return ExitValidationError
	case errors.Is(err, ErrNotFound):
		return ExitNotFound
	case errors.Is(err, ErrUnresolvedDependency),
		errors.Is(err, ErrCyclicDependency),
		errors.Is(err, ErrCompilation),
		errors.Is(err, ErrDuplicateConfiguration):
		return ExitBuildFailure
	case errors.Is(err, ErrCancelled):
		return ExitCancelled
	case errors.Is(err, ErrOperationFailed):
		return ExitOperationFailure
	default:
		return ExitGeneralError
	}
}

// ExitCodeName returns the name of the exit code.
func ExitCodeName(code int) string {
	switch code {
	case ExitSuccess:
		return "Success"
	case ExitGeneralError:
		return "General Error"
	case ExitValidationError:
		return "Validation Error"
	case ExitNotFound:
		return "Not Found"
	case ExitBuildFailure:
		return "Build Failure"
	case ExitOperationFailure:
		return "Operation Failure"
	case ExitCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// DetailError captures structured error information for terminal output.
type DetailError struct {
	// Type is the error category (required).
	Type string

	// Message is the specific description (required).
	Message string

	// Location is the file path and line number (optional).
	Location string

	// Field is the field name for schema errors (optional).
	Field string

	// Context contains additional key-value context (optional).
	Context map[string]string

	// Hint provides actionable guidance (optional).
	Hint string

	// Cause is the underlying error (optional).
	Cause error
}

// Error implements the error interface. Context keys are printed in order.
func (e *DetailError) Error() string {
	var b strings.Builder

	b.WriteString("Error: ")
	b.WriteString(e.Type)
	b.WriteString("\n")

	if e.Location != "" {
		b.WriteString("  Location: ")
		b.WriteString(e.Location)
		b.WriteString("\n")
	}
	if e.Field != "" {
		b.WriteString("  Field: ")
		b.WriteString(e.Field)
		b.WriteString("\n")
	}
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("  ")
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(e.Context[k])
		b.WriteString("\n")
	}

	b.WriteString("\n  ")
	b.WriteString(e.Message)
	b.WriteString("\n")

	if e.Hint != "" {
		b.WriteString("\nHint: ")
		b.WriteString(e.Hint)
		b.WriteString("\n")
	}

	return b.String()
}

// Unwrap returns the underlying error.
func (e *DetailError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a validation error with details.
func NewValidationError(message, location, field, hint string) error {
	return &DetailError{
		Type:     "validation failed",
		Message:  message,
		Location: location,
		Field:    field,
		Hint:     hint,
		Cause:    ErrValidation,
	}
}

// NewNotFoundError creates a not found error with details.
func NewNotFoundError(message, location, hint string) error {
	return &DetailError{
		Type:     "not found",
		Message:  message,
		Location: location,
		Hint:     hint,
		Cause:    ErrNotFound,
	}
}

// Wrap wraps an error with a sentinel error type.
func Wrap(sentinel error, message string) error {
	return fmt.Errorf("%s: %w", message, sentinel)
}
