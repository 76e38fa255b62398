//nolint:revive // Package name matches the package it tests
package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelErrors(t *testing.T) {
	sentinels := []error{
		ErrValidation, ErrNotFound, ErrUnresolvedDependency, ErrCyclicDependency,
		ErrCompilation, ErrDuplicateConfiguration, ErrOperationFailed, ErrCancelled, ErrNotCompiled,
	}
	for i := range sentinels {
		for j := i + 1; j < len(sentinels); j++ {
			assert.NotErrorIs(t, sentinels[i], sentinels[j])
		}
	}
}

func TestDetailErrorError(t *testing.T) {
	detail := &DetailError{
		Type:     "validation failed",
		Message:  "invalid value",
		Location: "/path/to/ops.cue:42",
		Field:    "operations[0].verb",
		Context:  map[string]string{"Operation": "CreateOrder", "Builder": "links"},
		Hint:     "Use an HTTP verb",
	}

	output := detail.Error()

	assert.Contains(t, output, "Error: validation failed")
	assert.Contains(t, output, "Location: /path/to/ops.cue:42")
	assert.Contains(t, output, "Field: operations[0].verb")
	assert.Contains(t, output, "Operation: CreateOrder")
	assert.Contains(t, output, "invalid value")
	assert.Contains(t, output, "Hint: Use an HTTP verb")
	assert.Less(t, strings.Index(output, "Builder"), strings.Index(output, "Operation"))
}

func TestDetailErrorUnwrap(t *testing.T) {
	detail := &DetailError{
		Type:    "test",
		Message: "test message",
		Cause:   ErrValidation,
	}

	assert.True(t, errors.Is(detail, ErrValidation))
	assert.Equal(t, ErrValidation, detail.Unwrap())
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("invalid value", "ops.cue:42", "verb", "Use an HTTP verb")

	require.NotNil(t, err)
	assert.True(t, errors.Is(err, ErrValidation))

	var detail *DetailError
	require.True(t, errors.As(err, &detail))
	assert.Equal(t, "validation failed", detail.Type)
	assert.Equal(t, "verb", detail.Field)
}

func TestWrap(t *testing.T) {
	wrapped := Wrap(ErrNotFound, "operation CreateOrder")

	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.Contains(t, wrapped.Error(), "operation CreateOrder")
}

func TestExitCodeFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain", errors.New("x"), ExitGeneralError},
		{"validation", fmt.Errorf("load: %w", ErrValidation), ExitValidationError},
		{"not found", NewNotFoundError("missing", "", ""), ExitNotFound},
		{"unresolved", fmt.Errorf("x: %w", ErrUnresolvedDependency), ExitBuildFailure},
		{"cyclic", fmt.Errorf("x: %w", ErrCyclicDependency), ExitBuildFailure},
		{"compilation", fmt.Errorf("x: %w", ErrCompilation), ExitBuildFailure},
		{"duplicate", fmt.Errorf("x: %w", ErrDuplicateConfiguration), ExitBuildFailure},
		{"operation", fmt.Errorf("x: %w", ErrOperationFailed), ExitOperationFailure},
		{"cancelled", fmt.Errorf("x: %w", ErrCancelled), ExitCancelled},
		{"explicit", &ExitError{Err: ErrValidation, Code: 42}, 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCodeFromError(tt.err))
		})
	}
}

func TestExitCodeName(t *testing.T) {
	assert.Equal(t, "Build Failure", ExitCodeName(ExitBuildFailure))
	assert.Equal(t, "Cancelled", ExitCodeName(ExitCancelled))
	assert.Equal(t, "Unknown", ExitCodeName(99))
}
