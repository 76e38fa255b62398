package executor

import (
	"errors"
	"fmt"

	oerrors "github.com/opmodel/opc/internal/errors"
	"github.com/opmodel/opc/pkg/opcrt"
)

// DuplicateConfigurationError indicates operations were configured more
// than once, either by a second configuration of the same executor or by
// two registrations of one operation.
type DuplicateConfigurationError struct {
	// Operation is set when a single operation was registered twice.
	Operation string

	// State is the executor state the second configuration found.
	State State
}

func (e *DuplicateConfigurationError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("duplicate configuration: operation %q registered more than once", e.Operation)
	}
	return fmt.Sprintf("duplicate configuration: operations already configured (executor is %s)", e.State)
}

func (e *DuplicateConfigurationError) Unwrap() error {
	return oerrors.ErrDuplicateConfiguration
}

// OperationExecutionError is a per-request failure raised by frame logic.
// It never affects the executor state or other requests.
type OperationExecutionError struct {
	// Operation is the failing operation.
	Operation string

	// Frame is the frame that failed, when known.
	Frame string

	// Cause is the error the frame returned.
	Cause error
}

func (e *OperationExecutionError) Error() string {
	if e.Frame != "" {
		return fmt.Sprintf("operation %q failed in frame %q: %v", e.Operation, e.Frame, e.Cause)
	}
	return fmt.Sprintf("operation %q failed: %v", e.Operation, e.Cause)
}

func (e *OperationExecutionError) Unwrap() []error {
	return []error{oerrors.ErrOperationFailed, e.Cause}
}

// OperationCancelledError reports a request that ended because its context
// was cancelled or its deadline passed. It is not retried.
type OperationCancelledError struct {
	// Operation is the cancelled operation.
	Operation string

	// Frame is the frame running when the cancellation was observed, if
	// known.
	Frame string

	// Cause is the context error.
	Cause error
}

func (e *OperationCancelledError) Error() string {
	if e.Frame != "" {
		return fmt.Sprintf("operation %q cancelled in frame %q: %v", e.Operation, e.Frame, e.Cause)
	}
	return fmt.Sprintf("operation %q cancelled: %v", e.Operation, e.Cause)
}

func (e *OperationCancelledError) Unwrap() []error {
	return []error{oerrors.ErrCancelled, e.Cause}
}

// classify turns an executor error into the request-level error kinds.
// Frame errors are unwrapped so the frame name is reported once.
func classify(operation string, err error, ctxErr error) error {
	frame := ""
	cause := err
	var fe *opcrt.FrameError
	if errors.As(err, &fe) {
		frame = fe.Frame
		cause = fe.Err
	}
	if ctxErr != nil && errors.Is(err, ctxErr) {
		return &OperationCancelledError{Operation: operation, Frame: frame, Cause: ctxErr}
	}
	return &OperationExecutionError{Operation: operation, Frame: frame, Cause: cause}
}
