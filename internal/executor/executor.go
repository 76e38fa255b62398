// Package executor is the runtime façade over compiled operations. It owns
// the build state machine and dispatches requests to the executor compiled
// for their operation.
package executor

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/opmodel/opc/internal/core"
	oerrors "github.com/opmodel/opc/internal/errors"
	"github.com/opmodel/opc/internal/output"
	"github.com/opmodel/opc/pkg/opcrt"
)

// State is the build state of an Executor.
type State int32

const (
	StateUncompiled State = iota
	StateCompiling
	StateCompiled
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateUncompiled:
		return "uncompiled"
	case StateCompiling:
		return "compiling"
	case StateCompiled:
		return "compiled"
	case StateFaulted:
		return "faulted"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Entry is one compiled operation.
type Entry struct {
	Descriptor *core.OperationDescriptor
	Exec       opcrt.Executor
}

// CompileFunc produces the compiled entries. It runs once.
type CompileFunc func(ctx context.Context) ([]Entry, error)

// Executor dispatches requests to compiled operations.
//
// The lookup tables are written once, before the state becomes Compiled,
// and only read afterwards. Requests take no locks.
type Executor struct {
	state atomic.Int32

	mu      sync.Mutex
	fault   error
	entries []Entry
	byName  map[string]*Entry
	byType  map[reflect.Type]*Entry
}

// New creates an uncompiled executor.
func New() *Executor {
	return &Executor{}
}

// State returns the current state.
func (e *Executor) State() State {
	return State(e.state.Load())
}

// Fault returns the error that faulted the executor, if any.
func (e *Executor) Fault() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fault
}

// Compile runs compile and installs its entries. Only an uncompiled
// executor can be compiled; any later call fails with
// DuplicateConfigurationError and leaves the executor unchanged. A failing
// or panicking compile faults the executor permanently.
func (e *Executor) Compile(ctx context.Context, compile CompileFunc) error {
	if !e.state.CompareAndSwap(int32(StateUncompiled), int32(StateCompiling)) {
		return &DuplicateConfigurationError{State: e.State()}
	}
	output.Debug("executor compiling")

	entries, err := e.build(ctx, compile)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.fault = err
		e.state.Store(int32(StateFaulted))
		output.Debug("executor faulted", "err", err)
		return err
	}
	e.state.Store(int32(StateCompiled))
	output.Debug("executor compiled", "operations", len(entries))
	return nil
}

// build runs compile and install, turning a panic in either into an error
// so the executor never stays in StateCompiling.
func (e *Executor) build(ctx context.Context, compile CompileFunc) (entries []Entry, err error) {
	defer func() {
		if r := recover(); r != nil {
			entries, err = nil, fmt.Errorf("compiling: panic: %v", r)
		}
	}()
	entries, err = compile(ctx)
	if err == nil {
		err = e.install(entries)
	}
	return entries, err
}

func (e *Executor) install(entries []Entry) error {
	byName := make(map[string]*Entry, len(entries))
	byType := make(map[reflect.Type]*Entry, len(entries))
	for i := range entries {
		entry := &entries[i]
		d := entry.Descriptor
		if entry.Exec == nil {
			return fmt.Errorf("operation %q: no compiled executor", d.Name)
		}
		if _, dup := byName[d.Name]; dup {
			return &DuplicateConfigurationError{Operation: d.Name}
		}
		byName[d.Name] = entry
		if d.ByName {
			continue
		}
		if prev, dup := byType[d.Type]; dup {
			return fmt.Errorf("operations %q and %q share type %s: %w",
				prev.Descriptor.Name, d.Name, d.Type, &DuplicateConfigurationError{Operation: d.Name})
		}
		byType[d.Type] = entry
	}
	e.entries, e.byName, e.byType = entries, byName, byType
	return nil
}

// Operations returns the compiled descriptors in registration order.
func (e *Executor) Operations() []*core.OperationDescriptor {
	if e.State() != StateCompiled {
		return nil
	}
	out := make([]*core.OperationDescriptor, len(e.entries))
	for i := range e.entries {
		out[i] = e.entries[i].Descriptor
	}
	return out
}

// Lookup returns the entry serving op: by OperationName for core.Named
// instances, otherwise by runtime type.
func (e *Executor) Lookup(op any) (*Entry, error) {
	if s := e.State(); s != StateCompiled {
		return nil, fmt.Errorf("%w: executor is %s", oerrors.ErrNotCompiled, s)
	}
	if op == nil {
		return nil, oerrors.NewValidationError("nil operation", "", "", "")
	}
	if named, ok := op.(core.Named); ok {
		if entry, ok := e.byName[named.OperationName()]; ok {
			return entry, nil
		}
		return nil, oerrors.NewNotFoundError(
			fmt.Sprintf("no compiled operation named %q", named.OperationName()), "",
			"run 'opc plan' to list the compiled operations")
	}
	if entry, ok := e.byType[reflect.TypeOf(op)]; ok {
		return entry, nil
	}
	return nil, oerrors.NewNotFoundError(
		fmt.Sprintf("no compiled operation for type %T", op), "", "")
}

// Execute runs op through its compiled executor.
//
// Failures raised by frames are *OperationExecutionError; a done context
// yields *OperationCancelledError. Neither changes the executor state.
func (e *Executor) Execute(ctx context.Context, op any) (any, error) {
	entry, err := e.Lookup(op)
	if err != nil {
		return nil, err
	}
	name := entry.Descriptor.Name
	if err := ctx.Err(); err != nil {
		return nil, &OperationCancelledError{Operation: name, Cause: err}
	}

	res, err := entry.Exec.Execute(ctx, op)
	if err != nil {
		return nil, classify(name, err, ctx.Err())
	}
	return res, nil
}

// Execute runs op and converts the result to R.
func Execute[R any](ctx context.Context, e *Executor, op any) (R, error) {
	var zero R
	res, err := e.Execute(ctx, op)
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	r, ok := res.(R)
	if !ok {
		return zero, fmt.Errorf("operation result is %T, not %s", res, reflect.TypeOf((*R)(nil)).Elem())
	}
	return r, nil
}
