// Package opcrt is the runtime support library called by compiled operation
// executors. Generated source and the in-process linker use the same entry
// points, so both execute frames identically.
package opcrt

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"

	"github.com/opmodel/opc/internal/core"
)

// Executor is the capability every compiled operation type satisfies.
type Executor interface {
	Execute(ctx context.Context, op any) (any, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, op any) (any, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, op any) (any, error) {
	return f(ctx, op)
}

// ErrNextReused is returned when a nested frame invokes the remainder of the
// method more than once.
var ErrNextReused = errors.New("remainder already invoked")

// FrameError reports a failure raised by a frame while processing a request.
type FrameError struct {
	// Frame is the logical frame name.
	Frame string

	// Err is the error returned by the frame, or a description of the panic.
	Err error

	// Stack is set when the frame panicked.
	Stack []byte
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame %q: %v", e.Frame, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// Runtime holds the frame table of one compiled method and the container
// its services come from. It is immutable once built.
type Runtime struct {
	frames    []*core.Frame
	container core.Container
}

// NewRuntime creates a runtime over the frame table. Frame indices used by
// generated code refer to positions in frames.
func NewRuntime(frames []*core.Frame, container core.Container) *Runtime {
	return &Runtime{frames: frames, container: container}
}

// Frame returns the frame at index i.
func (r *Runtime) Frame(i int) *core.Frame {
	return r.frames[i]
}

// Frames returns the frame table.
func (r *Runtime) Frames() []*core.Frame {
	return r.frames
}

// Scope opens the per-request service scope.
func (r *Runtime) Scope() core.ServiceResolver {
	if r.container == nil {
		return emptyScope{}
	}
	return r.container.NewScope()
}

// Call runs the sync frame at index i and returns its outputs.
func (r *Runtime) Call(ctx context.Context, i int, args ...any) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return invoke(ctx, r.frames[i], args)
}

// Go starts the asynchronous frame at index i.
func (r *Runtime) Go(ctx context.Context, i int, args ...any) *Future {
	fut := &Future{done: make(chan struct{})}
	if err := ctx.Err(); err != nil {
		fut.err = err
		close(fut.done)
		return fut
	}
	f := r.frames[i]
	go func() {
		defer close(fut.done)
		fut.out, fut.err = invoke(ctx, f, args)
	}()
	return fut
}

// Rest is the remainder of a method after a nested frame. It receives the
// values the nested frame provides.
type Rest func(ctx context.Context, provided []any) (any, error)

// Wrap runs the nested frame at index i around rest. Rest runs at most once;
// errors it returns pass through the nested frame unchanged.
func (r *Runtime) Wrap(ctx context.Context, i int, args []any, rest Rest) (res any, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f := r.frames[i]

	called := false
	var restErr error
	next := func(ctx context.Context, provided ...any) (any, error) {
		if called {
			return nil, &FrameError{Frame: f.Name, Err: ErrNextReused}
		}
		called = true
		if len(provided) != len(f.Outputs) {
			restErr = &FrameError{
				Frame: f.Name,
				Err:   fmt.Errorf("provided %d values, declared %d", len(provided), len(f.Outputs)),
			}
			return nil, restErr
		}
		res, err := rest(ctx, provided)
		restErr = err
		return res, err
	}

	defer func() {
		if p := recover(); p != nil {
			res, err = nil, &FrameError{Frame: f.Name, Err: fmt.Errorf("panic: %v", p), Stack: debug.Stack()}
		}
	}()

	res, err = f.Wrap(ctx, args, next)
	if err == nil {
		return res, nil
	}
	var fe *FrameError
	if (restErr != nil && errors.Is(err, restErr)) || errors.As(err, &fe) || ctx.Err() != nil {
		return nil, err
	}
	return nil, &FrameError{Frame: f.Name, Err: err}
}

// Future is the pending result of an asynchronous frame.
type Future struct {
	done chan struct{}
	out  []any
	err  error
}

// Await blocks until the frame completes or ctx is done. A done context
// wins: the method does not resume past an unfinished frame.
func (f *Future) Await(ctx context.Context) ([]any, error) {
	select {
	case <-f.done:
		return f.out, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Resolve reads a service of type T from the request scope.
func Resolve[T any](ctx context.Context, scope core.ServiceResolver) (T, error) {
	var zero T
	v, err := scope.Resolve(ctx, reflect.TypeOf((*T)(nil)).Elem())
	if err != nil {
		return zero, err
	}
	return As[T](v), nil
}

// As converts a slot value to T, mapping nil to the zero value.
func As[T any](v any) T {
	if v == nil {
		var zero T
		return zero
	}
	return v.(T)
}

func invoke(ctx context.Context, f *core.Frame, args []any) (out []any, err error) {
	defer func() {
		if p := recover(); p != nil {
			out, err = nil, &FrameError{Frame: f.Name, Err: fmt.Errorf("panic: %v", p), Stack: debug.Stack()}
		}
	}()

	out, err = f.Call(ctx, args)
	if err != nil {
		return nil, &FrameError{Frame: f.Name, Err: err}
	}
	if len(out) != len(f.Outputs) {
		return nil, &FrameError{
			Frame: f.Name,
			Err:   fmt.Errorf("returned %d values, declared %d", len(out), len(f.Outputs)),
		}
	}
	return out, nil
}

type emptyScope struct{}

func (emptyScope) Resolve(_ context.Context, t reflect.Type) (any, error) {
	return nil, fmt.Errorf("no container configured for %s", t)
}
