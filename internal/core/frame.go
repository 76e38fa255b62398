package core

import (
	"context"
	"fmt"
	"reflect"
	"strings"
)

// Mode is the execution discriminant of a Frame.
type Mode int

const (
	// ModeSync frames run inline and continue straight through.
	ModeSync Mode = iota

	// ModeAsync frames start asynchronous work that yields no value; the
	// method resumes only once that work completes.
	ModeAsync

	// ModeAsyncReturning frames start asynchronous work that yields the
	// frame's outputs; the method resumes once they are available.
	ModeAsyncReturning
)

// String returns the mode name used in plans and generated comments.
func (m Mode) String() string {
	switch m {
	case ModeSync:
		return "sync"
	case ModeAsync:
		return "async"
	case ModeAsyncReturning:
		return "async-returning"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// IsAsync reports whether frames of this mode suspend the method.
func (m Mode) IsAsync() bool {
	return m == ModeAsync || m == ModeAsyncReturning
}

// CallFunc runs a sync or async frame with its resolved inputs and returns
// its outputs in declaration order.
type CallFunc func(ctx context.Context, args []any) ([]any, error)

// Next runs the remainder of the method. A nested frame passes the values it
// provides, in declaration order.
type Next func(ctx context.Context, provided ...any) (any, error)

// WrapFunc runs a nested frame around the remainder of the method.
type WrapFunc func(ctx context.Context, args []any, next Next) (any, error)

// Frame is one unit of generated logic.
type Frame struct {
	// Name is the logical name reported in plans and execution errors.
	Name string

	// Mode selects sync or async emission.
	Mode Mode

	// Nested frames receive the remainder of the method as a continuation.
	Nested bool

	// Required frames are kept even when none of their outputs are consumed.
	Required bool

	// Inputs are the Variables the frame consumes, in argument order.
	Inputs []Variable

	// Outputs are the Variables the frame creates. For nested frames these
	// are the values handed to Next.
	Outputs []Variable

	// Doc lines are emitted as comments above the frame's statement.
	Doc []string

	// Call runs non-nested frames.
	Call CallFunc

	// Wrap runs nested frames.
	Wrap WrapFunc

	// Prepare, when set, runs once while the frame is linked into a compiled
	// executor. An error fails compilation.
	Prepare func() error
}

// String returns the frame name and mode.
func (f *Frame) String() string {
	if f.Nested {
		return f.Name + " (nested)"
	}
	return fmt.Sprintf("%s (%s)", f.Name, f.Mode)
}

// Validate checks that the frame is internally consistent.
func (f *Frame) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("frame has no name")
	}
	switch f.Mode {
	case ModeSync, ModeAsync, ModeAsyncReturning:
	default:
		return fmt.Errorf("frame %q: unknown mode %d", f.Name, int(f.Mode))
	}
	if f.Nested {
		if f.Mode != ModeSync {
			return fmt.Errorf("frame %q: nested frames must be sync", f.Name)
		}
		if f.Wrap == nil {
			return fmt.Errorf("frame %q: nested frame has no wrap function", f.Name)
		}
	} else if f.Call == nil {
		return fmt.Errorf("frame %q: no call function", f.Name)
	}
	if f.Mode == ModeAsync && len(f.Outputs) > 0 {
		return fmt.Errorf("frame %q: async frame without result declares %d outputs", f.Name, len(f.Outputs))
	}
	if f.Mode == ModeAsyncReturning && len(f.Outputs) == 0 {
		return fmt.Errorf("frame %q: async-returning frame declares no outputs", f.Name)
	}
	for i, in := range f.Inputs {
		if in.Type == nil {
			return fmt.Errorf("frame %q: input %d has no type", f.Name, i)
		}
	}
	for i, out := range f.Outputs {
		if out.Type == nil {
			return fmt.Errorf("frame %q: output %d has no type", f.Name, i)
		}
		if out.Creator != f {
			return fmt.Errorf("frame %q: output %s is owned by another frame", f.Name, out)
		}
	}
	return nil
}

// NewFrame builds a non-nested frame from explicit Variables. Output
// ownership is assigned to the new frame.
func NewFrame(name string, mode Mode, inputs, outputs []Variable, call CallFunc) *Frame {
	f := &Frame{
		Name:   name,
		Mode:   mode,
		Inputs: inputs,
		Call:   call,
	}
	f.Outputs = own(f, outputs)
	return f
}

// NewNested builds a nested frame providing the given Variables to the
// remainder of the method.
func NewNested(name string, inputs, provides []Variable, wrap WrapFunc) *Frame {
	f := &Frame{
		Name:   name,
		Mode:   ModeSync,
		Nested: true,
		Inputs: inputs,
		Wrap:   wrap,
	}
	f.Outputs = own(f, provides)
	return f
}

func own(f *Frame, vars []Variable) []Variable {
	out := make([]Variable, len(vars))
	for i, v := range vars {
		v.Creator = f
		out[i] = v
	}
	return out
}

// FrameOption configures frames built from Go functions.
type FrameOption func(*frameConfig)

type frameConfig struct {
	async       bool
	required    bool
	inputNames  []string
	outputNames []string
	provides    []reflect.Type
	doc         []string
}

// Async marks the frame asynchronous. Frames with outputs become
// ModeAsyncReturning, frames without become ModeAsync.
func Async() FrameOption {
	return func(c *frameConfig) { c.async = true }
}

// Always keeps the frame even when its outputs are never consumed.
func Always() FrameOption {
	return func(c *frameConfig) { c.required = true }
}

// InputNames names the function's inputs positionally, skipping
// context.Context and Next parameters.
func InputNames(names ...string) FrameOption {
	return func(c *frameConfig) { c.inputNames = names }
}

// OutputNames names the function's outputs positionally.
func OutputNames(names ...string) FrameOption {
	return func(c *frameConfig) { c.outputNames = names }
}

// Provides declares the types a nested frame passes to Next.
func Provides(types ...reflect.Type) FrameOption {
	return func(c *frameConfig) { c.provides = types }
}

// WithDoc attaches comment lines to the frame's generated statement.
func WithDoc(lines ...string) FrameOption {
	return func(c *frameConfig) { c.doc = lines }
}

var (
	contextType = TypeOf[context.Context]()
	errorType   = TypeOf[error]()
	nextType    = TypeOf[Next]()
	anyType     = TypeOf[any]()
)

// Func builds a sync (or, with Async, asynchronous) frame from a Go function.
//
// The function may take a leading context.Context. Every other parameter is
// an input; every result except a trailing error is an output.
func Func(name string, fn any, opts ...FrameOption) (*Frame, error) {
	cfg := applyOptions(opts)
	fv := reflect.ValueOf(fn)
	ft := fv.Type()
	if fv.Kind() != reflect.Func {
		return nil, fmt.Errorf("frame %q: expected a function, got %s", name, ft)
	}
	if ft.IsVariadic() {
		return nil, fmt.Errorf("frame %q: variadic functions are not supported", name)
	}

	first := 0
	takesCtx := ft.NumIn() > 0 && ft.In(0) == contextType
	if takesCtx {
		first = 1
	}
	inputs, err := paramVariables(name, ft, first, cfg.inputNames)
	if err != nil {
		return nil, err
	}

	numOut := ft.NumOut()
	returnsErr := numOut > 0 && ft.Out(numOut-1) == errorType
	if returnsErr {
		numOut--
	}
	outTypes := make([]reflect.Type, numOut)
	for i := range outTypes {
		outTypes[i] = ft.Out(i)
	}
	outputs, err := namedVariables(name, outTypes, cfg.outputNames, "output")
	if err != nil {
		return nil, err
	}

	mode := ModeSync
	if cfg.async {
		mode = ModeAsync
		if len(outputs) > 0 {
			mode = ModeAsyncReturning
		}
	}

	call := func(ctx context.Context, args []any) ([]any, error) {
		in := make([]reflect.Value, 0, ft.NumIn())
		if takesCtx {
			in = append(in, reflect.ValueOf(&ctx).Elem())
		}
		for i, a := range args {
			in = append(in, argValue(a, ft.In(first+i)))
		}
		res := fv.Call(in)
		if returnsErr {
			if errVal := res[numOut]; !errVal.IsNil() {
				return nil, errVal.Interface().(error)
			}
		}
		out := make([]any, numOut)
		for i := 0; i < numOut; i++ {
			out[i] = res[i].Interface()
		}
		return out, nil
	}

	f := NewFrame(name, mode, inputs, outputs, call)
	f.Required = cfg.required
	f.Doc = cfg.doc
	return f, f.Validate()
}

// MustFunc is Func that panics on error. Intended for static frame tables.
func MustFunc(name string, fn any, opts ...FrameOption) *Frame {
	f, err := Func(name, fn, opts...)
	if err != nil {
		panic(err)
	}
	return f
}

// Wrap builds a nested frame from a function shaped
//
//	func(ctx context.Context, next core.Next, inputs...) (any, error)
//
// The types handed to next are declared with Provides.
func Wrap(name string, fn any, opts ...FrameOption) (*Frame, error) {
	cfg := applyOptions(opts)
	fv := reflect.ValueOf(fn)
	ft := fv.Type()
	if fv.Kind() != reflect.Func {
		return nil, fmt.Errorf("frame %q: expected a function, got %s", name, ft)
	}
	if ft.IsVariadic() {
		return nil, fmt.Errorf("frame %q: variadic functions are not supported", name)
	}
	if ft.NumIn() < 2 || ft.In(0) != contextType || ft.In(1) != nextType {
		return nil, fmt.Errorf("frame %q: nested function must start with (context.Context, core.Next)", name)
	}
	if ft.NumOut() != 2 || ft.Out(0) != anyType || ft.Out(1) != errorType {
		return nil, fmt.Errorf("frame %q: nested function must return (any, error)", name)
	}

	inputs, err := paramVariables(name, ft, 2, cfg.inputNames)
	if err != nil {
		return nil, err
	}
	provides, err := namedVariables(name, cfg.provides, cfg.outputNames, "provided value")
	if err != nil {
		return nil, err
	}

	wrap := func(ctx context.Context, args []any, next Next) (any, error) {
		in := make([]reflect.Value, 0, ft.NumIn())
		in = append(in, reflect.ValueOf(&ctx).Elem(), reflect.ValueOf(next))
		for i, a := range args {
			in = append(in, argValue(a, ft.In(2+i)))
		}
		res := fv.Call(in)
		var err error
		if !res[1].IsNil() {
			err = res[1].Interface().(error)
		}
		return res[0].Interface(), err
	}

	f := NewNested(name, inputs, provides, wrap)
	f.Required = cfg.required
	f.Doc = cfg.doc
	return f, f.Validate()
}

// MustWrap is Wrap that panics on error.
func MustWrap(name string, fn any, opts ...FrameOption) *Frame {
	f, err := Wrap(name, fn, opts...)
	if err != nil {
		panic(err)
	}
	return f
}

func applyOptions(opts []FrameOption) *frameConfig {
	cfg := &frameConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func paramVariables(frame string, ft reflect.Type, first int, names []string) ([]Variable, error) {
	types := make([]reflect.Type, 0, ft.NumIn()-first)
	for i := first; i < ft.NumIn(); i++ {
		if ft.In(i) == contextType {
			return nil, fmt.Errorf("frame %q: context.Context must be the first parameter", frame)
		}
		types = append(types, ft.In(i))
	}
	return namedVariables(frame, types, names, "input")
}

func namedVariables(frame string, types []reflect.Type, names []string, what string) ([]Variable, error) {
	if len(names) > len(types) {
		return nil, fmt.Errorf("frame %q: %d %s names given for %d values", frame, len(names), what, len(types))
	}
	vars := make([]Variable, len(types))
	for i, t := range types {
		vars[i] = Variable{Type: t}
		if i < len(names) {
			vars[i].Name = names[i]
		}
	}
	return vars, nil
}

// argValue converts a slot value to a reflect.Value of the parameter type,
// substituting the zero value for nil.
func argValue(a any, t reflect.Type) reflect.Value {
	if a == nil {
		return reflect.Zero(t)
	}
	v := reflect.ValueOf(a)
	if v.Type() != t && v.Type().ConvertibleTo(t) && t.Kind() != reflect.Interface {
		return v.Convert(t)
	}
	return v
}
