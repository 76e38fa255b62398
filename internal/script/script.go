// Package script builds frames from JavaScript expressions. Manifest
// operations describe their handlers as a list of steps; each step becomes
// one frame whose program is compiled when the executor is linked and run in
// a fresh runtime on every call.
package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/dop251/goja"

	"github.com/opmodel/opc/internal/core"
	"github.com/opmodel/opc/internal/output"
)

// InputName is the global holding the request payload.
const InputName = "input"

// Value is the result of a step. Steps exchange Values by name.
type Value struct {
	V any
}

// MarshalJSON encodes the underlying value.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.V)
}

// MarshalYAML encodes the underlying value.
func (v Value) MarshalYAML() (any, error) {
	return v.V, nil
}

// Input is implemented by operations whose payload scripts can read.
type Input interface {
	ScriptInput() map[string]any
}

var (
	valueType = core.TypeOf[Value]()
	inputType = core.TypeOf[Input]()

	identRegex = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)
)

// ValueType returns the type of step outputs, for descriptors whose result
// is a step.
func ValueType() core.Variable {
	return core.Variable{Type: valueType}
}

// Step is one scripted handler.
type Step struct {
	// Name is the step name. It is also the global under which later steps
	// see its value.
	Name string

	// Expr is the program. Its completion value is the step's value.
	Expr string

	// Uses lists the steps whose values the program reads.
	Uses []string

	// Async runs the step off the request goroutine.
	Async bool

	// Always keeps the step even when nothing reads its value.
	Always bool
}

// Validate checks names. Syntax is checked when the frame is prepared.
func (s Step) Validate() error {
	if !identRegex.MatchString(s.Name) {
		return fmt.Errorf("step %q: name must be a JavaScript identifier", s.Name)
	}
	if s.Name == InputName {
		return fmt.Errorf("step %q: name is reserved", s.Name)
	}
	for _, u := range s.Uses {
		if !identRegex.MatchString(u) || u == InputName {
			return fmt.Errorf("step %q: invalid dependency %q", s.Name, u)
		}
		if u == s.Name {
			return fmt.Errorf("step %q: step cannot use itself", s.Name)
		}
	}
	return nil
}

// program compiles a step once and shares the result between runtimes.
type program struct {
	step Step
	once sync.Once
	prog *goja.Program
	err  error
}

func (p *program) compile() (*goja.Program, error) {
	p.once.Do(func() {
		p.prog, p.err = goja.Compile(p.step.Name, p.step.Expr, false)
	})
	return p.prog, p.err
}

// Frame builds the frame for s. Its inputs are the operation (through
// Input) followed by one Value per used step; its single output is the
// step's Value.
func Frame(s Step) (*core.Frame, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	inputs := make([]core.Variable, 0, len(s.Uses)+1)
	inputs = append(inputs, core.Variable{Type: inputType})
	for _, u := range s.Uses {
		inputs = append(inputs, core.Variable{Type: valueType, Name: u})
	}
	outputs := []core.Variable{{Type: valueType, Name: s.Name}}

	mode := core.ModeSync
	if s.Async {
		mode = core.ModeAsyncReturning
	}

	p := &program{step: s}
	f := core.NewFrame(s.Name, mode, inputs, outputs, p.run)
	f.Required = s.Always
	f.Doc = []string{"script: " + s.Expr}
	f.Prepare = func() error {
		_, err := p.compile()
		return err
	}
	return f, f.Validate()
}

func (p *program) run(ctx context.Context, args []any) ([]any, error) {
	prog, err := p.compile()
	if err != nil {
		return nil, err
	}

	vm := goja.New()
	stop := context.AfterFunc(ctx, func() { vm.Interrupt(ctx.Err()) })
	defer stop()

	payload := map[string]any{}
	if in, ok := args[0].(Input); ok && in != nil {
		if m := in.ScriptInput(); m != nil {
			payload = m
		}
	}
	if err := vm.Set(InputName, payload); err != nil {
		return nil, fmt.Errorf("setting input: %w", err)
	}
	for i, u := range p.step.Uses {
		v, _ := args[i+1].(Value)
		if err := vm.Set(u, v.V); err != nil {
			return nil, fmt.Errorf("setting %s: %w", u, err)
		}
	}
	if err := p.console(vm); err != nil {
		return nil, err
	}

	res, err := vm.RunProgram(prog)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("script: %w", err)
	}
	return []any{Value{V: export(res)}}, nil
}

func (p *program) console(vm *goja.Runtime) error {
	console := vm.NewObject()
	err := console.Set("log", func(call goja.FunctionCall) goja.Value {
		args := make([]any, len(call.Arguments))
		for i, a := range call.Arguments {
			args[i] = a.Export()
		}
		output.Debug("script log", "step", p.step.Name, "args", args)
		return goja.Undefined()
	})
	if err != nil {
		return err
	}
	return vm.Set("console", console)
}

func export(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}
