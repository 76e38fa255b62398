package build

import (
	"context"
	"errors"
	"fmt"
	"go/parser"
	"go/scanner"
	"go/token"
	"os"
	"path/filepath"
	"reflect"

	"github.com/opmodel/opc/internal/core"
	"github.com/opmodel/opc/internal/output"
	"github.com/opmodel/opc/pkg/opcrt"
)

// Backend compiles a rendered assembly into an artifact.
type Backend interface {
	// Name identifies the backend in plans and logs.
	Name() string

	// Compile checks the unit. It returns a *CompilationError when the
	// generated source is invalid.
	Compile(ctx context.Context, a *Assembly) (*Artifact, error)
}

// Artifact is a compiled assembly. It is immutable and may be linked any
// number of times.
type Artifact struct {
	// Digest is the configuration digest the artifact was compiled for.
	Digest string

	// Backend names the backend that produced it.
	Backend string

	// Source is the unit that was compiled.
	Source []byte

	// Types lists the generated executor types.
	Types []string
}

// LinkBackend is the in-process backend. It parses the generated unit,
// checks every frame statement against the frame's declared signature and
// links the method IR into closures over opcrt.Runtime. The closures follow
// exactly the control flow of the rendered source.
type LinkBackend struct{}

// NewLinkBackend creates the default backend.
func NewLinkBackend() *LinkBackend {
	return &LinkBackend{}
}

// Name returns "link".
func (b *LinkBackend) Name() string {
	return "link"
}

// Compile parses and checks the unit.
func (b *LinkBackend) Compile(ctx context.Context, a *Assembly) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fset := token.NewFileSet()
	if _, err := parser.ParseFile(fset, a.Unit, a.Source, parser.AllErrors|parser.SkipObjectResolution); err != nil {
		return nil, a.syntaxError(err)
	}

	for _, m := range a.Methods {
		if err := a.check(m); err != nil {
			return nil, err
		}
	}

	output.Debug("assembly compiled", "backend", b.Name(), "types", len(a.Methods), "digest", a.Digest)
	return &Artifact{
		Digest:  a.Digest,
		Backend: b.Name(),
		Source:  a.Source,
		Types:   a.TypeNames(),
	}, nil
}

func (a *Assembly) syntaxError(err error) *CompilationError {
	ce := &CompilationError{Unit: a.Unit, Diagnostic: err.Error(), Cause: err, source: a.Source}
	var list scanner.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		ce.Line = list[0].Pos.Line
		ce.Column = list[0].Pos.Column
		ce.Diagnostic = list[0].Msg
	}
	if ce.Line > 0 {
		ce.OperationName, ce.Frame = a.locate(ce.Line)
	}
	return ce
}

// locate maps a generated line back to the operation and frame emitted
// there.
func (a *Assembly) locate(line int) (operation, frame string) {
	var method *Method
	for _, m := range a.Methods {
		if start := a.typeLines[m]; start <= line && (method == nil || start > a.typeLines[method]) {
			method = m
		}
	}
	if method == nil {
		return "", ""
	}

	best := 0
	method.Walk(func(ins *Instr) {
		pos, ok := a.positions[ins]
		if !ok || pos.Line > line || pos.Line < best || ins.Op == OpResolve {
			return
		}
		best = pos.Line
		frame = method.Frames[ins.Frame].Name
	})
	return method.Operation, frame
}

// check verifies that every statement passes each frame the types it
// declares and reads back as many values as it produces.
func (a *Assembly) check(m *Method) error {
	var err error
	m.Walk(func(ins *Instr) {
		if err != nil || ins.Op == OpResolve {
			return
		}
		f := m.Frames[ins.Frame]
		if len(ins.Args) != len(f.Inputs) {
			err = a.errorAt(m, ins, fmt.Sprintf("frame takes %d inputs, statement passes %d", len(f.Inputs), len(ins.Args)))
			return
		}
		for i, s := range ins.Args {
			have, want := m.Slots[s].Type, f.Inputs[i].Type
			if !assignable(have, want) {
				err = a.errorAt(m, ins, fmt.Sprintf("cannot use %s (%s) as %s value in argument %d",
					m.Slots[s].Ident, have, want, i))
				return
			}
		}
		if len(ins.Results) != len(f.Outputs) {
			err = a.errorAt(m, ins, fmt.Sprintf("frame produces %d values, statement reads %d", len(f.Outputs), len(ins.Results)))
		}
	})
	if err != nil {
		return err
	}

	if want, ok := m.resultType(); ok && m.Result >= 0 {
		if have := m.Slots[m.Result].Type; !assignable(have, want) {
			return &CompilationError{
				Unit:          a.Unit,
				OperationName: m.Operation,
				Line:          a.typeLines[m],
				Column:        1,
				Diagnostic:    fmt.Sprintf("cannot return %s as %s", have, want),
				source:        a.Source,
			}
		}
	}
	return nil
}

func (m *Method) resultType() (reflect.Type, bool) {
	if m.Resolution == nil || m.Resolution.Result == nil {
		return nil, false
	}
	return m.Resolution.Result.Input.Type, true
}

func assignable(have, want reflect.Type) bool {
	if have == nil || want == nil {
		return false
	}
	return have.AssignableTo(want)
}

func (a *Assembly) errorAt(m *Method, ins *Instr, diagnostic string) *CompilationError {
	ce := &CompilationError{
		Unit:          a.Unit,
		OperationName: m.Operation,
		Diagnostic:    diagnostic,
		source:        a.Source,
	}
	if ins.Op != OpResolve {
		ce.Frame = m.Frames[ins.Frame].Name
	}
	if pos, ok := a.positions[ins]; ok {
		ce.Line, ce.Column = pos.Line, pos.Column
	}
	return ce
}

// Link binds every method of a to a runtime over container and returns one
// executor per operation. Frame Prepare hooks run here; a failing hook is a
// CompilationError at the frame's statement.
func Link(a *Assembly, container core.Container) (map[string]opcrt.Executor, error) {
	executors := make(map[string]opcrt.Executor, len(a.Methods))
	for _, m := range a.Methods {
		var err error
		m.Walk(func(ins *Instr) {
			if err != nil || ins.Op == OpResolve {
				return
			}
			f := m.Frames[ins.Frame]
			if f.Prepare == nil {
				return
			}
			if perr := f.Prepare(); perr != nil {
				ce := a.errorAt(m, ins, perr.Error())
				ce.Cause = perr
				err = ce
			}
		})
		if err != nil {
			return nil, err
		}
		executors[m.Operation] = linkMethod(m, opcrt.NewRuntime(m.Frames, container))
	}
	return executors, nil
}

// linked executes one method's IR. Slots live for a single invocation.
type linked struct {
	m  *Method
	rt *opcrt.Runtime
}

func linkMethod(m *Method, rt *opcrt.Runtime) opcrt.Executor {
	l := &linked{m: m, rt: rt}
	return opcrt.ExecutorFunc(l.execute)
}

func (l *linked) execute(ctx context.Context, op any) (any, error) {
	inv := &invocation{linked: l, slots: make([]any, len(l.m.Slots))}
	inv.slots[ArgumentSlot] = op
	if len(l.m.Resolution.Services) > 0 {
		inv.scope = l.rt.Scope()
	}
	return inv.run(ctx, l.m.Body)
}

type invocation struct {
	*linked
	slots []any
	scope core.ServiceResolver
}

func (inv *invocation) run(ctx context.Context, block []Instr) (any, error) {
	for i := range block {
		ins := &block[i]
		switch ins.Op {
		case OpResolve:
			v, err := inv.scope.Resolve(ctx, inv.m.Slots[ins.Slot].Type)
			if err != nil {
				return nil, err
			}
			inv.slots[ins.Slot] = v

		case OpCall:
			out, err := inv.rt.Call(ctx, ins.Frame, inv.args(ins.Args)...)
			if err != nil {
				return nil, err
			}
			inv.store(ins.Results, out)

		case OpAwait:
			out, err := inv.rt.Go(ctx, ins.Frame, inv.args(ins.Args)...).Await(ctx)
			if err != nil {
				return nil, err
			}
			inv.store(ins.Results, out)

		case OpWrap:
			body := ins.Body
			results := ins.Results
			return inv.rt.Wrap(ctx, ins.Frame, inv.args(ins.Args), func(ctx context.Context, provided []any) (any, error) {
				inv.store(results, provided)
				return inv.run(ctx, body)
			})
		}
	}
	if inv.m.Result < 0 {
		return nil, nil
	}
	return inv.slots[inv.m.Result], nil
}

func (inv *invocation) args(slots []int) []any {
	args := make([]any, len(slots))
	for i, s := range slots {
		args[i] = inv.slots[s]
	}
	return args
}

func (inv *invocation) store(slots []int, values []any) {
	for i, s := range slots {
		if i < len(values) {
			inv.slots[s] = values[i]
		}
	}
}

// Emit writes the unit into dir and returns the file path.
func (a *Assembly) Emit(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating emit directory: %w", err)
	}
	path := filepath.Join(dir, a.Unit)
	if err := os.WriteFile(path, a.Source, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}
