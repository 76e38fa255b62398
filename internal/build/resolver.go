// Package build turns an operation's frames into a compiled executor: it
// resolves frame dependencies into an emission order, lowers the order into
// a method IR, renders the IR as Go source and links it through a backend.
package build

import (
	"reflect"

	"github.com/opmodel/opc/internal/core"
)

// Source says where a frame input comes from.
type Source int

const (
	// FromArgument binds the operation instance passed to Execute.
	FromArgument Source = iota

	// FromContainer binds a service resolved from the container.
	FromContainer

	// FromFrame binds an output of an earlier frame.
	FromFrame
)

// String returns the source name.
func (s Source) String() string {
	switch s {
	case FromArgument:
		return "argument"
	case FromContainer:
		return "container"
	case FromFrame:
		return "frame"
	default:
		return "unknown"
	}
}

// Binding connects one requested Variable to its source.
type Binding struct {
	// Input is the requested Variable.
	Input core.Variable

	// Source says where the value comes from.
	Source Source

	// Producer and Output identify the producing frame output when Source
	// is FromFrame.
	Producer *core.Frame
	Output   int

	// Type is the type of the bound value.
	Type reflect.Type
}

// Resolution is the result of ordering one operation's frames.
type Resolution struct {
	// Order lists retained frames; every frame's inputs are bound to the
	// argument, the container, or frames strictly earlier in Order.
	Order []*core.Frame

	// Pruned lists frames dropped because nothing consumed their outputs.
	Pruned []*core.Frame

	// Bindings holds each retained frame's input bindings in input order.
	Bindings map[*core.Frame][]Binding

	// Result binds the method result. Nil for operations without one.
	Result *Binding

	// Services lists container types the method resolves, in first-use
	// order.
	Services []reflect.Type
}

// Request is the input to Order.
type Request struct {
	// Operation names the operation in errors.
	Operation string

	// Argument is the Variable holding the operation instance.
	Argument core.Variable

	// Result is the required output, if any.
	Result *core.Variable

	// Frames are the available frames in append order. Append order is the
	// tie-break between producers of the same Variable.
	Frames []*core.Frame

	// Services are container types requested explicitly by builders.
	Services []core.Variable

	// Container is the set of container-resolvable types.
	Container core.TypeSet
}

// Order computes an emission order in which every Variable is produced
// before it is consumed.
//
// Frames without outputs, frames marked Required, nested frames and the
// producer of the result are roots. Roots are visited in append order and
// their dependencies are emitted first (post-order). Frames never reached
// are pruned after the same unresolved and cyclic checks.
func Order(req Request) (*Resolution, error) {
	r := &resolver{
		req:       req,
		temporary: make(map[*core.Frame]bool),
		permanent: make(map[*core.Frame]bool),
		checked:   make(map[*core.Frame]bool),
		res: &Resolution{
			Bindings: make(map[*core.Frame][]Binding),
		},
		services: make(map[reflect.Type]bool),
	}
	return r.run()
}

type resolver struct {
	req       Request
	temporary map[*core.Frame]bool
	permanent map[*core.Frame]bool
	checked   map[*core.Frame]bool
	path      []*core.Frame
	res       *Resolution
	services  map[reflect.Type]bool
}

func (r *resolver) run() (*Resolution, error) {
	for _, svc := range r.req.Services {
		if !r.req.Container.Has(svc.Type) {
			return nil, &UnresolvedDependencyError{OperationName: r.req.Operation, Variable: svc}
		}
	}

	var resultProducer *core.Frame
	if r.req.Result != nil {
		b, err := r.bind("", *r.req.Result)
		if err != nil {
			return nil, err
		}
		r.res.Result = &b
		resultProducer = b.Producer
	}

	for _, f := range r.req.Frames {
		if isRoot(f) || f == resultProducer {
			if err := r.visit(f); err != nil {
				return nil, err
			}
		}
	}

	// Unreached frames are pruned, but only once their own inputs bind and
	// they sit on no cycle.
	for _, f := range r.req.Frames {
		if r.permanent[f] {
			continue
		}
		if err := r.check(f); err != nil {
			return nil, err
		}
		r.res.Pruned = append(r.res.Pruned, f)
	}

	// Services are recorded in emission order so generated code resolves
	// them deterministically.
	for _, f := range r.res.Order {
		for _, b := range r.res.Bindings[f] {
			if b.Source == FromContainer && !r.services[b.Type] {
				r.services[b.Type] = true
				r.res.Services = append(r.res.Services, b.Type)
			}
		}
	}
	if b := r.res.Result; b != nil && b.Source == FromContainer && !r.services[b.Type] {
		r.services[b.Type] = true
		r.res.Services = append(r.res.Services, b.Type)
	}
	return r.res, nil
}

func isRoot(f *core.Frame) bool {
	return len(f.Outputs) == 0 || f.Required || f.Nested
}

// visit emits f after its dependencies. A frame seen again while still on
// the path is a cycle.
func (r *resolver) visit(f *core.Frame) error {
	if r.permanent[f] {
		return nil
	}
	if r.temporary[f] {
		return r.cycle(f)
	}
	r.temporary[f] = true
	r.path = append(r.path, f)

	bindings := make([]Binding, len(f.Inputs))
	for i, in := range f.Inputs {
		b, err := r.bind(f.Name, in)
		if err != nil {
			return err
		}
		if b.Source == FromFrame {
			if err := r.visit(b.Producer); err != nil {
				return err
			}
		}
		bindings[i] = b
	}

	r.path = r.path[:len(r.path)-1]
	delete(r.temporary, f)
	r.permanent[f] = true
	r.res.Bindings[f] = bindings
	r.res.Order = append(r.res.Order, f)
	return nil
}

// check walks an unreached frame like visit without emitting it.
func (r *resolver) check(f *core.Frame) error {
	if r.permanent[f] || r.checked[f] {
		return nil
	}
	if r.temporary[f] {
		return r.cycle(f)
	}
	r.temporary[f] = true
	r.path = append(r.path, f)

	for _, in := range f.Inputs {
		b, err := r.bind(f.Name, in)
		if err != nil {
			return err
		}
		if b.Source == FromFrame {
			if err := r.check(b.Producer); err != nil {
				return err
			}
		}
	}

	r.path = r.path[:len(r.path)-1]
	delete(r.temporary, f)
	r.checked[f] = true
	return nil
}

func (r *resolver) cycle(f *core.Frame) error {
	start := 0
	for i, p := range r.path {
		if p == f {
			start = i
			break
		}
	}
	names := make([]string, 0, len(r.path)-start+1)
	for _, p := range r.path[start:] {
		names = append(names, p.Name)
	}
	names = append(names, f.Name)
	return &CyclicDependencyError{OperationName: r.req.Operation, Path: names}
}

// bind finds the source of a requested Variable: the argument first, then
// the container, then the best producing frame. Exact type matches beat
// interface matches; ties go to the earliest appended frame.
func (r *resolver) bind(frame string, in core.Variable) (Binding, error) {
	if r.req.Argument.Satisfies(in) != core.NoMatch {
		return Binding{Input: in, Source: FromArgument, Type: r.req.Argument.Type}, nil
	}
	if in.Name == "" && r.req.Container.Has(in.Type) {
		return Binding{Input: in, Source: FromContainer, Type: in.Type}, nil
	}

	var (
		best      *core.Frame
		bestOut   int
		bestMatch = core.NoMatch
	)
	for _, f := range r.req.Frames {
		for i, out := range f.Outputs {
			m := out.Satisfies(in)
			if m > bestMatch {
				best, bestOut, bestMatch = f, i, m
			}
		}
		if bestMatch == core.ExactMatch {
			break
		}
	}
	if best == nil {
		return Binding{}, &UnresolvedDependencyError{OperationName: r.req.Operation, Frame: frame, Variable: in}
	}
	return Binding{
		Input:    in,
		Source:   FromFrame,
		Producer: best,
		Output:   bestOut,
		Type:     best.Outputs[bestOut].Type,
	}, nil
}

// RequestFor builds the resolution request of a sealed method context.
func RequestFor(mc *core.MethodContext, container core.TypeSet) Request {
	req := Request{
		Operation: mc.Descriptor().Name,
		Argument:  mc.Input(),
		Frames:    mc.Frames(),
		Services:  mc.Services(),
		Container: container,
	}
	if v, ok := mc.Result(); ok {
		req.Result = &v
	}
	return req
}
