package build

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/opmodel/opc/internal/core"
)

// MethodBuilder lowers a Resolution into method IR.
type MethodBuilder struct{}

// NewMethodBuilder creates a MethodBuilder.
func NewMethodBuilder() *MethodBuilder {
	return &MethodBuilder{}
}

type outputKey struct {
	frame *core.Frame
	index int
}

// Build lowers the resolved frames of d into a Method.
//
// Sync frames become OpCall. Async frames become OpAwait, so nothing after
// them runs before they complete. A nested frame becomes OpWrap and every
// later frame is emitted into its body.
func (b *MethodBuilder) Build(d *core.OperationDescriptor, res *Resolution) (*Method, error) {
	m := &Method{
		Operation:  d.Name,
		TypeName:   ExecutorTypeName(d.Name),
		Descriptor: d,
		Frames:     res.Order,
		Result:     -1,
		Resolution: res,
	}
	m.Slots = append(m.Slots, Slot{Var: d.Input(), Type: d.Type, Ident: "in"})

	services := make(map[reflect.Type]int, len(res.Services))
	var top []Instr
	for _, t := range res.Services {
		slot := m.addSlot(core.Variable{Type: t})
		services[t] = slot
		top = append(top, Instr{Op: OpResolve, Frame: -1, Slot: slot})
	}

	outputs := make(map[outputKey]int)
	slotFor := func(bnd Binding) (int, error) {
		switch bnd.Source {
		case FromArgument:
			return ArgumentSlot, nil
		case FromContainer:
			if s, ok := services[bnd.Type]; ok {
				return s, nil
			}
		case FromFrame:
			if s, ok := outputs[outputKey{bnd.Producer, bnd.Output}]; ok {
				return s, nil
			}
		}
		return 0, fmt.Errorf("operation %q: %s bound to %s before it is available", d.Name, bnd.Input, bnd.Source)
	}

	block := &top
	for idx, f := range res.Order {
		ins := Instr{Frame: idx, Slot: -1}
		switch {
		case f.Nested:
			ins.Op = OpWrap
		case f.Mode.IsAsync():
			ins.Op = OpAwait
			m.Async = true
		default:
			ins.Op = OpCall
		}

		for _, bnd := range res.Bindings[f] {
			s, err := slotFor(bnd)
			if err != nil {
				return nil, err
			}
			m.Slots[s].Used = true
			ins.Args = append(ins.Args, s)
		}
		for i, out := range f.Outputs {
			s := m.addSlot(out)
			outputs[outputKey{f, i}] = s
			ins.Results = append(ins.Results, s)
		}

		*block = append(*block, ins)
		if ins.Op == OpWrap {
			last := &(*block)[len(*block)-1]
			block = &last.Body
		}
	}

	if res.Result != nil {
		s, err := slotFor(*res.Result)
		if err != nil {
			return nil, err
		}
		m.Slots[s].Used = true
		m.Result = s
	}
	m.Body = top
	return m, nil
}

func (m *Method) addSlot(v core.Variable) int {
	idx := len(m.Slots)
	m.Slots = append(m.Slots, Slot{Var: v, Type: v.Type, Ident: fmt.Sprintf("v%d", idx)})
	return idx
}

// Source renders the method alone. The same Method always renders to the
// same text.
func (m *Method) Source() string {
	w := NewSourceWriter(NewImports())
	m.render(w)
	return w.String()
}

// ExecutorTypeName converts an operation name into an exported Go type name.
func ExecutorTypeName(operation string) string {
	var b strings.Builder
	upper := true
	for _, r := range operation {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	name := b.String()
	if name == "" || !unicode.IsLetter([]rune(name)[0]) {
		name = "Op" + name
	}
	return name + "Executor"
}
