package build

import (
	"fmt"
	"reflect"

	"github.com/opmodel/opc/internal/core"
)

// OpCode is an IR instruction kind.
type OpCode int

const (
	// OpResolve loads a container service into a slot.
	OpResolve OpCode = iota

	// OpCall runs a sync frame and stores its outputs.
	OpCall

	// OpAwait starts an async frame and suspends until it completes.
	OpAwait

	// OpWrap runs a nested frame around Body, the remainder of the block.
	// It is always the last instruction of its block.
	OpWrap
)

// String returns the instruction mnemonic.
func (o OpCode) String() string {
	switch o {
	case OpResolve:
		return "resolve"
	case OpCall:
		return "call"
	case OpAwait:
		return "await"
	case OpWrap:
		return "wrap"
	default:
		return fmt.Sprintf("OpCode(%d)", int(o))
	}
}

// Slot is one Variable materialized in a method invocation.
type Slot struct {
	// Var is the Variable held by the slot.
	Var core.Variable

	// Type is the static type of the value stored in the slot.
	Type reflect.Type

	// Ident is the identifier used in generated source.
	Ident string

	// Used is set when at least one instruction or the result reads it.
	Used bool
}

// Instr is one IR instruction.
type Instr struct {
	Op OpCode

	// Frame indexes Method.Frames. Unused by OpResolve.
	Frame int

	// Slot is the target of OpResolve.
	Slot int

	// Args are the slots passed to the frame in input order.
	Args []int

	// Results are the slots receiving outputs in output order.
	Results []int

	// Body is the remainder wrapped by OpWrap.
	Body []Instr
}

// Method is the IR of one operation's generated method.
type Method struct {
	// Operation is the operation name.
	Operation string

	// TypeName is the Go type name of the generated executor.
	TypeName string

	// Descriptor is the operation being compiled.
	Descriptor *core.OperationDescriptor

	// Frames is the frame table in emission order.
	Frames []*core.Frame

	// Slots holds every Variable materialized during an invocation. Slot 0
	// is the operation argument.
	Slots []Slot

	// Body is the top-level instruction block.
	Body []Instr

	// Result is the slot returned by the method, or -1.
	Result int

	// Async is set when any frame suspends the method.
	Async bool

	// Resolution is the dependency resolution the method was built from.
	Resolution *Resolution
}

// ArgumentSlot is the index of the slot holding the operation instance.
const ArgumentSlot = 0

// Walk calls fn for every instruction, depth first, in execution order.
func (m *Method) Walk(fn func(ins *Instr)) {
	var walk func(block []Instr)
	walk = func(block []Instr) {
		for i := range block {
			fn(&block[i])
			if block[i].Op == OpWrap {
				walk(block[i].Body)
			}
		}
	}
	walk(m.Body)
}

// SuspensionPoints returns the names of frames the method suspends at.
func (m *Method) SuspensionPoints() []string {
	var names []string
	m.Walk(func(ins *Instr) {
		if ins.Op == OpAwait {
			names = append(names, m.Frames[ins.Frame].Name)
		}
	})
	return names
}
