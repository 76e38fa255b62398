// Package manifest loads operation manifests. A manifest declares
// operations whose handlers are script steps; loading it yields operation
// descriptors ready for the build pipeline.
package manifest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/opmodel/opc/internal/core"
	oerrors "github.com/opmodel/opc/internal/errors"
	"github.com/opmodel/opc/internal/script"
)

// Manifest is a set of scripted operations.
type Manifest struct {
	Operations []Operation `json:"operations" yaml:"operations"`

	// Source is the file the manifest was loaded from.
	Source string `json:"-" yaml:"-"`
}

// Operation is one manifest operation.
type Operation struct {
	Name   string            `json:"name" yaml:"name"`
	Verb   string            `json:"verb,omitempty" yaml:"verb,omitempty"`
	Route  string            `json:"route,omitempty" yaml:"route,omitempty"`
	Labels map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`

	// Required lists payload fields a request must carry.
	Required []string `json:"required,omitempty" yaml:"required,omitempty"`

	// Result names the step whose value is returned. Defaults to the last
	// step.
	Result string `json:"result,omitempty" yaml:"result,omitempty"`

	Steps []Step `json:"steps" yaml:"steps"`
}

// Step is one scripted handler.
type Step struct {
	Name   string   `json:"name" yaml:"name"`
	Expr   string   `json:"expr" yaml:"expr"`
	Uses   []string `json:"uses,omitempty" yaml:"uses,omitempty"`
	Async  bool     `json:"async,omitempty" yaml:"async,omitempty"`
	Always bool     `json:"always,omitempty" yaml:"always,omitempty"`
}

func (m *Manifest) normalize() {
	for i := range m.Operations {
		op := &m.Operations[i]
		op.Verb = strings.ToUpper(strings.TrimSpace(op.Verb))
		if op.Result == "" && len(op.Steps) > 0 {
			op.Result = op.Steps[len(op.Steps)-1].Name
		}
	}
}

// check enforces the rules the schema cannot express.
func (m *Manifest) check() error {
	names := make(map[string]bool, len(m.Operations))
	routes := make(map[string]string)
	for _, op := range m.Operations {
		if names[op.Name] {
			return oerrors.NewValidationError(fmt.Sprintf("operation %q is declared twice", op.Name), m.Source, "name", "")
		}
		names[op.Name] = true

		if op.Route != "" {
			key := op.Verb + " " + op.Route
			if prev, ok := routes[key]; ok {
				return oerrors.NewValidationError(
					fmt.Sprintf("operations %q and %q both answer %s", prev, op.Name, key), m.Source, "route", "")
			}
			routes[key] = op.Name
		}

		steps := make(map[string]bool, len(op.Steps))
		for _, s := range op.Steps {
			if steps[s.Name] {
				return oerrors.NewValidationError(
					fmt.Sprintf("operation %q: step %q is declared twice", op.Name, s.Name), m.Source, "steps", "")
			}
			steps[s.Name] = true
		}
		if !steps[op.Result] {
			return oerrors.NewValidationError(
				fmt.Sprintf("operation %q: result %q is not a step", op.Name, op.Result), m.Source, "result",
				"name one of the operation's steps")
		}
	}
	return nil
}

// Operation returns the named operation.
func (m *Manifest) Operation(name string) (*Operation, bool) {
	for i := range m.Operations {
		if m.Operations[i].Name == name {
			return &m.Operations[i], true
		}
	}
	return nil, false
}

// Names returns the operation names in declaration order.
func (m *Manifest) Names() []string {
	out := make([]string, len(m.Operations))
	for i, op := range m.Operations {
		out[i] = op.Name
	}
	return out
}

// Descriptors converts every operation into a descriptor. Operations share
// the *Request type and are looked up by name.
func (m *Manifest) Descriptors() ([]*core.OperationDescriptor, error) {
	out := make([]*core.OperationDescriptor, 0, len(m.Operations))
	for _, op := range m.Operations {
		d, err := op.Descriptor()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Descriptor converts the operation into a descriptor whose handlers are
// its steps.
func (op Operation) Descriptor() (*core.OperationDescriptor, error) {
	handlers := make([]*core.Frame, 0, len(op.Steps))
	for _, s := range op.Steps {
		f, err := script.Frame(script.Step{
			Name:   s.Name,
			Expr:   s.Expr,
			Uses:   s.Uses,
			Async:  s.Async,
			Always: s.Always,
		})
		if err != nil {
			return nil, fmt.Errorf("operation %q: %w", op.Name, err)
		}
		handlers = append(handlers, f)
	}

	d := &core.OperationDescriptor{
		Name:       op.Name,
		Type:       core.TypeOf[*Request](),
		Route:      op.Route,
		Result:     script.ValueType().Type,
		ResultName: op.Result,
		Handlers:   handlers,
		ByName:     true,
	}
	if op.Verb != "" {
		d.WithVerb(op.Verb, op.Route)
	}
	keys := make([]string, 0, len(op.Labels))
	for k := range op.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		d.WithLabel(k, op.Labels[k])
	}
	return d, nil
}

// NewRequest creates a request for the named operation.
func (m *Manifest) NewRequest(name string, payload map[string]any) (*Request, error) {
	op, ok := m.Operation(name)
	if !ok {
		return nil, oerrors.NewNotFoundError(fmt.Sprintf("operation %q is not declared", name), m.Source,
			"declared operations: "+strings.Join(m.Names(), ", "))
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return &Request{Operation: name, Payload: payload, required: op.Required}, nil
}

// Request is an invocation of a manifest operation.
type Request struct {
	Operation string         `json:"operation"`
	Payload   map[string]any `json:"payload"`

	required []string
}

// OperationName implements core.Named.
func (r *Request) OperationName() string { return r.Operation }

// ScriptInput exposes the payload to script steps.
func (r *Request) ScriptInput() map[string]any { return r.Payload }

// Validate reports the first missing required field.
func (r *Request) Validate() error {
	for _, f := range r.required {
		if v, ok := r.Payload[f]; !ok || v == nil {
			return fmt.Errorf("field %q is required", f)
		}
	}
	return nil
}
