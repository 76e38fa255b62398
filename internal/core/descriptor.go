package core

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// InputName is the name of the Variable holding the operation instance.
const InputName = "op"

// Named is implemented by operation instances that share a Go type but stand
// for different operations (manifest requests). The executor looks them up
// by name instead of by type.
type Named interface {
	OperationName() string
}

// OperationDescriptor describes one registered operation type.
type OperationDescriptor struct {
	// Name is the unique logical operation name.
	Name string

	// Type is the runtime type of operation instances.
	Type reflect.Type

	// Verb is the HTTP or command verb the operation answers to, if any.
	Verb string

	// Route is the HTTP route template, if any (e.g. "/orders/{id}").
	Route string

	// Labels is free-form metadata inspected by middleware builders.
	Labels map[string]string

	// Result is the type of the value returned by the executor. Nil for
	// operations without a result.
	Result reflect.Type

	// ResultName optionally narrows which Variable of type Result is
	// returned.
	ResultName string

	// Handlers are the frames contributed by the operation itself. They are
	// appended after every middleware builder has run.
	Handlers []*Frame

	// ByName marks operations resolved through Named rather than by type.
	ByName bool
}

// Describe builds a descriptor for operations of type Op with the given
// handler frames. The name defaults to the type name.
func Describe[Op any](handlers ...*Frame) *OperationDescriptor {
	t := TypeOf[Op]()
	return &OperationDescriptor{
		Name:     typeName(t),
		Type:     t,
		Handlers: handlers,
	}
}

// Returning sets the result type from R.
func Returning[R any](d *OperationDescriptor) *OperationDescriptor {
	d.Result = TypeOf[R]()
	return d
}

// WithVerb sets verb and route.
func (d *OperationDescriptor) WithVerb(verb, route string) *OperationDescriptor {
	d.Verb = strings.ToUpper(verb)
	d.Route = route
	return d
}

// WithLabel sets one label.
func (d *OperationDescriptor) WithLabel(key, value string) *OperationDescriptor {
	if d.Labels == nil {
		d.Labels = make(map[string]string)
	}
	d.Labels[key] = value
	return d
}

// Input returns the Variable holding the operation instance.
func (d *OperationDescriptor) Input() Variable {
	return Variable{Type: d.Type, Name: InputName}
}

// ResultVariable returns the requested result Variable, or false when the
// operation returns nothing.
func (d *OperationDescriptor) ResultVariable() (Variable, bool) {
	if d.Result == nil {
		return Variable{}, false
	}
	return Variable{Type: d.Result, Name: d.ResultName}, true
}

// Validate checks the descriptor before it is registered.
func (d *OperationDescriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("operation descriptor has no name")
	}
	if d.Type == nil {
		return fmt.Errorf("operation %q: no operation type", d.Name)
	}
	for _, f := range d.Handlers {
		if f == nil {
			return fmt.Errorf("operation %q: nil handler frame", d.Name)
		}
		if err := f.Validate(); err != nil {
			return fmt.Errorf("operation %q: %w", d.Name, err)
		}
	}
	return nil
}

// SortedLabels returns "k=v" pairs in key order.
func (d *OperationDescriptor) SortedLabels() []string {
	keys := make([]string, 0, len(d.Labels))
	for k := range d.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k + "=" + d.Labels[k]
	}
	return out
}

func typeName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}
