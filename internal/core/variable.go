// Package core defines the pipeline model: variables, frames, operation
// descriptors and the method-construction context that middleware builders
// mutate before compilation.
package core

import (
	"fmt"
	"reflect"
)

// Variable is a typed, named value flowing through a generated method.
//
// A Variable has at most one creator. Variables created by the method itself
// (the operation argument) or drawn from the service container have a nil
// Creator.
type Variable struct {
	// Type is the Go type of the value.
	Type reflect.Type

	// Name distinguishes Variables of the same type. Empty on a request
	// means "any name".
	Name string

	// Creator is the Frame that produces the value.
	Creator *Frame
}

// Var returns an unowned Variable of type T.
func Var[T any](name string) Variable {
	return Variable{Type: TypeOf[T](), Name: name}
}

// TypeOf returns the reflect.Type of T, including interface types.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// String returns "name:type" or just the type when unnamed.
func (v Variable) String() string {
	typ := "<nil>"
	if v.Type != nil {
		typ = v.Type.String()
	}
	if v.Name == "" {
		return typ
	}
	return fmt.Sprintf("%s:%s", v.Name, typ)
}

// Key returns a stable identity used for digests and maps.
func (v Variable) Key() string {
	if v.Type == nil {
		return "#" + v.Name
	}
	return v.Type.PkgPath() + "." + v.Type.String() + "#" + v.Name
}

// Match describes how well a produced Variable satisfies a request.
type Match int

const (
	// NoMatch means the Variable cannot satisfy the request.
	NoMatch Match = iota

	// InterfaceMatch means the requested type is an interface the produced
	// type implements.
	InterfaceMatch

	// ExactMatch means the types are identical.
	ExactMatch
)

// Satisfies reports how v satisfies the requested Variable.
func (v Variable) Satisfies(req Variable) Match {
	if v.Type == nil || req.Type == nil {
		return NoMatch
	}
	if req.Name != "" && req.Name != v.Name {
		return NoMatch
	}
	if v.Type == req.Type {
		return ExactMatch
	}
	if req.Type.Kind() == reflect.Interface && v.Type.Implements(req.Type) {
		return InterfaceMatch
	}
	return NoMatch
}

// TypeSet is a set of types the service container can resolve.
type TypeSet map[reflect.Type]struct{}

// NewTypeSet builds a TypeSet from the given types.
func NewTypeSet(types ...reflect.Type) TypeSet {
	s := make(TypeSet, len(types))
	for _, t := range types {
		s[t] = struct{}{}
	}
	return s
}

// Has reports whether t is in the set.
func (s TypeSet) Has(t reflect.Type) bool {
	_, ok := s[t]
	return ok
}
