// Package middleware holds the middleware builder registry and the built-in
// builders. A builder inspects an operation descriptor and, when it
// matches, appends frames to the method under construction.
package middleware

import (
	"fmt"

	"github.com/opmodel/opc/internal/build"
	"github.com/opmodel/opc/internal/core"
	"github.com/opmodel/opc/internal/output"
)

// Builder contributes frames to matching operations.
type Builder interface {
	// Name identifies the builder in plans and errors. Names are unique
	// within a registry.
	Name() string

	// Matches reports whether the builder applies to the operation.
	Matches(d *core.OperationDescriptor) bool

	// Build appends frames to the method context.
	Build(mc *core.MethodContext) error
}

// Explainer is implemented by builders that can say why they matched or
// not. The reason is shown by `opc plan`.
type Explainer interface {
	Explain(d *core.OperationDescriptor, matched bool) string
}

// Configurable is implemented by builders whose settings change the
// generated code. The settings are part of the artifact cache key.
type Configurable interface {
	Config() map[string]string
}

// MatchDetail records one builder decision for one operation.
type MatchDetail struct {
	Builder string
	Matched bool
	Reason  string
}

// Registry is an ordered set of builders.
type Registry struct {
	builders []Builder
	names    map[string]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]bool)}
}

// Register appends a builder. Registration order is application order.
func (r *Registry) Register(b Builder) error {
	if b == nil {
		return fmt.Errorf("registering nil middleware builder")
	}
	if b.Name() == "" {
		return fmt.Errorf("middleware builder has no name")
	}
	if r.names[b.Name()] {
		return fmt.Errorf("middleware builder %q already registered", b.Name())
	}
	r.names[b.Name()] = true
	r.builders = append(r.builders, b)
	return nil
}

// MustRegister registers builders and panics on error.
func (r *Registry) MustRegister(builders ...Builder) *Registry {
	for _, b := range builders {
		if err := r.Register(b); err != nil {
			panic(err)
		}
	}
	return r
}

// Builders returns the builders in registration order.
func (r *Registry) Builders() []Builder {
	return r.builders
}

// Configs returns the cache-key view of the registry.
func (r *Registry) Configs() []build.BuilderConfig {
	out := make([]build.BuilderConfig, len(r.builders))
	for i, b := range r.builders {
		out[i] = build.BuilderConfig{Name: b.Name()}
		if c, ok := b.(Configurable); ok {
			out[i].Config = c.Config()
		}
	}
	return out
}

// ApplyAll runs every matching builder against mc in registration order
// and reports each decision. Frames appended by a builder are attributed
// to it.
func (r *Registry) ApplyAll(d *core.OperationDescriptor, mc *core.MethodContext) ([]MatchDetail, error) {
	details := make([]MatchDetail, 0, len(r.builders))
	for _, b := range r.builders {
		matched := b.Matches(d)
		detail := MatchDetail{Builder: b.Name(), Matched: matched}
		if e, ok := b.(Explainer); ok {
			detail.Reason = e.Explain(d, matched)
		}
		details = append(details, detail)
		if !matched {
			continue
		}

		mc.Enter(b.Name())
		if err := b.Build(mc); err != nil {
			return details, fmt.Errorf("middleware %q: operation %q: %w", b.Name(), d.Name, err)
		}
		output.Debug("middleware applied", "builder", b.Name(), "operation", d.Name)
	}
	mc.Enter("")
	return details, nil
}

// funcBuilder adapts functions to Builder.
type funcBuilder struct {
	name    string
	matches func(d *core.OperationDescriptor) bool
	build   func(mc *core.MethodContext) error
}

// New adapts a predicate and a build function to Builder. A nil predicate
// matches every operation.
func New(name string, matches func(d *core.OperationDescriptor) bool, build func(mc *core.MethodContext) error) Builder {
	return &funcBuilder{name: name, matches: matches, build: build}
}

func (f *funcBuilder) Name() string { return f.name }

func (f *funcBuilder) Matches(d *core.OperationDescriptor) bool {
	return f.matches == nil || f.matches(d)
}

func (f *funcBuilder) Build(mc *core.MethodContext) error {
	return f.build(mc)
}

// disabled reports whether the operation opted out of a builder with the
// label "<builder>: off".
func disabled(d *core.OperationDescriptor, builder string) bool {
	return d.Labels[builder] == "off"
}
