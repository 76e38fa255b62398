// Package container provides the service container compiled methods draw
// their container-sourced inputs from.
package container

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/opmodel/opc/internal/core"
)

// Lifetime controls how often a service factory runs.
type Lifetime int

const (
	// Singleton services are created once per container.
	Singleton Lifetime = iota

	// Transient services are created on every resolution.
	Transient

	// Scoped services are created once per request scope.
	Scoped
)

// String returns the lifetime name.
func (l Lifetime) String() string {
	switch l {
	case Singleton:
		return "singleton"
	case Transient:
		return "transient"
	case Scoped:
		return "scoped"
	default:
		return fmt.Sprintf("Lifetime(%d)", int(l))
	}
}

// Factory creates a service. It may resolve other services through r.
type Factory func(ctx context.Context, r core.ServiceResolver) (any, error)

type registration struct {
	typ      reflect.Type
	lifetime Lifetime
	factory  Factory

	mu       sync.Mutex
	instance any
	built    bool
}

// Container is a type-keyed service registry. Registration happens during
// startup; resolution is safe for concurrent use.
type Container struct {
	mu    sync.RWMutex
	regs  map[reflect.Type]*registration
	order []reflect.Type
}

var _ core.Container = (*Container)(nil)

// New creates an empty container.
func New() *Container {
	return &Container{regs: make(map[reflect.Type]*registration)}
}

// Register adds a factory for t. Registering a type twice is an error.
func (c *Container) Register(t reflect.Type, lifetime Lifetime, factory Factory) error {
	if t == nil {
		return fmt.Errorf("container: nil service type")
	}
	if factory == nil {
		return fmt.Errorf("container: nil factory for %s", t)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.regs[t]; exists {
		return fmt.Errorf("container: %s already registered", t)
	}
	c.regs[t] = &registration{typ: t, lifetime: lifetime, factory: factory}
	c.order = append(c.order, t)
	return nil
}

// Instance registers an existing value as a singleton of type t.
func (c *Container) Instance(t reflect.Type, v any) error {
	if v != nil && !reflect.TypeOf(v).AssignableTo(t) {
		return fmt.Errorf("container: %T is not assignable to %s", v, t)
	}
	if err := c.Register(t, Singleton, func(context.Context, core.ServiceResolver) (any, error) {
		return v, nil
	}); err != nil {
		return err
	}
	return nil
}

// Provide registers a typed factory.
func Provide[T any](c *Container, lifetime Lifetime, factory func(ctx context.Context, r core.ServiceResolver) (T, error)) error {
	return c.Register(core.TypeOf[T](), lifetime, func(ctx context.Context, r core.ServiceResolver) (any, error) {
		return factory(ctx, r)
	})
}

// Value registers v as the singleton for T.
func Value[T any](c *Container, v T) error {
	return c.Instance(core.TypeOf[T](), v)
}

// Has reports whether t is registered.
func (c *Container) Has(t reflect.Type) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.regs[t]
	return ok
}

// Types returns registered types in registration order.
func (c *Container) Types() []reflect.Type {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]reflect.Type, len(c.order))
	copy(out, c.order)
	return out
}

// Resolve returns a singleton or transient service. Scoped services need a
// scope from NewScope.
func (c *Container) Resolve(ctx context.Context, t reflect.Type) (any, error) {
	reg, err := c.lookup(t)
	if err != nil {
		return nil, err
	}
	if reg.lifetime == Scoped {
		return nil, fmt.Errorf("container: scoped service %s resolved outside a scope", t)
	}
	return c.build(ctx, reg, c)
}

// NewScope opens a request scope.
func (c *Container) NewScope() core.ServiceResolver {
	return &Scope{root: c, instances: make(map[reflect.Type]any)}
}

func (c *Container) lookup(t reflect.Type) (*registration, error) {
	c.mu.RLock()
	reg, ok := c.regs[t]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("container: no service registered for %s", t)
	}
	return reg, nil
}

func (c *Container) build(ctx context.Context, reg *registration, r core.ServiceResolver) (any, error) {
	switch reg.lifetime {
	case Transient:
		return reg.factory(ctx, r)
	case Singleton:
		reg.mu.Lock()
		defer reg.mu.Unlock()
		if reg.built {
			return reg.instance, nil
		}
		v, err := reg.factory(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("container: building %s: %w", reg.typ, err)
		}
		reg.instance, reg.built = v, true
		return v, nil
	default:
		return nil, fmt.Errorf("container: unsupported lifetime %s for %s", reg.lifetime, reg.typ)
	}
}

// Scope resolves services for one request. Scoped instances live as long as
// the scope; singletons come from the root container.
type Scope struct {
	root *Container

	mu        sync.Mutex
	instances map[reflect.Type]any
}

// Resolve returns the service for t within the scope.
func (s *Scope) Resolve(ctx context.Context, t reflect.Type) (any, error) {
	reg, err := s.root.lookup(t)
	if err != nil {
		return nil, err
	}
	if reg.lifetime != Scoped {
		return s.root.build(ctx, reg, s)
	}

	s.mu.Lock()
	if v, ok := s.instances[t]; ok {
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	v, err := reg.factory(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("container: building %s: %w", t, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.instances[t]; ok {
		return existing, nil
	}
	s.instances[t] = v
	return v, nil
}
