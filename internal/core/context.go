package core

import (
	"context"
	"fmt"
	"reflect"
)

// ServiceResolver resolves services by type.
type ServiceResolver interface {
	Resolve(ctx context.Context, t reflect.Type) (any, error)
}

// Container is the runtime service container consumed by compiled methods.
type Container interface {
	ServiceResolver

	// Has reports whether t can be resolved without a producing frame.
	Has(t reflect.Type) bool

	// Types lists every resolvable type in registration order.
	Types() []reflect.Type

	// NewScope returns a resolver for one request. Scoped services are
	// created once per scope.
	NewScope() ServiceResolver
}

// MethodContext is the mutable construction context for one operation's
// method. Middleware builders append frames and request services; the
// pipeline then appends the operation's handlers and compiles the result.
type MethodContext struct {
	descriptor *OperationDescriptor
	frames     []*Frame
	origins    map[*Frame]string
	services   []Variable
	result     *Variable
	current    string
	sealed     bool
}

// NewMethodContext creates a context for the descriptor.
func NewMethodContext(d *OperationDescriptor) *MethodContext {
	return &MethodContext{
		descriptor: d,
		origins:    make(map[*Frame]string),
	}
}

// Descriptor returns the operation being built.
func (c *MethodContext) Descriptor() *OperationDescriptor {
	return c.descriptor
}

// Input returns the Variable holding the operation instance.
func (c *MethodContext) Input() Variable {
	return c.descriptor.Input()
}

// Result returns the Variable the method returns, if any.
func (c *MethodContext) Result() (Variable, bool) {
	if c.result != nil {
		return *c.result, true
	}
	return c.descriptor.ResultVariable()
}

// SetResult replaces the Variable returned by the method.
func (c *MethodContext) SetResult(v Variable) {
	c.result = &v
}

// Append adds frames in order. The batch is all or nothing: if any frame is
// invalid or already present, none are added. Appending after the context
// is sealed is an error: compilation has already consumed it.
func (c *MethodContext) Append(frames ...*Frame) error {
	if c.sealed {
		return fmt.Errorf("operation %q: method context already compiled", c.descriptor.Name)
	}
	seen := make(map[*Frame]bool, len(frames))
	for _, f := range frames {
		if err := f.Validate(); err != nil {
			return err
		}
		if _, dup := c.origins[f]; dup || seen[f] {
			return fmt.Errorf("operation %q: frame %q appended twice", c.descriptor.Name, f.Name)
		}
		seen[f] = true
	}
	for _, f := range frames {
		c.frames = append(c.frames, f)
		c.origins[f] = c.current
	}
	return nil
}

// RequestService declares a container-sourced input and returns the
// Variable frames should consume.
func (c *MethodContext) RequestService(t reflect.Type) Variable {
	v := Variable{Type: t}
	for _, s := range c.services {
		if s.Type == t {
			return s
		}
	}
	c.services = append(c.services, v)
	return v
}

// Frames returns the appended frames in order.
func (c *MethodContext) Frames() []*Frame {
	return c.frames
}

// Services returns the requested container types in request order.
func (c *MethodContext) Services() []Variable {
	return c.services
}

// Origin returns the builder that appended f, or "" for operation handlers.
func (c *MethodContext) Origin(f *Frame) string {
	return c.origins[f]
}

// Enter attributes subsequently appended frames to the named builder.
func (c *MethodContext) Enter(builder string) {
	c.current = builder
}

// Seal appends the operation's handlers and freezes the context.
func (c *MethodContext) Seal() ([]*Frame, error) {
	if c.sealed {
		return nil, fmt.Errorf("operation %q: method context already compiled", c.descriptor.Name)
	}
	c.current = ""
	if err := c.Append(c.descriptor.Handlers...); err != nil {
		return nil, err
	}
	c.sealed = true
	return c.frames, nil
}
