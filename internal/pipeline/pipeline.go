// Package pipeline orchestrates the build: registered operation
// descriptors go through the middleware registry, the dependency resolver
// and the method builder, are assembled into one unit, compiled through the
// artifact cache and finally installed into an executor.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/opmodel/opc/internal/build"
	"github.com/opmodel/opc/internal/container"
	"github.com/opmodel/opc/internal/core"
	"github.com/opmodel/opc/internal/executor"
	"github.com/opmodel/opc/internal/middleware"
	"github.com/opmodel/opc/internal/output"
)

// Options configures a BuildContext. Zero values get defaults.
type Options struct {
	// Registry holds the middleware builders. Defaults to an empty registry.
	Registry *middleware.Registry

	// Container resolves services. Defaults to an empty container.
	Container *container.Container

	// Cache holds compiled artifacts. Defaults to a cache over the link
	// backend.
	Cache *build.Cache

	// EmitDir, when set, receives the generated unit after compilation.
	EmitDir string
}

// BuildContext collects the operations of one process and compiles them
// once. It is consumed by Compile.
type BuildContext struct {
	registry  *middleware.Registry
	container *container.Container
	cache     *build.Cache
	emitDir   string
	methods   *build.MethodBuilder

	mu          sync.Mutex
	descriptors []*core.OperationDescriptor
	registered  bool
	consumed    bool
}

// NewBuildContext creates a build context.
func NewBuildContext(opts Options) *BuildContext {
	if opts.Registry == nil {
		opts.Registry = middleware.NewRegistry()
	}
	if opts.Container == nil {
		opts.Container = container.New()
	}
	if opts.Cache == nil {
		opts.Cache = build.NewCache(build.NewLinkBackend())
	}
	return &BuildContext{
		registry:  opts.Registry,
		container: opts.Container,
		cache:     opts.Cache,
		emitDir:   opts.EmitDir,
		methods:   build.NewMethodBuilder(),
	}
}

// Register supplies the operation descriptors of the build. It is the
// single registration point and succeeds at most once: a second call fails
// with DuplicateConfigurationError. Names must be unique, and so must the
// types of operations not looked up by name. A rejected batch registers
// nothing.
func (b *BuildContext) Register(descriptors ...*core.OperationDescriptor) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.consumed {
		return &DuplicateConfigurationError{State: executor.StateCompiling}
	}
	if b.registered {
		return &DuplicateConfigurationError{State: executor.StateUncompiled}
	}
	names := make(map[string]bool, len(descriptors))
	types := make(map[reflect.Type]string, len(descriptors))
	for _, d := range descriptors {
		if d == nil {
			return fmt.Errorf("registering nil operation descriptor")
		}
		if err := d.Validate(); err != nil {
			return err
		}
		if names[d.Name] {
			return &DuplicateConfigurationError{Operation: d.Name}
		}
		if !d.ByName {
			if prev, ok := types[d.Type]; ok {
				return fmt.Errorf("operations %q and %q share type %s: %w",
					prev, d.Name, d.Type, &DuplicateConfigurationError{Operation: d.Name})
			}
			types[d.Type] = d.Name
		}
		names[d.Name] = true
	}
	b.descriptors = append([]*core.OperationDescriptor(nil), descriptors...)
	b.registered = true
	return nil
}

// Descriptors returns the registered descriptors in registration order.
func (b *BuildContext) Descriptors() []*core.OperationDescriptor {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*core.OperationDescriptor(nil), b.descriptors...)
}

// Plan runs the front end (middleware, resolution and method building)
// without compiling. It does not consume the context. Failures of all
// operations are joined.
func (b *BuildContext) Plan() (*Report, error) {
	report, _, err := b.lower()
	return report, err
}

// Compile builds every registered operation and installs the executors
// into exec. It may be called once; exec must be uncompiled. Any build
// failure faults exec.
func (b *BuildContext) Compile(ctx context.Context, exec *executor.Executor) (*Report, error) {
	b.mu.Lock()
	if b.consumed {
		b.mu.Unlock()
		return nil, &DuplicateConfigurationError{State: exec.State()}
	}
	b.consumed = true
	b.mu.Unlock()

	var report *Report
	err := exec.Compile(ctx, func(ctx context.Context) ([]executor.Entry, error) {
		var entries []executor.Entry
		var err error
		report, entries, err = b.compile(ctx)
		return entries, err
	})
	return report, err
}

func (b *BuildContext) lower() (*Report, []*build.Method, error) {
	descriptors := b.Descriptors()
	available := core.NewTypeSet(b.container.Types()...)

	report := &Report{}
	methods := make([]*build.Method, 0, len(descriptors))
	var errs []error
	for _, d := range descriptors {
		op, err := b.lowerOne(d, available)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		report.Operations = append(report.Operations, op)
		methods = append(methods, op.Method)
	}
	if len(errs) > 0 {
		return report, nil, errors.Join(errs...)
	}
	return report, methods, nil
}

func (b *BuildContext) lowerOne(d *core.OperationDescriptor, available core.TypeSet) (*OperationReport, error) {
	mc := core.NewMethodContext(d)
	details, err := b.registry.ApplyAll(d, mc)
	if err != nil {
		return nil, err
	}
	if _, err := mc.Seal(); err != nil {
		return nil, err
	}

	res, err := build.Order(build.RequestFor(mc, available))
	if err != nil {
		return nil, err
	}
	m, err := b.methods.Build(d, res)
	if err != nil {
		return nil, err
	}
	output.Debug("method built", "operation", d.Name, "frames", len(m.Frames), "async", m.Async)

	origins := make(map[*core.Frame]string, len(m.Frames))
	for _, f := range mc.Frames() {
		origins[f] = mc.Origin(f)
	}
	return &OperationReport{
		Descriptor: d,
		Builders:   details,
		Method:     m,
		Origins:    origins,
	}, nil
}

func (b *BuildContext) compile(ctx context.Context) (*Report, []executor.Entry, error) {
	report, methods, err := b.lower()
	if err != nil {
		return report, nil, err
	}

	key := build.CacheKey{
		Operations: b.Descriptors(),
		Middleware: b.registry.Configs(),
		Container:  b.container.Types(),
	}
	digest, err := key.Digest()
	if err != nil {
		return report, nil, err
	}
	a, err := build.NewAssembly(digest, methods)
	if err != nil {
		return report, nil, err
	}
	report.Digest = digest
	report.Assembly = a

	art, hit, err := b.cache.Compile(ctx, a)
	if err != nil {
		return report, nil, err
	}
	report.CacheHit = hit
	report.Backend = art.Backend

	if b.emitDir != "" {
		path, err := a.Emit(b.emitDir)
		if err != nil {
			return report, nil, err
		}
		report.Emitted = path
		output.Debug("unit emitted", "path", path)
	}

	execs, err := build.Link(a, b.container)
	if err != nil {
		return report, nil, err
	}

	entries := make([]executor.Entry, 0, len(report.Operations))
	for _, op := range report.Operations {
		entries = append(entries, executor.Entry{Descriptor: op.Descriptor, Exec: execs[op.Descriptor.Name]})
	}
	return report, entries, nil
}
