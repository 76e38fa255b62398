package cmd

import (
	"context"
	"path/filepath"

	"github.com/opmodel/opc/internal/cmdtypes"
	"github.com/opmodel/opc/internal/config"
	"github.com/opmodel/opc/internal/eventbus"
	"github.com/opmodel/opc/internal/executor"
	"github.com/opmodel/opc/internal/manifest"
	"github.com/opmodel/opc/internal/middleware"
	"github.com/opmodel/opc/internal/output"
	"github.com/opmodel/opc/internal/pipeline"
)

// stackOptions selects the optional parts of the middleware stack.
type stackOptions struct {
	EmitDir   string
	Metrics   *middleware.Metrics
	Bus       *eventbus.Bus
	RateLimit float64
	Burst     int
}

// stack is a loaded manifest with its build context.
type stack struct {
	Manifest *manifest.Manifest
	Build    *pipeline.BuildContext
}

// loadStack loads the manifest and registers its operations with a build
// context carrying the default builders.
func loadStack(path string, opts stackOptions) (*stack, error) {
	m, err := manifest.Load(path)
	if err != nil {
		return nil, err
	}
	descriptors, err := m.Descriptors()
	if err != nil {
		return nil, err
	}

	registry := middleware.Defaults(middleware.Options{
		Logger:    output.Logger(),
		RateLimit: opts.RateLimit,
		Burst:     opts.Burst,
		Metrics:   opts.Metrics,
		Bus:       opts.Bus,
	})
	bc := pipeline.NewBuildContext(pipeline.Options{
		Registry: registry,
		EmitDir:  opts.EmitDir,
	})
	if err := bc.Register(descriptors...); err != nil {
		return nil, err
	}
	return &stack{Manifest: m, Build: bc}, nil
}

// compile builds the stack into a fresh executor.
func (s *stack) compile(ctx context.Context) (*executor.Executor, *pipeline.Report, error) {
	exec := executor.New()
	report, err := s.Build.Compile(ctx, exec)
	return exec, report, err
}

// emitDir resolves where generated units go: flag, then build.emit, then
// <cacheDir>/units.
func emitDir(gc *cmdtypes.GlobalConfig, flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if gc.Config != nil && gc.Config.Build.Emit != "" {
		return config.ExpandPath(gc.Config.Build.Emit)
	}
	cacheDir := config.DefaultCacheDir
	if gc.Config != nil && gc.Config.CacheDir != "" {
		cacheDir = gc.Config.CacheDir
	}
	dir, err := config.ExpandPath(cacheDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "units"), nil
}

// startBus starts an event bus logging every event.
func startBus(ctx context.Context) *eventbus.Bus {
	bus := eventbus.New(64)
	bus.Subscribe("log", eventbus.NewLogConsumer(output.Logger()))
	bus.Start(ctx)
	return bus
}
