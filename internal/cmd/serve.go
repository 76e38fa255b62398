package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/opmodel/opc/internal/cmdtypes"
	"github.com/opmodel/opc/internal/config"
	"github.com/opmodel/opc/internal/httpbind"
	"github.com/opmodel/opc/internal/middleware"
	"github.com/opmodel/opc/internal/output"
)

type serveOptions struct {
	addr      string
	rateLimit float64
	burst     int
}

// NewServeCmd creates the serve command.
func NewServeCmd(gc *cmdtypes.GlobalConfig) *cobra.Command {
	opts := &serveOptions{}

	c := &cobra.Command{
		Use:   "serve MANIFEST",
		Short: "Serve manifest operations over HTTP",
		Long: `Compile a manifest and bind every operation with a verb and a route.

Request bodies, query parameters and route parameters form the payload.
Metrics are exposed on /metrics and the bound routes on /_operations.

The listen address resolves as --addr > OPC_SERVE_ADDR > serve.addr > :8080.

Examples:
  opc serve ops.cue
  opc serve ops.yaml --addr 127.0.0.1:9000 --rate-limit 50`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if !c.Flags().Changed("addr") {
				opts.addr = ""
			}
			return exitError(c, runServe(c, gc, args[0], opts))
		},
	}
	c.Flags().StringVar(&opts.addr, "addr", config.DefaultAddr, "listen address")
	c.Flags().Float64Var(&opts.rateLimit, "rate-limit", 0, "per-operation requests per second (0 disables)")
	c.Flags().IntVar(&opts.burst, "burst", 1, "rate limiter burst")
	return c
}

func runServe(c *cobra.Command, gc *cmdtypes.GlobalConfig, path string, opts *serveOptions) error {
	cfg := gc.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	addr := opts.addr
	if addr == "" {
		addr = cfg.WithDefaults().Serve.Addr
	}

	ctx, stop := signal.NotifyContext(c.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := startBus(ctx)
	defer bus.Stop()
	metrics := middleware.NewMetrics()

	s, err := loadStack(path, stackOptions{
		Metrics:   metrics,
		Bus:       bus,
		RateLimit: opts.rateLimit,
		Burst:     opts.burst,
	})
	if err != nil {
		return err
	}
	exec, _, err := s.compile(ctx)
	if err != nil {
		return err
	}

	handler, err := httpbind.NewRouter(exec, httpbind.Options{
		Binder:  httpbind.ManifestBinder(s.Manifest),
		Metrics: metrics.Registry,
	})
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	output.Info("serving", "addr", ln.Addr().String(), "operations", len(exec.Operations()))

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	output.Info("shutting down", "timeout", cfg.WithDefaults().Serve.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.WithDefaults().Serve.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
