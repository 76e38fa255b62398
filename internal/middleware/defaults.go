package middleware

import (
	"github.com/charmbracelet/log"

	"github.com/opmodel/opc/internal/eventbus"
)

// Options configures the built-in builders. Zero values disable the
// builders that need them.
type Options struct {
	// Logger receives request log lines. Nil disables the logging builder.
	Logger *log.Logger

	// RateLimit is the per-operation rate in requests per second. Zero
	// disables rate limiting.
	RateLimit float64
	Burst     int

	// Metrics receives operation metrics. Nil disables the metrics builder.
	Metrics *Metrics

	// Bus receives resource events. Nil disables the events builder.
	Bus *eventbus.Bus
}

// Defaults returns a registry with every built-in builder in application
// order: ratelimit, logging, validation, metrics, events, transaction and
// links.
func Defaults(opts Options) *Registry {
	return NewRegistry().MustRegister(
		NewRateLimit(opts.RateLimit, opts.Burst),
		NewLogging(opts.Logger),
		NewValidation(),
		NewMetricsBuilder(opts.Metrics),
		NewEvents(opts.Bus),
		NewTransaction(),
		NewLinks(),
	)
}
