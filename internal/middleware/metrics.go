package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/opmodel/opc/internal/core"
)

// Outcome label values.
const (
	outcomeOK        = "ok"
	outcomeError     = "error"
	outcomeCancelled = "cancelled"
)

// Metrics holds the operation collectors. They live on a private registry
// so several pipelines can coexist in one process.
type Metrics struct {
	Registry *prometheus.Registry

	duration *prometheus.HistogramVec
	total    *prometheus.CounterVec
	inflight *prometheus.GaugeVec
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "opc_operation_duration_seconds",
			Help:    "Duration of compiled operation executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "outcome"}),
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "opc_operations_total",
			Help: "Executions of compiled operations.",
		}, []string{"operation", "outcome"}),
		inflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "opc_operations_inflight",
			Help: "Operations currently executing.",
		}, []string{"operation"}),
	}
	m.Registry.MustRegister(m.duration, m.total, m.inflight)
	return m
}

// Observe records one finished execution.
func (m *Metrics) Observe(operation string, elapsed time.Duration, err error) {
	outcome := outcomeOK
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome = outcomeCancelled
	case err != nil:
		outcome = outcomeError
	}
	m.duration.WithLabelValues(operation, outcome).Observe(elapsed.Seconds())
	m.total.WithLabelValues(operation, outcome).Inc()
}

// MetricsBuilder wraps every operation with duration and outcome metrics.
type MetricsBuilder struct {
	metrics *Metrics
}

func NewMetricsBuilder(m *Metrics) *MetricsBuilder {
	return &MetricsBuilder{metrics: m}
}

func (b *MetricsBuilder) Name() string { return "metrics" }

func (b *MetricsBuilder) Matches(d *core.OperationDescriptor) bool {
	return b.metrics != nil && !disabled(d, b.Name())
}

func (b *MetricsBuilder) Build(mc *core.MethodContext) error {
	name := mc.Descriptor().Name
	m := b.metrics
	inflight := m.inflight.WithLabelValues(name)

	f := core.NewNested("metrics", nil, nil,
		func(ctx context.Context, _ []any, next core.Next) (any, error) {
			inflight.Inc()
			defer inflight.Dec()
			start := time.Now()
			res, err := next(ctx)
			m.Observe(name, time.Since(start), err)
			return res, err
		})
	return mc.Append(f)
}
