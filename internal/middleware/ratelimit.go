package middleware

import (
	"context"
	"fmt"
	"strconv"

	"golang.org/x/time/rate"

	"github.com/opmodel/opc/internal/core"
)

// RateLimit throttles each operation with its own token bucket. The wait
// is an asynchronous frame, so a request suspends until a token is
// available or its context ends.
type RateLimit struct {
	limit rate.Limit
	burst int
}

// NewRateLimit creates a builder admitting rps requests per second per
// operation with the given burst.
func NewRateLimit(rps float64, burst int) *RateLimit {
	if burst < 1 {
		burst = 1
	}
	return &RateLimit{limit: rate.Limit(rps), burst: burst}
}

func (r *RateLimit) Name() string { return "ratelimit" }

func (r *RateLimit) Matches(d *core.OperationDescriptor) bool {
	return r.limit > 0 && !disabled(d, r.Name())
}

func (r *RateLimit) Explain(d *core.OperationDescriptor, matched bool) string {
	if matched {
		return fmt.Sprintf("%g req/s, burst %d", float64(r.limit), r.burst)
	}
	if disabled(d, r.Name()) {
		return "disabled by label"
	}
	return "no limit configured"
}

func (r *RateLimit) Config() map[string]string {
	return map[string]string{
		"rps":   strconv.FormatFloat(float64(r.limit), 'g', -1, 64),
		"burst": strconv.Itoa(r.burst),
	}
}

// Build appends the wait frame. The limiter is created once per operation
// and shared by all of its requests.
func (r *RateLimit) Build(mc *core.MethodContext) error {
	limiter := rate.NewLimiter(r.limit, r.burst)
	f, err := core.Func("ratelimit", func(ctx context.Context) error {
		if err := limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("rate limit: %w", err)
		}
		return nil
	}, core.Async(), core.Always(), core.WithDoc(fmt.Sprintf("waits for a token (%g/s, burst %d)", float64(r.limit), r.burst)))
	if err != nil {
		return err
	}
	return mc.Append(f)
}
