package middleware

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/opmodel/opc/internal/core"
)

// RequestID identifies one execution of an operation. The logging frame
// provides it to every later frame.
type RequestID string

// Logging wraps each request in start and finish log lines.
type Logging struct {
	logger *log.Logger
}

// NewLogging creates the builder. Request lines go to logger.
func NewLogging(logger *log.Logger) *Logging {
	return &Logging{logger: logger}
}

func (l *Logging) Name() string { return "logging" }

func (l *Logging) Matches(d *core.OperationDescriptor) bool {
	return l.logger != nil && !disabled(d, l.Name())
}

func (l *Logging) Explain(d *core.OperationDescriptor, matched bool) string {
	switch {
	case matched:
		return "all operations"
	case l.logger == nil:
		return "no logger configured"
	default:
		return "disabled by label"
	}
}

func (l *Logging) Build(mc *core.MethodContext) error {
	d := mc.Descriptor()
	logger := l.logger.With("operation", d.Name)

	f := core.NewNested("logging",
		[]core.Variable{mc.Input()},
		[]core.Variable{core.Var[RequestID]("requestId")},
		func(ctx context.Context, args []any, next core.Next) (any, error) {
			id := RequestID(uuid.NewString())
			start := time.Now()
			logger.Debug("request started", "request", id)

			res, err := next(ctx, id)

			elapsed := time.Since(start)
			switch {
			case err == nil:
				logger.Info("request finished", "request", id, "duration", elapsed)
			case ctx.Err() != nil:
				logger.Warn("request cancelled", "request", id, "duration", elapsed, "err", ctx.Err())
			default:
				logger.Error("request failed", "request", id, "duration", elapsed, "err", err)
			}
			return res, err
		})
	f.Doc = []string{"logs start and finish of every request"}
	return mc.Append(f)
}
