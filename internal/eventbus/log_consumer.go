package eventbus

import (
	"context"

	"github.com/charmbracelet/log"
)

// LogConsumer logs every event.
type LogConsumer struct {
	logger *log.Logger
}

func NewLogConsumer(logger *log.Logger) *LogConsumer {
	return &LogConsumer{logger: logger}
}

func (c *LogConsumer) HandleEvent(_ context.Context, evt Event) error {
	c.logger.Info("event", "type", evt.Type, "operation", evt.Operation, "id", evt.ID.String()[:8])
	return nil
}
