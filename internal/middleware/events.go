package middleware

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opmodel/opc/internal/core"
	"github.com/opmodel/opc/internal/eventbus"
)

// LabelResource overrides the resource name used in event types.
const LabelResource = "resource"

var eventSuffix = map[string]string{
	"POST":   "created",
	"PUT":    "updated",
	"PATCH":  "updated",
	"DELETE": "deleted",
}

// Events publishes a resource event after every successful state-changing
// operation that returns a result. It must be registered ahead of
// Transaction so the event follows the commit.
type Events struct {
	bus *eventbus.Bus
}

func NewEvents(bus *eventbus.Bus) *Events {
	return &Events{bus: bus}
}

func (e *Events) Name() string { return "events" }

func (e *Events) Matches(d *core.OperationDescriptor) bool {
	if e.bus == nil || d.Result == nil || disabled(d, e.Name()) {
		return false
	}
	_, ok := eventSuffix[d.Verb]
	return ok && resourceName(d) != ""
}

func (e *Events) Explain(d *core.OperationDescriptor, matched bool) string {
	switch {
	case matched:
		return "publishes " + EventType(d)
	case d.Result == nil:
		return "operation has no result"
	case eventSuffix[d.Verb] == "":
		return "verb does not change state"
	default:
		return "no resource name"
	}
}

// EventType returns the event type published for d, such as
// "orders.created".
func EventType(d *core.OperationDescriptor) string {
	return resourceName(d) + "." + eventSuffix[d.Verb]
}

func resourceName(d *core.OperationDescriptor) string {
	if r := d.Labels[LabelResource]; r != "" {
		return r
	}
	for _, seg := range strings.Split(d.Route, "/") {
		if seg != "" && !strings.HasPrefix(seg, "{") {
			return seg
		}
	}
	return ""
}

func (e *Events) Build(mc *core.MethodContext) error {
	if _, ok := mc.Result(); !ok {
		return errors.New("events: operation has no result")
	}
	d := mc.Descriptor()
	typ := EventType(d)
	bus := e.bus

	// Wrapping the remainder means the event only leaves once every inner
	// frame, a transaction commit included, has succeeded.
	f := core.NewNested("publish", nil, nil,
		func(ctx context.Context, _ []any, next core.Next) (any, error) {
			res, err := next(ctx)
			if err != nil {
				return nil, err
			}
			resource := res
			if env, ok := res.(*Envelope); ok {
				resource = env.Data
			}
			err = bus.Publish(ctx, eventbus.Event{
				ID:         uuid.New(),
				Type:       typ,
				Operation:  d.Name,
				Verb:       d.Verb,
				Route:      d.Route,
				Resource:   resource,
				OccurredAt: time.Now().UTC(),
			})
			// A dropped event never fails the request.
			if err != nil && !errors.Is(err, eventbus.ErrBufferFull) && !errors.Is(err, eventbus.ErrStopped) {
				return nil, err
			}
			return res, nil
		})
	f.Doc = []string{"publishes " + typ + " after the remainder succeeds"}
	return mc.Append(f)
}
