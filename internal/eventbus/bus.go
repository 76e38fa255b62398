// Package eventbus provides an in-process pub/sub bus for resource events
// published by compiled operations. Publishers never block on subscribers:
// events are buffered and dispatched by a single consumer goroutine.
package eventbus

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opmodel/opc/internal/output"
)

// ErrBufferFull is returned by Publish when the event was dropped.
var ErrBufferFull = errors.New("event buffer full")

// ErrStopped is returned by Publish after Stop.
var ErrStopped = errors.New("event bus stopped")

// Event describes a change made by a state-changing operation.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Type       string    `json:"type"`
	Operation  string    `json:"operation"`
	Verb       string    `json:"verb"`
	Route      string    `json:"route,omitempty"`
	Resource   any       `json:"resource,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Handler processes an event. Implementations must be safe for concurrent
// use.
type Handler interface {
	HandleEvent(ctx context.Context, evt Event) error
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, evt Event) error

func (f HandlerFunc) HandleEvent(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

// Bus is an in-process event bus.
type Bus struct {
	mu          sync.RWMutex
	subscribers []namedHandler
	events      chan Event
	done        chan struct{}
	started     bool
	stopped     bool
}

type namedHandler struct {
	name    string
	handler Handler
}

// New creates a bus with the given buffer size.
func New(bufSize int) *Bus {
	if bufSize < 1 {
		bufSize = 256
	}
	return &Bus{
		events: make(chan Event, bufSize),
		done:   make(chan struct{}),
	}
}

// Subscribe registers a named handler.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, namedHandler{name: name, handler: h})
}

// Publish enqueues evt without blocking. A full buffer drops the event.
func (b *Bus) Publish(ctx context.Context, evt Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		return ErrStopped
	}
	select {
	case b.events <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		output.Warn("eventbus: buffer full, dropping event", "type", evt.Type, "id", evt.ID)
		return ErrBufferFull
	}
}

// Start begins dispatching. Events still buffered when ctx is done are
// drained before the consumer exits.
func (b *Bus) Start(ctx context.Context) {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.mu.Unlock()

	go func() {
		defer close(b.done)
		for {
			select {
			case evt, ok := <-b.events:
				if !ok {
					return
				}
				b.dispatch(ctx, evt)
			case <-ctx.Done():
				for {
					select {
					case evt, ok := <-b.events:
						if !ok {
							return
						}
						b.dispatch(context.WithoutCancel(ctx), evt)
					default:
						return
					}
				}
			}
		}
	}()
}

// Stop closes the bus and waits for buffered events to be dispatched.
func (b *Bus) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	close(b.events)
	started := b.started
	b.mu.Unlock()

	if started {
		<-b.done
	}
}

func (b *Bus) dispatch(ctx context.Context, evt Event) {
	b.mu.RLock()
	subs := b.subscribers
	b.mu.RUnlock()

	for _, s := range subs {
		if err := s.handler.HandleEvent(ctx, evt); err != nil {
			output.Warn("eventbus: handler failed", "handler", s.name, "type", evt.Type, "err", err)
		}
	}
}
