package engine

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/randalmurphal/eventq/pkg/eventq"
	"github.com/randalmurphal/eventq/pkg/eventq/event"
)

// Hook runs around a middleware chain. An error fails the dispatch like a
// middleware error would.
type Hook func(ctx context.Context, evt *event.Event) error

// Engine moves events through an incoming and an outgoing queue, running
// the registered middleware chain for each event. Events of one
// conversation (see event.Key) are processed one at a time and in order.
type Engine struct {
	logger         *slog.Logger
	validateEvents bool

	incoming *eventq.Queue[*event.Event]
	outgoing *eventq.Queue[*event.Event]

	mu             sync.RWMutex
	incomingChain  []Middleware
	outgoingChain  []Middleware
	beforeIncoming Hook
	afterIncoming  Hook
	beforeOutgoing Hook
}

// New creates an engine and its two queues. Call Close when done.
func New(opts ...Option) *Engine {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{
		logger:         o.logger.With(slog.String("component", "engine")),
		validateEvents: o.validateEvents,
	}

	// Engine logger first so explicit queue options win.
	e.incoming = eventq.New("incoming", event.Key,
		append([]eventq.Option{eventq.WithLogger(o.logger)}, o.incoming...)...)
	e.outgoing = eventq.New("outgoing", event.Key,
		append([]eventq.Option{eventq.WithLogger(o.logger)}, o.outgoing...)...)

	e.incoming.Subscribe(e.processIncoming)
	e.outgoing.Subscribe(e.processOutgoing)

	return e
}

func (e *Engine) processIncoming(ctx context.Context, evt *event.Event) error {
	e.mu.RLock()
	before, after := e.beforeIncoming, e.afterIncoming
	chain := e.incomingChain
	e.mu.RUnlock()

	if before != nil {
		if err := before(ctx, evt); err != nil {
			return fmt.Errorf("before incoming hook: %w", err)
		}
	}
	if err := runChain(ctx, e.logger, chain, evt); err != nil {
		return err
	}
	if after != nil {
		if err := after(ctx, evt); err != nil {
			return fmt.Errorf("after incoming hook: %w", err)
		}
	}
	return nil
}

func (e *Engine) processOutgoing(ctx context.Context, evt *event.Event) error {
	e.mu.RLock()
	before := e.beforeOutgoing
	chain := e.outgoingChain
	e.mu.RUnlock()

	if before != nil {
		if err := before(ctx, evt); err != nil {
			return fmt.Errorf("before outgoing hook: %w", err)
		}
	}
	return runChain(ctx, e.logger, chain, evt)
}

// Register adds a middleware to the chain of its direction. Chains are
// kept sorted by Order; equal orders keep registration order.
func (e *Engine) Register(mw Middleware) error {
	if err := validateMiddleware(mw); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.findLocked(mw.Name) {
		return fmt.Errorf("%w: %s", ErrDuplicateMiddleware, mw.Name)
	}

	// Chains are replaced, never mutated, so a dispatch holding the old
	// slice is unaffected.
	if mw.Direction == event.Incoming {
		e.incomingChain = insertSorted(e.incomingChain, mw)
	} else {
		e.outgoingChain = insertSorted(e.outgoingChain, mw)
	}

	e.logger.Debug("middleware registered",
		slog.String("middleware", mw.Name),
		slog.String("direction", string(mw.Direction)),
		slog.Int("order", mw.Order),
	)
	return nil
}

func insertSorted(chain []Middleware, mw Middleware) []Middleware {
	out := make([]Middleware, 0, len(chain)+1)
	out = append(out, chain...)
	out = append(out, mw)
	slices.SortStableFunc(out, func(a, b Middleware) int {
		return cmp.Compare(a.Order, b.Order)
	})
	return out
}

func (e *Engine) findLocked(name string) bool {
	for _, mw := range e.incomingChain {
		if mw.Name == name {
			return true
		}
	}
	for _, mw := range e.outgoingChain {
		if mw.Name == name {
			return true
		}
	}
	return false
}

// RemoveMiddleware unregisters a middleware by name. Unknown names are
// ignored. Events already being processed finish with the old chain.
func (e *Engine) RemoveMiddleware(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	remove := func(chain []Middleware) []Middleware {
		return slices.DeleteFunc(slices.Clone(chain), func(mw Middleware) bool {
			return mw.Name == name
		})
	}
	before := len(e.incomingChain) + len(e.outgoingChain)
	e.incomingChain = remove(e.incomingChain)
	e.outgoingChain = remove(e.outgoingChain)

	if len(e.incomingChain)+len(e.outgoingChain) < before {
		e.logger.Debug("middleware removed", slog.String("middleware", name))
	}
}

// Middleware returns a copy of the chain for a direction, in run order.
func (e *Engine) Middleware(direction event.Direction) []Middleware {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if direction == event.Incoming {
		return slices.Clone(e.incomingChain)
	}
	return slices.Clone(e.outgoingChain)
}

// OnBeforeIncoming sets the hook run before the incoming chain.
func (e *Engine) OnBeforeIncoming(h Hook) {
	e.mu.Lock()
	e.beforeIncoming = h
	e.mu.Unlock()
}

// OnAfterIncoming sets the hook run after the incoming chain completes.
// It is not run when the chain fails; it is run when an event is
// swallowed.
func (e *Engine) OnAfterIncoming(h Hook) {
	e.mu.Lock()
	e.afterIncoming = h
	e.mu.Unlock()
}

// OnBeforeOutgoing sets the hook run before the outgoing chain.
func (e *Engine) OnBeforeOutgoing(h Hook) {
	e.mu.Lock()
	e.beforeOutgoing = h
	e.mu.Unlock()
}

// SendEvent validates an event and enqueues it on the queue matching its
// direction. It does not wait for processing.
func (e *Engine) SendEvent(ctx context.Context, evt *event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.validateEvents {
		if err := event.Validate(evt); err != nil {
			return err
		}
	} else if evt == nil {
		return fmt.Errorf("%w: nil event", event.ErrInvalidEvent)
	}

	if evt.Direction == event.Incoming {
		e.incoming.Enqueue(evt)
	} else {
		e.outgoing.Enqueue(evt)
	}

	e.logger.Debug("event sent",
		slog.String("event_id", evt.ID),
		slog.String("direction", string(evt.Direction)),
		slog.String("key", event.Key(evt)),
	)
	return nil
}

// ReplyToEvent sends one outgoing event per payload to dest. The event
// type is the payload's "type" entry, or "text" when it has none.
func (e *Engine) ReplyToEvent(ctx context.Context, dest event.Destination, payloads []map[string]any, incomingEventID string) error {
	for _, payload := range payloads {
		eventType, _ := payload["type"].(string)
		if eventType == "" {
			eventType = "text"
		}

		reply := event.New(dest, event.Outgoing, eventType, payload,
			event.WithIncomingEventID(incomingEventID))
		if err := e.SendEvent(ctx, reply); err != nil {
			return fmt.Errorf("reply to %s: %w", incomingEventID, err)
		}
	}
	return nil
}

// IsIncomingQueueEmpty reports whether evt's conversation has no
// incoming events pending.
func (e *Engine) IsIncomingQueueEmpty(evt *event.Event) bool {
	return e.incoming.IsEmptyFor(evt)
}

// IsOutgoingQueueEmpty reports whether evt's conversation has no
// outgoing events pending.
func (e *Engine) IsOutgoingQueueEmpty(evt *event.Event) bool {
	return e.outgoing.IsEmptyFor(evt)
}

// IsOutgoingQueueLocked reports whether an outgoing event of evt's
// conversation is being processed.
func (e *Engine) IsOutgoingQueueLocked(evt *event.Event) bool {
	return e.outgoing.IsLockedFor(evt)
}

// WaitOutgoingQueueEmpty blocks until every outgoing event of evt's
// conversation has been processed, or ctx ends.
//
// Do not call it from an outgoing middleware for the same conversation.
func (e *Engine) WaitOutgoingQueueEmpty(ctx context.Context, evt *event.Event) error {
	return e.outgoing.WaitEmpty(ctx, evt)
}

// CancelOutgoing drops the pending outgoing events of evt's conversation
// and returns how many were dropped.
func (e *Engine) CancelOutgoing(evt *event.Event) int {
	return e.outgoing.CancelAll(evt)
}

// Incoming exposes the incoming queue.
func (e *Engine) Incoming() *eventq.Queue[*event.Event] {
	return e.incoming
}

// Outgoing exposes the outgoing queue.
func (e *Engine) Outgoing() *eventq.Queue[*event.Event] {
	return e.outgoing
}

// Close disposes both queues. Safe to call more than once.
func (e *Engine) Close() {
	e.incoming.Dispose()
	e.outgoing.Dispose()
}
