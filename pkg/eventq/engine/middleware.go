package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/randalmurphal/eventq/pkg/eventq/event"
)

// Handler processes one event inside a middleware chain. Returning
// Swallow stops the chain without failing the event; any other error
// fails the dispatch and hands the event to the queue's retry policy.
type Handler func(ctx context.Context, evt *event.Event) error

// Swallow is returned by a Handler to stop the chain quietly.
var Swallow = errors.New("engine: event swallowed")

// Middleware is one step of the incoming or outgoing chain.
type Middleware struct {
	// Name identifies the middleware; it must be unique across both chains.
	Name string `validate:"required"`

	Description string `validate:"required"`

	Direction event.Direction `validate:"required,oneof=incoming outgoing"`

	// Order sorts the chain ascending. Equal orders keep registration order.
	Order int

	// Disabled middleware stay registered but are skipped.
	Disabled bool

	// Timeout bounds the handler through its context. Zero means none.
	Timeout time.Duration `validate:"gte=0"`

	Handler Handler `validate:"required"`
}

// Sentinel errors for middleware registration.
var (
	ErrInvalidMiddleware   = errors.New("invalid middleware definition")
	ErrDuplicateMiddleware = errors.New("middleware already registered")
)

var validate = validator.New()

func validateMiddleware(mw Middleware) error {
	if err := validate.Struct(mw); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidMiddleware, mw.Name, err)
	}
	return nil
}

// runChain runs every enabled middleware in order. It returns nil when the
// chain completes or a middleware swallows the event.
func runChain(ctx context.Context, logger *slog.Logger, chain []Middleware, evt *event.Event) error {
	for _, mw := range chain {
		if mw.Disabled {
			continue
		}

		err := runMiddleware(ctx, mw, evt)
		if errors.Is(err, Swallow) {
			logger.Debug("event swallowed",
				slog.String("middleware", mw.Name),
				slog.String("event_id", evt.ID),
			)
			return nil
		}
		if err != nil {
			return fmt.Errorf("middleware %s: %w", mw.Name, err)
		}
	}
	return nil
}

func runMiddleware(ctx context.Context, mw Middleware, evt *event.Event) error {
	if mw.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, mw.Timeout)
		defer cancel()
	}
	return mw.Handler(ctx, evt)
}
