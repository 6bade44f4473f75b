package engine

import (
	"log/slog"

	"github.com/randalmurphal/eventq/pkg/eventq"
)

type options struct {
	logger         *slog.Logger
	validateEvents bool
	incoming       []eventq.Option
	outgoing       []eventq.Option
}

func defaultOptions() options {
	return options{
		logger:         slog.Default(),
		validateEvents: true,
	}
}

// Option configures an Engine.
type Option func(*options)

// WithLogger sets the logger used by the engine and, unless overridden by
// queue options, by both queues.
// Default: slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithEventValidation turns event validation in SendEvent on or off.
// Default: true
func WithEventValidation(enabled bool) Option {
	return func(o *options) {
		o.validateEvents = enabled
	}
}

// WithIncomingOptions configures the incoming queue.
func WithIncomingOptions(opts ...eventq.Option) Option {
	return func(o *options) {
		o.incoming = append(o.incoming, opts...)
	}
}

// WithOutgoingOptions configures the outgoing queue.
func WithOutgoingOptions(opts ...eventq.Option) Option {
	return func(o *options) {
		o.outgoing = append(o.outgoing, opts...)
	}
}
