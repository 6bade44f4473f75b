package eventq

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	qerrors "github.com/randalmurphal/eventq/pkg/eventq/errors"
	"github.com/randalmurphal/eventq/pkg/eventq/observability"
)

// options holds the configuration of a Queue.
type options struct {
	logger            *slog.Logger
	retry             qerrors.RetryPolicy
	drainInterval     time.Duration
	maxConcurrency    int
	subscriberTimeout time.Duration
	limiter           *rate.Limiter
	sink              DropSink
	metrics           observability.QueueMetrics
	spans             observability.SpanManager
}

// defaultOptions returns the default queue configuration.
func defaultOptions() options {
	return options{
		logger:        slog.Default(),
		retry:         qerrors.HotRetry,
		drainInterval: 2 * time.Second,
		metrics:       observability.NoopMetrics{},
		spans:         observability.NoopSpanManager{},
	}
}

// Option configures a Queue.
type Option func(*options)

// WithLogger sets the logger. The queue adds a queue=<name> attribute.
// Default: slog.Default()
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRetries sets how many times a failed job is attempted again before
// it is abandoned. Other fields of the retry policy are kept.
// Default: 1
func WithRetries(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.retry.MaxRetries = n
		}
	}
}

// WithRetryPolicy replaces the whole retry policy, including backoff.
// Default: errors.HotRetry (one immediate retry)
func WithRetryPolicy(p qerrors.RetryPolicy) Option {
	return func(o *options) {
		o.retry = p
	}
}

// WithDrainInterval sets the period of the passive safety-net tick.
// Default: 2s
func WithDrainInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.drainInterval = d
		}
	}
}

// WithMaxConcurrency bounds the number of keys dispatched at the same
// time. 1 serializes all dispatch. Default: 0 (unbounded)
func WithMaxConcurrency(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxConcurrency = n
		}
	}
}

// WithSubscriberTimeout gives every subscriber call a deadline. A
// subscriber that ignores its context still holds the key until it
// returns. Default: 0 (no deadline)
func WithSubscriberTimeout(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.subscriberTimeout = d
		}
	}
}

// WithDispatchRate limits how many dispatches may start per second,
// across all keys. Default: unlimited
func WithDispatchRate(perSecond float64, burst int) Option {
	return func(o *options) {
		if perSecond <= 0 {
			o.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		o.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithDropSink receives every job the queue abandons.
// Default: none (abandoned jobs are only logged)
func WithDropSink(sink DropSink) Option {
	return func(o *options) {
		o.sink = sink
	}
}

// WithMetrics enables OpenTelemetry metrics using the global meter provider.
// Default: false
func WithMetrics(enabled bool) Option {
	return func(o *options) {
		if enabled {
			o.metrics = observability.NewQueueMetrics()
		} else {
			o.metrics = observability.NoopMetrics{}
		}
	}
}

// WithMetricsRecorder installs a specific metrics recorder.
func WithMetricsRecorder(m observability.QueueMetrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithTracing enables one OpenTelemetry span per dispatch attempt.
// Default: false
func WithTracing(enabled bool) Option {
	return func(o *options) {
		if enabled {
			o.spans = observability.NewSpanManager()
		} else {
			o.spans = observability.NoopSpanManager{}
		}
	}
}
