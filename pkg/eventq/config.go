package eventq

import (
	"github.com/randalmurphal/eventq/pkg/eventq/config"
	qerrors "github.com/randalmurphal/eventq/pkg/eventq/errors"
)

// OptionsFromConfig translates a config section into queue options.
// Missing keys keep the queue defaults.
//
// Recognized keys:
//
//	retries            int       retry budget after the first attempt
//	drain_interval     duration  passive tick period
//	max_concurrency    int       keys dispatched at once (0 = unbounded)
//	subscriber_timeout duration  per-subscriber deadline
//	dispatch_rate      float     dispatch starts per second (0 = unlimited)
//	dispatch_burst     int       limiter burst
//	metrics            bool      enable OpenTelemetry metrics
//	tracing            bool      enable OpenTelemetry tracing
//	backoff:                     retry delay; absent means hot retry
//	  initial          duration
//	  max              duration
//	  factor           float
//	  jitter           float
func OptionsFromConfig(cfg config.Config) []Option {
	var opts []Option

	if cfg.Has("backoff") {
		b := cfg.Sub("backoff")
		policy := qerrors.NewRetryPolicy(
			qerrors.WithMaxRetries(cfg.Int("retries", qerrors.HotRetry.MaxRetries)),
			qerrors.WithInitialBackoff(b.Duration("initial", 0)),
			qerrors.WithMaxBackoff(b.Duration("max", 0)),
			qerrors.WithBackoffFactor(b.Float("factor", 1)),
			qerrors.WithJitter(b.Float("jitter", 0)),
		)
		opts = append(opts, WithRetryPolicy(policy))
	} else if cfg.Has("retries") {
		opts = append(opts, WithRetries(cfg.Int("retries", qerrors.HotRetry.MaxRetries)))
	}

	if cfg.Has("drain_interval") {
		opts = append(opts, WithDrainInterval(cfg.Duration("drain_interval", 0)))
	}
	if cfg.Has("max_concurrency") {
		opts = append(opts, WithMaxConcurrency(cfg.Int("max_concurrency", 0)))
	}
	if cfg.Has("subscriber_timeout") {
		opts = append(opts, WithSubscriberTimeout(cfg.Duration("subscriber_timeout", 0)))
	}
	if cfg.Has("dispatch_rate") {
		opts = append(opts, WithDispatchRate(cfg.Float("dispatch_rate", 0), cfg.Int("dispatch_burst", 1)))
	}
	if cfg.Has("metrics") {
		opts = append(opts, WithMetrics(cfg.Bool("metrics", false)))
	}
	if cfg.Has("tracing") {
		opts = append(opts, WithTracing(cfg.Bool("tracing", false)))
	}

	return opts
}
