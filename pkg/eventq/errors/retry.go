package errors

import (
	"math/rand/v2"
	"time"
)

// RetryPolicy configures how a queue retries failed dispatches.
type RetryPolicy struct {
	// MaxRetries is the number of attempts after the first one.
	// Zero means a failed job is dropped immediately.
	MaxRetries int

	// InitialBackoff is the delay before the first retry.
	// Zero retries immediately ("hot retry").
	InitialBackoff time.Duration

	// MaxBackoff caps the delay. Zero means uncapped.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied after each retry.
	// Values below 1 are treated as 1 (constant backoff).
	BackoffFactor float64

	// Jitter is the random jitter factor (0.0-1.0).
	Jitter float64
}

// HotRetry retries once with no delay.
var HotRetry = RetryPolicy{
	MaxRetries: 1,
}

// BackoffRetry retries a few times with exponential backoff, for
// subscribers whose downstream may be briefly unavailable.
var BackoffRetry = RetryPolicy{
	MaxRetries:     3,
	InitialBackoff: 100 * time.Millisecond,
	MaxBackoff:     5 * time.Second,
	BackoffFactor:  2.0,
	Jitter:         0.1,
}

// NoRetry drops a job on its first failure.
var NoRetry = RetryPolicy{}

// ShouldRetry reports whether a job that has already been retried
// retryCount times may be attempted again after failing with err.
func (p RetryPolicy) ShouldRetry(retryCount int, err error) bool {
	if !IsRetryable(err) {
		return false
	}
	return retryCount+1 <= p.MaxRetries
}

// Delay returns how long to wait before retry attempt n (1-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.InitialBackoff <= 0 || attempt <= 0 {
		return 0
	}

	factor := p.BackoffFactor
	if factor < 1 {
		factor = 1
	}

	backoff := float64(p.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= factor
		if p.MaxBackoff > 0 && backoff > float64(p.MaxBackoff) {
			backoff = float64(p.MaxBackoff)
			break
		}
	}

	return calculateBackoff(time.Duration(backoff), p.Jitter)
}

// calculateBackoff returns the backoff duration with jitter applied.
func calculateBackoff(base time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return base
	}

	// base +/- (base * jitter * random)
	jitterAmount := float64(base) * jitter * (rand.Float64()*2 - 1)
	return time.Duration(float64(base) + jitterAmount)
}

// RetryOption configures a retry policy.
type RetryOption func(*RetryPolicy)

// WithMaxRetries sets the number of retries after the first attempt.
func WithMaxRetries(n int) RetryOption {
	return func(p *RetryPolicy) {
		p.MaxRetries = n
	}
}

// WithInitialBackoff sets the initial backoff duration.
func WithInitialBackoff(d time.Duration) RetryOption {
	return func(p *RetryPolicy) {
		p.InitialBackoff = d
	}
}

// WithMaxBackoff sets the maximum backoff duration.
func WithMaxBackoff(d time.Duration) RetryOption {
	return func(p *RetryPolicy) {
		p.MaxBackoff = d
	}
}

// WithBackoffFactor sets the backoff multiplier.
func WithBackoffFactor(f float64) RetryOption {
	return func(p *RetryPolicy) {
		p.BackoffFactor = f
	}
}

// WithJitter sets the jitter factor.
func WithJitter(j float64) RetryOption {
	return func(p *RetryPolicy) {
		p.Jitter = j
	}
}

// NewRetryPolicy creates a policy starting from HotRetry.
func NewRetryPolicy(opts ...RetryOption) RetryPolicy {
	p := HotRetry
	for _, opt := range opts {
		opt(&p)
	}
	return p
}
