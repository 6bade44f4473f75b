// Package observability provides logging, metrics, and tracing hooks for
// eventq queues.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// Metrics and tracing are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds queue context to a logger.
//
// Example:
//
//	logger := EnrichLogger(slog.Default(), "incoming")
//	logger.Info("started") // includes queue=incoming
func EnrichLogger(logger *slog.Logger, queueName string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(slog.String("queue", queueName))
}

// LogDispatch logs a completed dispatch attempt.
func LogDispatch(logger *slog.Logger, jobID, key string, attempt int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("job dispatched",
		slog.String("job_id", jobID),
		slog.String("key", key),
		slog.Int("attempt", attempt),
		slog.Float64("duration_ms", durationMs),
	)
}

// LogRetry logs a failed dispatch that will be attempted again.
func LogRetry(logger *slog.Logger, jobID, key string, attempt int, delay time.Duration, err error) {
	if logger == nil {
		return
	}
	logger.Warn("job failed, retrying",
		slog.String("job_id", jobID),
		slog.String("key", key),
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay),
		slog.String("error", err.Error()),
	)
}

// LogFailure logs a failed dispatch that will not be attempted again.
func LogFailure(logger *slog.Logger, jobID, key string, attempt int, err error) {
	if logger == nil {
		return
	}
	logger.Warn("job failed",
		slog.String("job_id", jobID),
		slog.String("key", key),
		slog.Int("attempt", attempt),
		slog.String("error", err.Error()),
	)
}

// LogDrop logs a job that was permanently abandoned.
func LogDrop(logger *slog.Logger, jobID, key string, attempts int, err error) {
	if logger == nil {
		return
	}
	logger.Error("job abandoned",
		slog.String("job_id", jobID),
		slog.String("key", key),
		slog.Int("attempts", attempts),
		slog.String("error", err.Error()),
	)
}

// LogCancel logs pending jobs removed by a cancellation.
func LogCancel(logger *slog.Logger, key string, removed int) {
	if logger == nil || removed == 0 {
		return
	}
	logger.Debug("pending jobs cancelled",
		slog.String("key", key),
		slog.Int("removed", removed),
	)
}

// LogSinkError logs a drop sink failure (non-fatal).
func LogSinkError(logger *slog.Logger, jobID string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("drop sink failed",
		slog.String("job_id", jobID),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
