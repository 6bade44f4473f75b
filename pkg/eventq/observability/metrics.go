package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// QueueMetrics records queue metrics.
// Use NewQueueMetrics() for OTel metrics or NoopMetrics{} when disabled.
type QueueMetrics interface {
	// RecordEnqueue records a job entering the store.
	RecordEnqueue(ctx context.Context, queue string)

	// RecordDispatch records a dispatch attempt with its duration and error status.
	RecordDispatch(ctx context.Context, queue string, duration time.Duration, err error)

	// RecordRetry records a failed job being put back for another attempt.
	RecordRetry(ctx context.Context, queue string)

	// RecordDrop records a job abandoned after failing.
	RecordDrop(ctx context.Context, queue string)

	// RecordCancel records pending jobs removed by cancellation.
	RecordCancel(ctx context.Context, queue string, removed int)
}

// otelMetrics implements QueueMetrics using OpenTelemetry.
type otelMetrics struct {
	enqueued   metric.Int64Counter
	dispatched metric.Int64Counter
	latency    metric.Float64Histogram
	retried    metric.Int64Counter
	dropped    metric.Int64Counter
	cancelled  metric.Int64Counter
	pending    metric.Int64UpDownCounter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics lazily initializes the shared OTel instruments.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("eventq")

	enqueued, err := meter.Int64Counter("eventq.jobs.enqueued",
		metric.WithDescription("Number of jobs enqueued"),
	)
	if err != nil {
		return nil, err
	}

	dispatched, err := meter.Int64Counter("eventq.jobs.dispatched",
		metric.WithDescription("Number of dispatch attempts"),
	)
	if err != nil {
		return nil, err
	}

	latency, err := meter.Float64Histogram("eventq.dispatch.latency_ms",
		metric.WithDescription("Dispatch latency across all subscribers in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	retried, err := meter.Int64Counter("eventq.jobs.retried",
		metric.WithDescription("Number of failed jobs scheduled for retry"),
	)
	if err != nil {
		return nil, err
	}

	dropped, err := meter.Int64Counter("eventq.jobs.dropped",
		metric.WithDescription("Number of jobs abandoned after failing"),
	)
	if err != nil {
		return nil, err
	}

	cancelled, err := meter.Int64Counter("eventq.jobs.cancelled",
		metric.WithDescription("Number of pending jobs removed by cancellation"),
	)
	if err != nil {
		return nil, err
	}

	pending, err := meter.Int64UpDownCounter("eventq.jobs.pending",
		metric.WithDescription("Number of jobs waiting in the store"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		enqueued:   enqueued,
		dispatched: dispatched,
		latency:    latency,
		retried:    retried,
		dropped:    dropped,
		cancelled:  cancelled,
		pending:    pending,
	}, nil
}

// NewQueueMetrics returns a QueueMetrics that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	otel.SetMeterProvider(yourProvider)
func NewQueueMetrics() QueueMetrics {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

func queueAttrs(queue string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("queue", queue))
}

// RecordEnqueue records a job entering the store.
func (m *otelMetrics) RecordEnqueue(ctx context.Context, queue string) {
	attrs := queueAttrs(queue)
	m.enqueued.Add(ctx, 1, attrs)
	m.pending.Add(ctx, 1, attrs)
}

// RecordDispatch records a dispatch attempt. The job left the store when it
// was picked, so pending goes down here.
func (m *otelMetrics) RecordDispatch(ctx context.Context, queue string, duration time.Duration, err error) {
	m.pending.Add(ctx, -1, queueAttrs(queue))

	attrs := metric.WithAttributes(
		attribute.String("queue", queue),
		attribute.Bool("success", err == nil),
	)
	m.dispatched.Add(ctx, 1, attrs)
	m.latency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
}

// RecordRetry records a retry. The retry re-enters the store.
func (m *otelMetrics) RecordRetry(ctx context.Context, queue string) {
	attrs := queueAttrs(queue)
	m.retried.Add(ctx, 1, attrs)
	m.pending.Add(ctx, 1, attrs)
}

// RecordDrop records an abandoned job.
func (m *otelMetrics) RecordDrop(ctx context.Context, queue string) {
	m.dropped.Add(ctx, 1, queueAttrs(queue))
}

// RecordCancel records cancelled pending jobs.
func (m *otelMetrics) RecordCancel(ctx context.Context, queue string, removed int) {
	if removed <= 0 {
		return
	}
	attrs := queueAttrs(queue)
	m.cancelled.Add(ctx, int64(removed), attrs)
	m.pending.Add(ctx, -int64(removed), attrs)
}
