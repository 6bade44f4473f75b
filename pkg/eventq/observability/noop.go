package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a QueueMetrics that does nothing.
type NoopMetrics struct{}

var _ QueueMetrics = NoopMetrics{}

// RecordEnqueue does nothing.
func (NoopMetrics) RecordEnqueue(_ context.Context, _ string) {}

// RecordDispatch does nothing.
func (NoopMetrics) RecordDispatch(_ context.Context, _ string, _ time.Duration, _ error) {}

// RecordRetry does nothing.
func (NoopMetrics) RecordRetry(_ context.Context, _ string) {}

// RecordDrop does nothing.
func (NoopMetrics) RecordDrop(_ context.Context, _ string) {}

// RecordCancel does nothing.
func (NoopMetrics) RecordCancel(_ context.Context, _ string, _ int) {}

// NoopSpanManager is a SpanManager that does nothing.
type NoopSpanManager struct{}

var _ SpanManager = NoopSpanManager{}

var noopSpan = noop.Span{}

// StartDispatchSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartDispatchSpan(ctx context.Context, _, _, _ string, _ int) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// EndSpanWithError does nothing.
func (NoopSpanManager) EndSpanWithError(_ trace.Span, _ error) {}

// AddSpanEvent does nothing.
func (NoopSpanManager) AddSpanEvent(_ context.Context, _ string, _ ...attribute.KeyValue) {}
