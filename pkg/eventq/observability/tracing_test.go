package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

// setupTracingTest installs an in-memory span recorder for the test.
func setupTracingTest(t *testing.T) (*tracetest.InMemoryExporter, func()) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)

	originalProvider := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	tracer = otel.Tracer("eventq")

	cleanup := func() {
		otel.SetTracerProvider(originalProvider)
		tracer = otel.Tracer("eventq")
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down tracer provider: %v", err)
		}
	}

	return exporter, cleanup
}

func TestStartDispatchSpan(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	sm := NewSpanManager()

	t.Run("creates span with job attributes", func(t *testing.T) {
		ctx, span := sm.StartDispatchSpan(context.Background(), "incoming", "job-1", "bot::web::u1", 2)
		require.NotNil(t, span)
		assert.True(t, trace.SpanFromContext(ctx).SpanContext().IsValid())
		sm.EndSpanWithError(span, nil)

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)

		s := spans[0]
		assert.Equal(t, "eventq.dispatch", s.Name)
		assert.Equal(t, trace.SpanKindConsumer, s.SpanKind)
		assert.Equal(t, codes.Ok, s.Status.Code)

		attrs := map[attribute.Key]attribute.Value{}
		for _, a := range s.Attributes {
			attrs[a.Key] = a.Value
		}
		assert.Equal(t, "incoming", attrs["queue.name"].AsString())
		assert.Equal(t, "job-1", attrs["job.id"].AsString())
		assert.Equal(t, "bot::web::u1", attrs["job.key"].AsString())
		assert.Equal(t, int64(2), attrs["job.attempt"].AsInt64())
	})

	t.Run("records errors", func(t *testing.T) {
		exporter.Reset()

		_, span := sm.StartDispatchSpan(context.Background(), "q", "j", "k", 0)
		sm.EndSpanWithError(span, errors.New("subscriber failed"))

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status.Code)
		assert.Equal(t, "subscriber failed", spans[0].Status.Description)
		require.NotEmpty(t, spans[0].Events)
		assert.Equal(t, "exception", spans[0].Events[0].Name)
	})

	t.Run("span events attach to current span", func(t *testing.T) {
		exporter.Reset()

		ctx, span := sm.StartDispatchSpan(context.Background(), "q", "j", "k", 0)
		sm.AddSpanEvent(ctx, "subscriber.done", attribute.Int("index", 0))
		sm.EndSpanWithError(span, nil)

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		require.Len(t, spans[0].Events, 1)
		assert.Equal(t, "subscriber.done", spans[0].Events[0].Name)
	})
}

func TestEndSpanWithError_NilSpan(t *testing.T) {
	assert.NotPanics(t, func() {
		NewSpanManager().EndSpanWithError(nil, errors.New("x"))
	})
}

func TestNoopImplementations(t *testing.T) {
	ctx := context.Background()

	assert.NotPanics(t, func() {
		var m QueueMetrics = NoopMetrics{}
		m.RecordEnqueue(ctx, "q")
		m.RecordDispatch(ctx, "q", 0, errors.New("x"))
		m.RecordRetry(ctx, "q")
		m.RecordDrop(ctx, "q")
		m.RecordCancel(ctx, "q", 3)
	})

	var sm SpanManager = NoopSpanManager{}
	newCtx, span := sm.StartDispatchSpan(ctx, "q", "j", "k", 0)
	assert.Equal(t, ctx, newCtx)
	assert.False(t, span.IsRecording())
	assert.NotPanics(t, func() {
		sm.AddSpanEvent(ctx, "x")
		sm.EndSpanWithError(span, nil)
	})
}
