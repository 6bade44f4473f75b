package eventq

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qerrors "github.com/randalmurphal/eventq/pkg/eventq/errors"
)

// sinkRecorder is a DropSink that keeps what it receives.
type sinkRecorder struct {
	mu      sync.Mutex
	dropped []Dropped
	err     error
}

func (s *sinkRecorder) Drop(_ context.Context, d Dropped) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropped = append(s.dropped, d)
	return s.err
}

func (s *sinkRecorder) all() []Dropped {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Dropped(nil), s.dropped...)
}

// countingMetrics is a QueueMetrics that counts calls.
type countingMetrics struct {
	enqueued, dispatched, failed, retried, dropped, cancelled atomic.Int64
}

func (m *countingMetrics) RecordEnqueue(context.Context, string) { m.enqueued.Add(1) }

func (m *countingMetrics) RecordDispatch(_ context.Context, _ string, _ time.Duration, err error) {
	m.dispatched.Add(1)
	if err != nil {
		m.failed.Add(1)
	}
}

func (m *countingMetrics) RecordRetry(context.Context, string) { m.retried.Add(1) }
func (m *countingMetrics) RecordDrop(context.Context, string)  { m.dropped.Add(1) }

func (m *countingMetrics) RecordCancel(_ context.Context, _ string, removed int) {
	m.cancelled.Add(int64(removed))
}

func TestDispatch_DropSinkReceivesAbandonedJob(t *testing.T) {
	sink := &sinkRecorder{}
	q := newTestQueue(t, WithRetries(1), WithDropSink(sink))

	boom := errors.New("boom")
	q.Subscribe(func(_ context.Context, _ msg) error { return boom })

	q.Enqueue(msg{Target: "a", Text: "hello"})
	waitIdle(t, q, "a")

	dropped := sink.all()
	require.Len(t, dropped, 1)
	d := dropped[0]
	assert.Equal(t, "test", d.Queue)
	assert.Equal(t, "a", d.Key)
	assert.Equal(t, 2, d.Attempts)
	assert.ErrorIs(t, d.Err, boom)
	assert.Equal(t, msg{Target: "a", Text: "hello"}, d.Job)
	assert.NotEmpty(t, d.JobID)
	assert.False(t, d.DroppedAt.IsZero())
}

func TestDispatch_DropSinkErrorIsLogged(t *testing.T) {
	h := newCaptureHandler()
	sink := &sinkRecorder{err: errors.New("disk full")}
	q := newTestQueue(t, WithLogger(slog.New(h)), WithRetries(0), WithDropSink(sink))
	q.Subscribe(func(_ context.Context, _ msg) error { return errors.New("boom") })

	q.Enqueue(msg{Target: "a"})
	waitIdle(t, q, "a")

	_, ok := h.find("drop sink failed")
	assert.True(t, ok)
}

func TestDispatch_IdentifiableJobID(t *testing.T) {
	sink := &sinkRecorder{}
	q := New[idMsg]("ids", func(m idMsg) string { return m.Target }, WithRetries(0), WithDropSink(sink))
	defer q.Dispose()
	q.Subscribe(func(_ context.Context, _ idMsg) error { return errors.New("boom") })

	q.Enqueue(idMsg{ID: "evt-42", Target: "a"})
	require.NoError(t, q.WaitEmpty(context.Background(), idMsg{Target: "a"}))

	dropped := sink.all()
	require.Len(t, dropped, 1)
	assert.Equal(t, "evt-42", dropped[0].JobID)
}

func TestDispatch_PermanentErrorSkipsRetry(t *testing.T) {
	sink := &sinkRecorder{}
	q := newTestQueue(t, WithRetries(3), WithDropSink(sink))

	var calls atomic.Int32
	q.Subscribe(func(_ context.Context, _ msg) error {
		calls.Add(1)
		return qerrors.Permanent(errors.New("bad payload"), "validate")
	})

	q.Enqueue(msg{Target: "a"})
	waitIdle(t, q, "a")

	assert.Equal(t, int32(1), calls.Load())
	dropped := sink.all()
	require.Len(t, dropped, 1)
	assert.Equal(t, 1, dropped[0].Attempts)
	assert.True(t, qerrors.IsPermanent(dropped[0].Err))
}

func TestDispatch_PanicIsRecovered(t *testing.T) {
	t.Run("retried like an error", func(t *testing.T) {
		q := newTestQueue(t, WithRetries(1))

		var calls atomic.Int32
		q.Subscribe(func(_ context.Context, _ msg) error {
			if calls.Add(1) == 1 {
				panic("first call explodes")
			}
			return nil
		})

		q.Enqueue(msg{Target: "a"})
		waitIdle(t, q, "a")
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("abandoned with panic error", func(t *testing.T) {
		sink := &sinkRecorder{}
		q := newTestQueue(t, WithRetries(1), WithDropSink(sink))
		q.Subscribe(func(_ context.Context, _ msg) error {
			panic("always")
		})

		q.Enqueue(msg{Target: "a"})
		waitIdle(t, q, "a")

		dropped := sink.all()
		require.Len(t, dropped, 1)
		assert.ErrorIs(t, dropped[0].Err, ErrSubscriberPanic)
		assert.Contains(t, dropped[0].Err.Error(), "always")
		assert.False(t, q.IsLockedFor(msg{Target: "a"}))
	})
}

func TestDispatch_SubscriberTimeout(t *testing.T) {
	sink := &sinkRecorder{}
	q := newTestQueue(t,
		WithRetries(0),
		WithSubscriberTimeout(10*time.Millisecond),
		WithDropSink(sink),
	)
	q.Subscribe(func(ctx context.Context, _ msg) error {
		<-ctx.Done()
		return ctx.Err()
	})

	q.Enqueue(msg{Target: "a"})
	waitIdle(t, q, "a")

	dropped := sink.all()
	require.Len(t, dropped, 1)
	assert.ErrorIs(t, dropped[0].Err, context.DeadlineExceeded)
}

// TestDispatch_BackoffRetry tests that a backed-off retry holds its key but
// not others, and still goes ahead of later jobs with the same key.
func TestDispatch_BackoffRetry(t *testing.T) {
	policy := qerrors.RetryPolicy{
		MaxRetries:     1,
		InitialBackoff: 30 * time.Millisecond,
		MaxBackoff:     30 * time.Millisecond,
		BackoffFactor:  1,
	}
	q := newTestQueue(t, WithRetryPolicy(policy))

	rec := &recorder{}
	var failed atomic.Bool
	var firstDone time.Time
	var mu sync.Mutex
	start := time.Now()
	q.Subscribe(func(_ context.Context, m msg) error {
		first := m.Target == "a" && m.Text == "1"
		if first && failed.CompareAndSwap(false, true) {
			return errors.New("try later")
		}
		if first {
			mu.Lock()
			firstDone = time.Now()
			mu.Unlock()
		}
		rec.add(m.Target + m.Text)
		return nil
	})

	q.Enqueue(msg{Target: "a", Text: "1"})
	q.Enqueue(msg{Target: "a", Text: "2"})
	q.Enqueue(msg{Target: "b", Text: "1"})
	waitIdle(t, q, "a", "b")

	assert.Equal(t, []string{"b1", "a1", "a2"}, rec.snapshot())
	mu.Lock()
	assert.GreaterOrEqual(t, firstDone.Sub(start), 25*time.Millisecond)
	mu.Unlock()
}

func TestDispatch_MaxConcurrency(t *testing.T) {
	q := newTestQueue(t, WithMaxConcurrency(1))

	var active, maxActive atomic.Int32
	q.Subscribe(func(_ context.Context, _ msg) error {
		n := active.Add(1)
		for {
			cur := maxActive.Load()
			if n <= cur || maxActive.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		active.Add(-1)
		return nil
	})

	for _, target := range []string{"a", "b", "c", "d"} {
		q.Enqueue(msg{Target: target})
		q.Enqueue(msg{Target: target})
	}
	waitIdle(t, q, "a", "b", "c", "d")

	assert.Equal(t, int32(1), maxActive.Load())
}

func TestDispatch_Unbounded(t *testing.T) {
	q := newTestQueue(t)

	var active, maxActive atomic.Int32
	q.Subscribe(func(_ context.Context, _ msg) error {
		n := active.Add(1)
		for {
			cur := maxActive.Load()
			if n <= cur || maxActive.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		active.Add(-1)
		return nil
	})

	for _, target := range []string{"a", "b", "c", "d"} {
		q.Enqueue(msg{Target: target})
	}
	waitIdle(t, q, "a", "b", "c", "d")

	assert.Greater(t, maxActive.Load(), int32(1))
}

func TestDispatch_Rate(t *testing.T) {
	q := newTestQueue(t, WithDispatchRate(20, 1))

	var calls atomic.Int32
	q.Subscribe(func(_ context.Context, _ msg) error {
		calls.Add(1)
		return nil
	})

	start := time.Now()
	q.Enqueue(msg{Target: "a"})
	q.Enqueue(msg{Target: "b"})
	q.Enqueue(msg{Target: "c"})
	waitIdle(t, q, "a", "b", "c")

	assert.Equal(t, int32(3), calls.Load())
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestDispatch_MetricsRecorder(t *testing.T) {
	m := &countingMetrics{}
	q := newTestQueue(t, WithMetricsRecorder(m), WithRetries(1))

	q.Subscribe(func(_ context.Context, job msg) error {
		if job.Text == "bad" {
			return errors.New("bad")
		}
		return nil
	})

	q.Enqueue(msg{Target: "a", Text: "good"})
	q.Enqueue(msg{Target: "b", Text: "bad"})
	waitIdle(t, q, "a", "b")

	assert.Equal(t, int64(2), m.enqueued.Load())
	assert.Equal(t, int64(3), m.dispatched.Load())
	assert.Equal(t, int64(2), m.failed.Load())
	assert.Equal(t, int64(1), m.retried.Load())
	assert.Equal(t, int64(1), m.dropped.Load())
}

func TestDispatch_DrainTimerPicksUpWork(t *testing.T) {
	q := newTestQueue(t, WithDrainInterval(5*time.Millisecond))

	var calls atomic.Int32
	q.Subscribe(func(_ context.Context, _ msg) error {
		calls.Add(1)
		return nil
	})

	// Bypass Enqueue so only the drain timer can schedule a tick.
	q.mu.Lock()
	q.store.pushBack(newJobWrapper(msg{Target: "a"}, "a", 0))
	q.mu.Unlock()

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
}

func TestDispatch_DisposeStopsDrainTimer(t *testing.T) {
	q := newTestQueue(t, WithDrainInterval(5*time.Millisecond))

	var calls atomic.Int32
	q.Subscribe(func(_ context.Context, _ msg) error {
		calls.Add(1)
		return nil
	})

	q.Dispose()

	// Nothing but the drain timer could schedule this job.
	q.mu.Lock()
	q.store.pushBack(newJobWrapper(msg{Target: "a"}, "a", 0))
	q.mu.Unlock()

	time.Sleep(50 * time.Millisecond)

	assert.Zero(t, calls.Load())
	assert.Equal(t, 1, q.Len())

	// An explicit enqueue still dispatches both.
	q.Enqueue(msg{Target: "a"})
	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, time.Millisecond)
}
