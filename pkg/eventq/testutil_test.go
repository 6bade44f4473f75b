package eventq

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Test job types used across tests

// msg is a minimal conversational job keyed by Target.
type msg struct {
	Target string
	Text   string
}

func msgKey(m msg) string { return m.Target }

// idMsg carries its own identity.
type idMsg struct {
	ID     string
	Target string
}

func (m idMsg) JobID() string { return m.ID }

// recorder collects delivered texts in delivery order.
type recorder struct {
	mu    sync.Mutex
	items []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.items = append(r.items, s)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.items))
	copy(out, r.items)
	return out
}

// logRecord is one captured log line.
type logRecord struct {
	Level slog.Level
	Msg   string
	Attrs map[string]any
}

// captureHandler is a concurrency-safe slog handler that keeps records.
type captureHandler struct {
	mu      *sync.Mutex
	records *[]logRecord
	attrs   []slog.Attr
}

func newCaptureHandler() *captureHandler {
	return &captureHandler{mu: &sync.Mutex{}, records: &[]logRecord{}}
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	rec := logRecord{Level: r.Level, Msg: r.Message, Attrs: map[string]any{}}
	for _, a := range h.attrs {
		rec.Attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		rec.Attrs[a.Key] = a.Value.Any()
		return true
	})
	h.mu.Lock()
	*h.records = append(*h.records, rec)
	h.mu.Unlock()
	return nil
}

func (h *captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	n := &captureHandler{mu: h.mu, records: h.records}
	n.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return n
}

func (h *captureHandler) WithGroup(string) slog.Handler { return h }

// count returns how many records were logged at level.
func (h *captureHandler) count(level slog.Level) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range *h.records {
		if r.Level == level {
			n++
		}
	}
	return n
}

func (h *captureHandler) find(message string) (logRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range *h.records {
		if r.Msg == message {
			return r, true
		}
	}
	return logRecord{}, false
}

// newTestQueue creates a msg queue that is disposed when the test ends.
func newTestQueue(t *testing.T, opts ...Option) *Queue[msg] {
	t.Helper()
	q := New[msg]("test", msgKey, opts...)
	t.Cleanup(q.Dispose)
	return q
}

// waitIdle blocks until every key in targets is idle, failing the test
// after a generous deadline.
func waitIdle(t *testing.T, q *Queue[msg], targets ...string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, target := range targets {
		require.NoError(t, q.WaitEmpty(ctx, msg{Target: target}), "key %q did not drain", target)
	}
}

// lockedSoon waits until a dispatch is in flight for target.
func lockedSoon(t *testing.T, q *Queue[msg], target string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return q.IsLockedFor(msg{Target: target})
	}, time.Second, time.Millisecond)
}
