package eventq

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randalmurphal/eventq/pkg/eventq/observability"
)

// Queue dispatches jobs to its subscribers, one job per key at a time, in
// enqueue order per key. Jobs with different keys are dispatched
// concurrently.
//
// All methods are safe for concurrent use. A subscriber must not call
// WaitEmpty for the key it is currently handling; that key cannot drain
// until the subscriber returns.
type Queue[T any] struct {
	name   string
	keyFn  KeyFunc[T]
	opts   options
	logger *slog.Logger

	mu       sync.Mutex
	store    *orderedStore[T]
	locks    lockTable
	waiters  waiterTable
	subs     []Subscriber[T]
	inFlight int
	wakeAt   time.Time

	// tickMu keeps ticks from overlapping; scheduled coalesces requests
	// for a tick that has not started yet.
	tickMu    sync.Mutex
	scheduled atomic.Bool

	stopOnce sync.Once
	stop     chan struct{}
	drained  chan struct{}
}

// New creates a queue and starts its drain timer. keyFn must not be nil.
//
// Example:
//
//	q := eventq.New("incoming", event.Key,
//	    eventq.WithLogger(logger),
//	    eventq.WithRetries(1),
//	)
//	defer q.Dispose()
//	q.Subscribe(handle)
//	q.Enqueue(evt)
func New[T any](name string, keyFn KeyFunc[T], opts ...Option) *Queue[T] {
	if keyFn == nil {
		panic("eventq: nil KeyFunc")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	q := &Queue[T]{
		name:    name,
		keyFn:   keyFn,
		opts:    o,
		logger:  observability.EnrichLogger(o.logger, name),
		store:   newOrderedStore[T](),
		locks:   make(lockTable),
		waiters: make(waiterTable),
		stop:    make(chan struct{}),
		drained: make(chan struct{}),
	}

	go q.drain(o.drainInterval)

	return q
}

// Name returns the queue name given to New.
func (q *Queue[T]) Name() string {
	return q.name
}

func (q *Queue[T]) key(job T) string {
	k := q.keyFn(job)
	if k == "" {
		panic(ErrEmptyKey)
	}
	return k
}

// Subscribe registers a consumer. Every dispatched job is passed to every
// subscriber, in registration order. Nil subscribers are ignored.
func (q *Queue[T]) Subscribe(fn Subscriber[T]) {
	if fn == nil {
		return
	}
	q.mu.Lock()
	q.subs = append(q.subs, fn)
	q.mu.Unlock()
}

// Enqueue appends job to the store and schedules a tick. It never blocks
// on dispatch and never fails.
func (q *Queue[T]) Enqueue(job T) {
	q.push(newJobWrapper(job, q.key(job), 0), false)
}

// push inserts w at the tail, or at the head when priority is set.
func (q *Queue[T]) push(w *JobWrapper[T], priority bool) {
	q.mu.Lock()
	if priority {
		q.store.pushFront(w)
	} else {
		q.store.pushBack(w)
	}
	q.mu.Unlock()

	q.opts.metrics.RecordEnqueue(context.Background(), q.name)
	q.schedule()
}

// Dequeue removes and returns the head of the store, ignoring key locks.
// The returned job will not be dispatched and is counted as cancelled.
func (q *Queue[T]) Dequeue() (JobWrapper[T], bool) {
	q.mu.Lock()
	w := q.store.popFront()
	if w != nil {
		q.notifyLocked(w.Key)
	}
	q.mu.Unlock()

	if w == nil {
		return JobWrapper[T]{}, false
	}
	q.opts.metrics.RecordCancel(context.Background(), q.name, 1)
	return *w, true
}

// CancelAll removes every pending job that shares job's key and returns
// how many were removed. A dispatch already in flight for the key is not
// interrupted.
func (q *Queue[T]) CancelAll(job T) int {
	key := q.key(job)

	q.mu.Lock()
	removed := q.store.removeKey(key)
	q.notifyLocked(key)
	q.mu.Unlock()

	q.opts.metrics.RecordCancel(context.Background(), q.name, removed)
	observability.LogCancel(q.logger, key, removed)
	return removed
}

// Peek returns the earliest pending job sharing job's key without
// removing it.
func (q *Queue[T]) Peek(job T) (JobWrapper[T], bool) {
	key := q.key(job)

	q.mu.Lock()
	defer q.mu.Unlock()

	w := q.store.first(key)
	if w == nil {
		return JobWrapper[T]{}, false
	}
	return *w, true
}

// IsEmpty reports whether no job is pending for any key. Jobs being
// dispatched are not pending.
func (q *Queue[T]) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.store.len() == 0
}

// Len returns the number of pending jobs.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.store.len()
}

// IsEmptyFor reports whether no job is pending for job's key.
func (q *Queue[T]) IsEmptyFor(job T) bool {
	key := q.key(job)

	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.store.hasKey(key)
}

// IsLockedFor reports whether a job with job's key is being dispatched.
func (q *Queue[T]) IsLockedFor(job T) bool {
	key := q.key(job)

	q.mu.Lock()
	defer q.mu.Unlock()
	return q.locks.has(key)
}

// WaitEmpty blocks until job's key has no pending jobs and no dispatch in
// flight. It returns immediately when the key is already idle, and
// returns ctx.Err() if ctx ends first.
func (q *Queue[T]) WaitEmpty(ctx context.Context, job T) error {
	key := q.key(job)

	q.mu.Lock()
	if q.idleLocked(key) {
		q.mu.Unlock()
		return nil
	}
	ch := q.waiters.add(key)
	q.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		q.mu.Lock()
		defer q.mu.Unlock()
		select {
		case <-ch:
			return nil
		default:
		}
		q.waiters.forget(key, ch)
		return ctx.Err()
	}
}

// Dispose stops the drain timer; once it returns no passive tick is
// scheduled. Pending jobs are kept and still dispatched by ticks that
// enqueue or completion schedules. Safe to call more than once.
func (q *Queue[T]) Dispose() {
	q.stopOnce.Do(func() {
		close(q.stop)
	})
	<-q.drained
}

func (q *Queue[T]) idleLocked(key string) bool {
	return !q.store.hasKey(key) && !q.locks.has(key)
}

// notifyLocked releases the waiters of key if it just became idle.
func (q *Queue[T]) notifyLocked(key string) {
	if q.idleLocked(key) {
		q.waiters.release(key)
	}
}

// drain is the passive safety net: it schedules a tick every interval
// while jobs are pending, until Dispose.
func (q *Queue[T]) drain(interval time.Duration) {
	defer close(q.drained)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !q.IsEmpty() {
				q.schedule()
			}
		case <-q.stop:
			return
		}
	}
}
