package eventq

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/randalmurphal/eventq/pkg/eventq/observability"
)

// schedule requests a tick on its own goroutine. Requests made before a
// pending tick starts are coalesced into it; requests made while a tick
// runs start another one after it.
func (q *Queue[T]) schedule() {
	if !q.scheduled.CompareAndSwap(false, true) {
		return
	}
	go func() {
		q.tickMu.Lock()
		defer q.tickMu.Unlock()
		q.scheduled.Store(false)
		q.tick()
	}()
}

// tick starts a dispatch for every eligible job until none is left or a
// concurrency or rate limit is reached.
func (q *Queue[T]) tick() {
	for {
		w := q.next()
		if w == nil {
			return
		}
		go q.dispatch(w)
	}
}

// next splices out the next eligible job and locks its key.
func (q *Queue[T]) next() *JobWrapper[T] {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.store.len() == 0 {
		return nil
	}
	if q.opts.maxConcurrency > 0 && q.inFlight >= q.opts.maxConcurrency {
		return nil
	}

	now := time.Now()
	w, wake := q.store.takeEligible(q.locks, now)
	if w == nil {
		if !wake.IsZero() {
			q.wakeAtLocked(wake)
		}
		return nil
	}

	if lim := q.opts.limiter; lim != nil {
		r := lim.ReserveN(now, 1)
		if d := r.DelayFrom(now); d > 0 {
			r.CancelAt(now)
			// Not taken after all: it goes back where it was, the head
			// of its key, and the rest of the store is untouched.
			q.restoreLocked(w)
			q.wakeAtLocked(now.Add(d))
			return nil
		}
	}

	q.locks.lock(w.Key)
	q.inFlight++
	return w
}

// restoreLocked puts a wrapper that was spliced out but never dispatched
// back in front of its key. Putting it at the head of the store keeps
// its position relative to same-key jobs, which is all ordering needs.
func (q *Queue[T]) restoreLocked(w *JobWrapper[T]) {
	q.store.pushFront(w)
}

// wakeAtLocked arms a one-shot tick at t unless an earlier one is armed.
func (q *Queue[T]) wakeAtLocked(t time.Time) {
	if !q.wakeAt.IsZero() && q.wakeAt.After(time.Now()) && !t.Before(q.wakeAt) {
		return
	}
	q.wakeAt = t
	time.AfterFunc(time.Until(t), func() {
		q.mu.Lock()
		if q.wakeAt.Equal(t) {
			q.wakeAt = time.Time{}
		}
		q.mu.Unlock()
		q.schedule()
	})
}

// dispatch runs one attempt of w and applies the retry policy.
func (q *Queue[T]) dispatch(w *JobWrapper[T]) {
	jobID := w.JobID()
	attempt := w.RetryCount + 1

	ctx, span := q.opts.spans.StartDispatchSpan(context.Background(), q.name, jobID, w.Key, attempt)
	done := observability.TimedOperation()
	start := time.Now()

	err := q.runSubscribers(ctx, w.Job)

	q.opts.spans.EndSpanWithError(span, err)
	q.opts.metrics.RecordDispatch(ctx, q.name, time.Since(start), err)

	if err == nil {
		observability.LogDispatch(q.logger, jobID, w.Key, attempt, done())
		q.finish(w.Key, nil)
		return
	}

	if q.opts.retry.ShouldRetry(w.RetryCount, err) {
		retry := newJobWrapper(w.Job, w.Key, w.RetryCount+1)
		delay := q.opts.retry.Delay(retry.RetryCount)
		if delay > 0 {
			retry.NotBefore = retry.EnqueuedAt.Add(delay)
		}
		observability.LogRetry(q.logger, jobID, w.Key, attempt, delay, err)
		q.opts.metrics.RecordRetry(ctx, q.name)
		q.finish(w.Key, retry)
		return
	}

	observability.LogFailure(q.logger, jobID, w.Key, attempt, err)
	observability.LogDrop(q.logger, jobID, w.Key, attempt, err)
	q.opts.metrics.RecordDrop(ctx, q.name)
	q.sendToSink(ctx, w, jobID, attempt, err)
	q.finish(w.Key, nil)
}

// finish unlocks key, puts the retry (if any) at the head of the store,
// wakes waiters and re-arms the dispatcher. All of it happens in one
// critical section so a waiter can never observe the gap between the
// failed attempt and its retry.
func (q *Queue[T]) finish(key string, retry *JobWrapper[T]) {
	q.mu.Lock()
	q.locks.unlock(key)
	q.inFlight--
	if retry != nil {
		q.store.pushFront(retry)
		if !retry.NotBefore.IsZero() {
			q.wakeAtLocked(retry.NotBefore)
		}
	}
	q.notifyLocked(key)
	more := q.store.len() > 0
	q.mu.Unlock()

	if more {
		q.schedule()
	}
}

// runSubscribers calls every subscriber in order and stops at the first
// failure. Subscribers that already ran are not rolled back.
func (q *Queue[T]) runSubscribers(ctx context.Context, job T) error {
	q.mu.Lock()
	subs := make([]Subscriber[T], len(q.subs))
	copy(subs, q.subs)
	q.mu.Unlock()

	for i, sub := range subs {
		if err := q.callSubscriber(ctx, sub, job); err != nil {
			return fmt.Errorf("subscriber %d: %w", i, err)
		}
	}
	return nil
}

func (q *Queue[T]) callSubscriber(ctx context.Context, sub Subscriber[T], job T) (err error) {
	if q.opts.subscriberTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.opts.subscriberTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("subscriber panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("%w: %v", ErrSubscriberPanic, r)
		}
	}()

	return sub(ctx, job)
}

func (q *Queue[T]) sendToSink(ctx context.Context, w *JobWrapper[T], jobID string, attempts int, err error) {
	if q.opts.sink == nil {
		return
	}
	d := Dropped{
		Queue:     q.name,
		Key:       w.Key,
		JobID:     jobID,
		Job:       w.Job,
		Attempts:  attempts,
		Err:       err,
		DroppedAt: time.Now(),
	}
	if sinkErr := q.opts.sink.Drop(ctx, d); sinkErr != nil {
		observability.LogSinkError(q.logger, jobID, sinkErr)
	}
}
