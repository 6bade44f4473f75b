package eventq

import (
	"context"
	"time"
)

// Dropped describes a job the queue gave up on.
type Dropped struct {
	Queue     string
	Key       string
	JobID     string
	Job       any
	Attempts  int
	Err       error
	DroppedAt time.Time
}

// DropSink receives abandoned jobs. Drop is called from the dispatching
// goroutine while the job's key is still locked, so a slow sink delays
// that key only.
type DropSink interface {
	Drop(ctx context.Context, d Dropped) error
}

// DropSinkFunc adapts a function to the DropSink interface.
type DropSinkFunc func(ctx context.Context, d Dropped) error

// Drop implements DropSink.
func (f DropSinkFunc) Drop(ctx context.Context, d Dropped) error {
	return f(ctx, d)
}
