package eventq

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// KeyFunc derives the partition key of a job. Jobs with equal keys are
// dispatched strictly in enqueue order; jobs with different keys have no
// ordering relationship.
//
// A KeyFunc must be deterministic and side-effect free. Returning ""
// is a programming error and makes the calling queue method panic.
type KeyFunc[T any] func(job T) string

// Subscriber consumes dispatched jobs. Returning a non-nil error fails
// the dispatch and hands the job to the retry policy.
type Subscriber[T any] func(ctx context.Context, job T) error

// Identifiable is implemented by jobs that carry their own identity.
// The identity is only used in logs, traces, and dead-letter entries.
type Identifiable interface {
	JobID() string
}

// JobWrapper is the queue's envelope around a job.
type JobWrapper[T any] struct {
	// Job is the producer's payload.
	Job T

	// ID identifies this envelope. A retry gets a fresh envelope and ID.
	ID string

	// Key is the partition key computed at enqueue time.
	Key string

	// EnqueuedAt is when this envelope entered the store.
	EnqueuedAt time.Time

	// RetryCount is the number of failed attempts before this one.
	RetryCount int

	// NotBefore delays eligibility for backed-off retries.
	// Zero means immediately eligible.
	NotBefore time.Time
}

func newJobWrapper[T any](job T, key string, retryCount int) *JobWrapper[T] {
	return &JobWrapper[T]{
		Job:        job,
		ID:         uuid.New().String(),
		Key:        key,
		EnqueuedAt: time.Now(),
		RetryCount: retryCount,
	}
}

// JobID returns the job's own identity when it has one, else the
// envelope ID.
func (w *JobWrapper[T]) JobID() string {
	if id, ok := any(w.Job).(Identifiable); ok {
		if s := id.JobID(); s != "" {
			return s
		}
	}
	return w.ID
}
