// Package deadletter keeps jobs a queue gave up on so they can be
// inspected and replayed.
package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/eventq/pkg/eventq"
)

// Store persists abandoned jobs. Every Store is an eventq.DropSink and can
// be passed to eventq.WithDropSink directly.
// Implementations must be safe for concurrent use.
type Store interface {
	eventq.DropSink

	// Put stores an entry as is.
	Put(ctx context.Context, e Entry) error

	// List returns entries for a queue, oldest first. An empty queue name
	// lists every queue; limit <= 0 means no limit.
	List(ctx context.Context, queue string, limit int) ([]Entry, error)

	// Get returns one entry. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (Entry, error)

	// Delete removes an entry. Returns nil if it doesn't exist.
	Delete(ctx context.Context, id string) error

	// Count returns how many entries a queue holds ("" for all queues).
	Count(ctx context.Context, queue string) (int, error)

	// Close releases any resources (connections, files).
	Close() error
}

// Entry is one abandoned job.
type Entry struct {
	ID        string          `json:"id"`
	Queue     string          `json:"queue"`
	Key       string          `json:"key"`
	JobID     string          `json:"job_id"`
	Payload   json.RawMessage `json:"payload"`
	Error     string          `json:"error"`
	Attempts  int             `json:"attempts"`
	DroppedAt time.Time       `json:"dropped_at"`
}

// Sentinel errors for dead-letter operations.
var (
	// ErrNotFound indicates an entry doesn't exist.
	ErrNotFound = errors.New("dead letter not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("dead letter store closed")
)

// EntryFrom converts a dropped job into an entry. The job is stored as
// JSON, so it must be JSON-serializable to be replayed later.
func EntryFrom(d eventq.Dropped) (Entry, error) {
	payload, err := json.Marshal(d.Job)
	if err != nil {
		return Entry{}, fmt.Errorf("marshal job %s: %w", d.JobID, err)
	}

	e := Entry{
		ID:        uuid.New().String(),
		Queue:     d.Queue,
		Key:       d.Key,
		JobID:     d.JobID,
		Payload:   payload,
		Attempts:  d.Attempts,
		DroppedAt: d.DroppedAt.UTC(),
	}
	if d.Err != nil {
		e.Error = d.Err.Error()
	}
	if e.DroppedAt.IsZero() {
		e.DroppedAt = time.Now().UTC()
	}
	return e, nil
}
