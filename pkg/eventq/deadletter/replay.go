package deadletter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/randalmurphal/eventq/pkg/eventq"
)

// Replay re-enqueues every entry stored for q, oldest first, and deletes
// each entry once it is back in the queue. It returns how many entries
// were replayed.
//
// Payloads are decoded with encoding/json into T. Replay stops at the
// first entry it cannot decode or delete; entries replayed before that
// stay replayed.
//
// Example:
//
//	n, err := deadletter.Replay(ctx, store, outgoing)
func Replay[T any](ctx context.Context, s Store, q *eventq.Queue[T]) (int, error) {
	entries, err := s.List(ctx, q.Name(), 0)
	if err != nil {
		return 0, err
	}

	replayed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return replayed, err
		}

		var job T
		if err := json.Unmarshal(e.Payload, &job); err != nil {
			return replayed, fmt.Errorf("decode dead letter %s: %w", e.ID, err)
		}

		q.Enqueue(job)
		if err := s.Delete(ctx, e.ID); err != nil {
			return replayed, fmt.Errorf("delete replayed dead letter %s: %w", e.ID, err)
		}
		replayed++
	}
	return replayed, nil
}
