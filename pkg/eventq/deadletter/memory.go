package deadletter

import (
	"context"
	"sync"

	"github.com/randalmurphal/eventq/pkg/eventq"
)

// MemoryStore is an in-memory dead-letter store for tests and
// single-process tools. Entries are lost when the process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	order   []string // entry IDs, oldest first
	closed  bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Entry),
	}
}

// Drop implements eventq.DropSink.
func (m *MemoryStore) Drop(ctx context.Context, d eventq.Dropped) error {
	e, err := EntryFrom(d)
	if err != nil {
		return err
	}
	return m.Put(ctx, e)
}

// Put implements Store.
func (m *MemoryStore) Put(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	// Copy payload to avoid retaining caller's slice
	payload := make([]byte, len(e.Payload))
	copy(payload, e.Payload)
	e.Payload = payload

	if _, exists := m.entries[e.ID]; !exists {
		m.order = append(m.order, e.ID)
	}
	m.entries[e.ID] = e
	return nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context, queue string, limit int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	var out []Entry
	for _, id := range m.order {
		e := m.entries[id]
		if queue != "" && e.Queue != queue {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, id string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return Entry{}, ErrStoreClosed
	}

	e, ok := m.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

// Delete implements Store.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	if _, ok := m.entries[id]; !ok {
		return nil
	}
	delete(m.entries, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// Count implements Store.
func (m *MemoryStore) Count(_ context.Context, queue string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrStoreClosed
	}

	if queue == "" {
		return len(m.entries), nil
	}
	n := 0
	for _, e := range m.entries {
		if e.Queue == queue {
			n++
		}
	}
	return n, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
