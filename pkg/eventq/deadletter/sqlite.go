package deadletter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/randalmurphal/eventq/pkg/eventq"
)

// SQLiteStore persists dead letters to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens (or creates) a dead-letter database.
// The path should be a file path (e.g., "./deadletters.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared and
	// serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS dead_letters (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			queue TEXT NOT NULL,
			job_key TEXT NOT NULL,
			job_id TEXT NOT NULL,
			payload BLOB NOT NULL,
			error TEXT NOT NULL,
			attempts INTEGER NOT NULL,
			dropped_at TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_dead_letters_queue
		ON dead_letters(queue)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Drop implements eventq.DropSink.
func (s *SQLiteStore) Drop(ctx context.Context, d eventq.Dropped) error {
	e, err := EntryFrom(d)
	if err != nil {
		return err
	}
	return s.Put(ctx, e)
}

// Put implements Store.
func (s *SQLiteStore) Put(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dead_letters (id, queue, job_key, job_id, payload, error, attempts, dropped_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			payload = excluded.payload,
			error = excluded.error,
			attempts = excluded.attempts,
			dropped_at = excluded.dropped_at
	`, e.ID, e.Queue, e.Key, e.JobID, []byte(e.Payload), e.Error, e.Attempts,
		e.DroppedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save dead letter: %w", err)
	}
	return nil
}

const selectEntry = `SELECT id, queue, job_key, job_id, payload, error, attempts, dropped_at FROM dead_letters`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e         Entry
		payload   []byte
		droppedAt string
	)
	if err := row.Scan(&e.ID, &e.Queue, &e.Key, &e.JobID, &payload, &e.Error, &e.Attempts, &droppedAt); err != nil {
		return Entry{}, err
	}
	e.Payload = payload
	e.DroppedAt, _ = time.Parse(time.RFC3339Nano, droppedAt)
	return e, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, queue string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, selectEntry+`
		WHERE ? = '' OR queue = ?
		ORDER BY seq
		LIMIT ?
	`, queue, queue, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dead letters: %w", err)
	}

	return entries, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Entry{}, ErrStoreClosed
	}

	e, err := scanEntry(s.db.QueryRowContext(ctx, selectEntry+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("load dead letter: %w", err)
	}
	return e, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM dead_letters WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete dead letter: %w", err)
	}
	return nil
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context, queue string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM dead_letters WHERE ? = '' OR queue = ?
	`, queue, queue).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count dead letters: %w", err)
	}
	return n, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}
