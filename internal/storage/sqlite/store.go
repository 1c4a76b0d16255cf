// Package sqlite implements the cache store on an embedded SQLite
// database. Synchronous saves upsert transactionally; with async writes
// enabled, saves land in a pending buffer drained by a single writer
// goroutine, and bulk deletes invalidate buffered entries by bumping an
// epoch instead of scanning the buffer.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/hotdice/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/hotdice/internal/storage"
	"github.com/louisbranch/hotdice/internal/storage/sqlite/migrations"

	_ "modernc.org/sqlite"
)

// maxQueryParams bounds the parameters per IN clause; SQLite's default
// variable limit is 999.
const maxQueryParams = 900

const upsertSQL = `
INSERT INTO cache_entries (key, kind, payload, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
    kind = excluded.kind,
    payload = excluded.payload,
    updated_at = excluded.updated_at`

// Store is a SQLite-backed cache store.
type Store struct {
	sqlDB *sql.DB

	// dbMu serializes writes so a writer drain and a bulk delete cannot
	// interleave; the pending buffer has its own lock inside pend.
	dbMu sync.Mutex

	async         bool
	maxPending    int
	flushInterval time.Duration

	pend pendingState

	signal chan struct{}
	done   chan struct{}
	joined chan struct{}
}

// Option configures a store at open time.
type Option func(*Store)

// WithAsyncWrites enables the write-behind buffer. maxPending bounds the
// buffer; once full, additional pilot entries are dropped and counted.
// flushInterval is the writer's idle wake-up period.
func WithAsyncWrites(maxPending int, flushInterval time.Duration) Option {
	return func(s *Store) {
		s.async = true
		s.maxPending = maxPending
		s.flushInterval = flushInterval
	}
}

// Open opens (or creates) the cache database at path and applies the
// embedded migrations.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: storage path is required", storage.ErrUnavailable)
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&cache=shared"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite db: %v", storage.ErrUnavailable, err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: ping sqlite db: %v", storage.ErrUnavailable, err)
	}
	if _, err := sqlDB.Exec("PRAGMA temp_store=MEMORY"); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: pragma temp_store: %v", storage.ErrUnavailable, err)
	}

	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, "."); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: run migrations: %v", storage.ErrUnavailable, err)
	}

	s := &Store{
		sqlDB:         sqlDB,
		flushInterval: time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.pend.entries = make(map[string]pendingEntry)

	if s.async {
		if s.maxPending <= 0 {
			s.maxPending = 10000
		}
		if s.flushInterval <= 0 {
			s.flushInterval = time.Second
		}
		s.signal = make(chan struct{}, 1)
		s.done = make(chan struct{})
		s.joined = make(chan struct{})
		go s.writerLoop()
	}

	return s, nil
}

// Load returns the stored payloads for the requested keys. Keys are
// deduplicated and queried in batches; with async writes enabled the
// result is overlaid with pending entries from the current epoch.
func (s *Store) Load(ctx context.Context, keys []string) (map[string][]byte, error) {
	unique := dedupe(keys)
	out := make(map[string][]byte, len(unique))

	for start := 0; start < len(unique); start += maxQueryParams {
		end := start + maxQueryParams
		if end > len(unique) {
			end = len(unique)
		}
		if err := s.loadBatch(ctx, unique[start:end], out); err != nil {
			return nil, err
		}
	}

	if s.async {
		s.pend.overlay(unique, out)
	}
	return out, nil
}

func (s *Store) loadBatch(ctx context.Context, keys []string, out map[string][]byte) error {
	if len(keys) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	query := "SELECT key, payload FROM cache_entries WHERE key IN (" + placeholders + ")"

	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: load batch: %v", storage.ErrUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var payload []byte
		if err := rows.Scan(&key, &payload); err != nil {
			return fmt.Errorf("%w: scan entry: %v", storage.ErrUnavailable, err)
		}
		out[key] = payload
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: read entries: %v", storage.ErrUnavailable, err)
	}
	return nil
}

// Save persists entries. Synchronous stores upsert in one transaction;
// async stores buffer and signal the writer. When the buffer is full,
// pilot entries are dropped (and counted) rather than blocking the
// evaluation hot path.
func (s *Store) Save(ctx context.Context, entries []storage.Entry) error {
	for _, e := range entries {
		if !e.Kind.Valid() {
			return fmt.Errorf("storage: unknown entry kind %q", e.Kind)
		}
	}
	if !s.async {
		s.dbMu.Lock()
		defer s.dbMu.Unlock()
		return s.upsert(ctx, entries)
	}

	if err := s.pend.buffer(entries, s.maxPending); err != nil {
		return err
	}
	s.wake()
	return nil
}

func (s *Store) upsert(ctx context.Context, entries []storage.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", storage.ErrUnavailable, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return fmt.Errorf("%w: prepare upsert: %v", storage.ErrUnavailable, err)
	}
	defer stmt.Close()

	for _, e := range entries {
		updated := e.UpdatedAt
		if updated.IsZero() {
			updated = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, e.Key, string(e.Kind), e.Payload, updated.UTC().Unix()); err != nil {
			return fmt.Errorf("%w: upsert %s: %v", storage.ErrUnavailable, e.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", storage.ErrUnavailable, err)
	}
	return nil
}

// Delete removes the given keys. Buffered writes are invalidated first
// so a pending entry cannot resurrect a deleted key.
func (s *Store) Delete(ctx context.Context, keys []string) error {
	s.pend.invalidate()
	s.dbMu.Lock()
	defer s.dbMu.Unlock()

	unique := dedupe(keys)
	for start := 0; start < len(unique); start += maxQueryParams {
		end := start + maxQueryParams
		if end > len(unique) {
			end = len(unique)
		}
		batch := unique[start:end]
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",")
		args := make([]any, len(batch))
		for i, k := range batch {
			args[i] = k
		}
		if _, err := s.sqlDB.ExecContext(ctx,
			"DELETE FROM cache_entries WHERE key IN ("+placeholders+")", args...); err != nil {
			return fmt.Errorf("%w: delete: %v", storage.ErrUnavailable, err)
		}
	}
	return nil
}

// ClearKind removes every entry of one kind.
func (s *Store) ClearKind(ctx context.Context, kind storage.Kind) error {
	if !kind.Valid() {
		return fmt.Errorf("storage: unknown entry kind %q", kind)
	}
	s.pend.invalidate()
	s.dbMu.Lock()
	defer s.dbMu.Unlock()
	if _, err := s.sqlDB.ExecContext(ctx, "DELETE FROM cache_entries WHERE kind = ?", string(kind)); err != nil {
		return fmt.Errorf("%w: clear kind %s: %v", storage.ErrUnavailable, kind, err)
	}
	return nil
}

// ClearAll empties the store.
func (s *Store) ClearAll(ctx context.Context) error {
	s.pend.invalidate()
	s.dbMu.Lock()
	defer s.dbMu.Unlock()
	if _, err := s.sqlDB.ExecContext(ctx, "DELETE FROM cache_entries"); err != nil {
		return fmt.Errorf("%w: clear all: %v", storage.ErrUnavailable, err)
	}
	return nil
}

// Count returns the number of persisted entries, optionally filtered by
// kind. It does not include pending writes.
func (s *Store) Count(ctx context.Context, kind storage.Kind) (int64, error) {
	var n int64
	var err error
	if kind == "" {
		err = s.sqlDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM cache_entries").Scan(&n)
	} else {
		err = s.sqlDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM cache_entries WHERE kind = ?", string(kind)).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: count: %v", storage.ErrUnavailable, err)
	}
	return n, nil
}

// Close stops the writer, waiting at most one second for its final
// drain, and closes the database. It neither refuses new saves first nor
// waits for the buffer to empty. Prefer Shutdown on stores opened with
// async writes.
//
// Close is nil-safe so callers can defer it in all startup paths.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	if s.async {
		s.stopWriter(time.Second)
	}
	return s.sqlDB.Close()
}

func dedupe(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
