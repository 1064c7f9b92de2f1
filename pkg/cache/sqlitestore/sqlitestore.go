// Package sqlitestore implements cache.Store on an embedded SQLite database.
// It backs single-node deployments and offline catalog precompute runs.
package sqlitestore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Sternrassler/querygen/pkg/cache"
	"github.com/Sternrassler/querygen/pkg/product"
)

// Schema is the bootstrap DDL for the generated_queries table.
//
//go:embed schema.sql
var Schema string

const backend = "sqlite"

const (
	getEntrySQL = `SELECT fingerprint, queries, generated_at, generator_version, expires_at, model
		FROM generated_queries WHERE fingerprint = ?`

	// Timestamps are unix nanoseconds; expires_at 0 means no age limit.
	putEntrySQL = `INSERT INTO generated_queries
			(fingerprint, queries, generated_at, generator_version, expires_at, model)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (fingerprint) DO UPDATE SET
			queries = excluded.queries,
			generated_at = excluded.generated_at,
			generator_version = excluded.generator_version,
			expires_at = excluded.expires_at,
			model = excluded.model
		WHERE generated_queries.generator_version < excluded.generator_version
			OR (generated_queries.generator_version = excluded.generator_version
				AND generated_queries.expires_at > 0
				AND excluded.generated_at >= generated_queries.expires_at)`

	deleteEntrySQL = `DELETE FROM generated_queries WHERE fingerprint = ?`
)

var _ cache.Store = (*Store)(nil)

type entryRow struct {
	Fingerprint      string `db:"fingerprint"`
	Queries          string `db:"queries"`
	GeneratedAt      int64  `db:"generated_at"`
	GeneratorVersion int64  `db:"generator_version"`
	ExpiresAt        int64  `db:"expires_at"`
	Model            string `db:"model"`
}

// Store implements cache.Store backed by SQLite.
type Store struct {
	db *sqlx.DB
}

// Open opens (or creates) the database at path and applies Schema.
// Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("connect sqlite %q: %w", path, err)
	}
	// SQLite serializes writers; a single connection also keeps an
	// in-memory database alive and shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get implements cache.Store.
func (s *Store) Get(ctx context.Context, fp product.Fingerprint) (*cache.CacheEntry, error) {
	entry, err := s.get(ctx, fp)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			cache.CacheMisses.WithLabelValues(backend).Inc()
		} else {
			cache.CacheErrors.WithLabelValues(backend, "get").Inc()
		}
		return nil, err
	}
	cache.CacheHits.WithLabelValues(backend).Inc()
	return entry, nil
}

func (s *Store) get(ctx context.Context, fp product.Fingerprint) (*cache.CacheEntry, error) {
	var row entryRow
	if err := s.db.GetContext(ctx, &row, getEntrySQL, string(fp)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cache.ErrCacheMiss
		}
		return nil, fmt.Errorf("get entry %q: %w", fp, err)
	}
	return row.toEntry()
}

// PutIfAbsentOrNewer implements cache.Store.
func (s *Store) PutIfAbsentOrNewer(ctx context.Context, entry *cache.CacheEntry) (bool, *cache.CacheEntry, error) {
	if entry == nil {
		return false, nil, fmt.Errorf("cache entry cannot be nil")
	}
	if err := entry.Validate(); err != nil {
		cache.CacheErrors.WithLabelValues(backend, "put").Inc()
		return false, nil, err
	}

	queries, err := json.Marshal(entry.Queries)
	if err != nil {
		cache.CacheErrors.WithLabelValues(backend, "put").Inc()
		return false, nil, fmt.Errorf("marshal queries: %w", err)
	}

	var expiresAt int64
	if !entry.ExpiresAt.IsZero() {
		expiresAt = entry.ExpiresAt.UnixNano()
	}

	res, err := s.db.ExecContext(ctx, putEntrySQL,
		string(entry.Fingerprint),
		string(queries),
		entry.GeneratedAt.UnixNano(),
		entry.GeneratorVersion,
		expiresAt,
		entry.Model,
	)
	if err != nil {
		cache.CacheErrors.WithLabelValues(backend, "put").Inc()
		return false, nil, fmt.Errorf("put entry %q: %w", entry.Fingerprint, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		cache.CacheErrors.WithLabelValues(backend, "put").Inc()
		return false, nil, fmt.Errorf("put entry %q: %w", entry.Fingerprint, err)
	}
	if affected > 0 {
		cache.CacheWrites.WithLabelValues(backend, cache.WriteStored).Inc()
		stored := *entry
		return true, &stored, nil
	}

	visible, err := s.get(ctx, entry.Fingerprint)
	if err != nil {
		cache.CacheErrors.WithLabelValues(backend, "put").Inc()
		return false, nil, fmt.Errorf("read winning entry %q: %w", entry.Fingerprint, err)
	}
	cache.CacheWrites.WithLabelValues(backend, cache.WriteLost).Inc()
	return false, visible, nil
}

// Delete implements cache.Store.
func (s *Store) Delete(ctx context.Context, fp product.Fingerprint) error {
	if _, err := s.db.ExecContext(ctx, deleteEntrySQL, string(fp)); err != nil {
		cache.CacheErrors.WithLabelValues(backend, "delete").Inc()
		return fmt.Errorf("delete entry %q: %w", fp, err)
	}
	return nil
}

// Ping implements cache.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM generated_queries`); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

func (r entryRow) toEntry() (*cache.CacheEntry, error) {
	e := &cache.CacheEntry{
		Fingerprint:      product.Fingerprint(r.Fingerprint),
		GeneratedAt:      time.Unix(0, r.GeneratedAt).UTC(),
		GeneratorVersion: r.GeneratorVersion,
		Model:            r.Model,
	}
	if r.ExpiresAt > 0 {
		e.ExpiresAt = time.Unix(0, r.ExpiresAt).UTC()
	}
	if err := json.Unmarshal([]byte(r.Queries), &e.Queries); err != nil {
		return nil, fmt.Errorf("%w: %v", cache.ErrInvalidEntry, err)
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}
