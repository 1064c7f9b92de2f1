// Package pgstore implements cache.Store on PostgreSQL.
package pgstore

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Sternrassler/querygen/pkg/cache"
	"github.com/Sternrassler/querygen/pkg/product"
)

// Schema is the bootstrap DDL for the generated_queries table.
//
//go:embed schema.sql
var Schema string

const backend = "postgres"

const (
	getEntrySQL = `SELECT fingerprint, queries, generated_at, generator_version, expires_at, model
		FROM generated_queries WHERE fingerprint = $1`

	// The WHERE guard mirrors cache.Supersedes; ON CONFLICT makes the
	// compare-and-set atomic under concurrent writers.
	putEntrySQL = `INSERT INTO generated_queries
			(fingerprint, queries, generated_at, generator_version, expires_at, model)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (fingerprint) DO UPDATE SET
			queries = EXCLUDED.queries,
			generated_at = EXCLUDED.generated_at,
			generator_version = EXCLUDED.generator_version,
			expires_at = EXCLUDED.expires_at,
			model = EXCLUDED.model
		WHERE generated_queries.generator_version < EXCLUDED.generator_version
			OR (generated_queries.generator_version = EXCLUDED.generator_version
				AND generated_queries.expires_at IS NOT NULL
				AND EXCLUDED.generated_at >= generated_queries.expires_at)
		RETURNING fingerprint`

	deleteEntrySQL = `DELETE FROM generated_queries WHERE fingerprint = $1`
)

var _ cache.Store = (*Store)(nil)

// Store implements cache.Store backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New returns a Store that uses the given pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open connects to databaseURL and applies Schema.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return New(pool), nil
}

// Migrate executes the embedded DDL schema against the pool.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
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
	rows, err := s.pool.Query(ctx, getEntrySQL, string(fp))
	if err != nil {
		return nil, fmt.Errorf("getting entry %q: %w", fp, err)
	}

	entry, err := pgx.CollectExactlyOneRow(rows, scanEntry)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cache.ErrCacheMiss
		}
		return nil, fmt.Errorf("getting entry %q: %w", fp, err)
	}
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	return &entry, nil
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

	var expiresAt *time.Time
	if !entry.ExpiresAt.IsZero() {
		expiresAt = &entry.ExpiresAt
	}

	var fp string
	err := s.pool.QueryRow(ctx, putEntrySQL,
		string(entry.Fingerprint),
		entry.Queries,
		entry.GeneratedAt,
		entry.GeneratorVersion,
		expiresAt,
		entry.Model,
	).Scan(&fp)
	switch {
	case err == nil:
		cache.CacheWrites.WithLabelValues(backend, cache.WriteStored).Inc()
		stored := *entry
		return true, &stored, nil
	case !errors.Is(err, pgx.ErrNoRows):
		cache.CacheErrors.WithLabelValues(backend, "put").Inc()
		return false, nil, fmt.Errorf("putting entry %q: %w", entry.Fingerprint, err)
	}

	// The guard rejected the candidate; report the row that won.
	visible, err := s.get(ctx, entry.Fingerprint)
	if err != nil {
		cache.CacheErrors.WithLabelValues(backend, "put").Inc()
		return false, nil, fmt.Errorf("reading winning entry %q: %w", entry.Fingerprint, err)
	}
	cache.CacheWrites.WithLabelValues(backend, cache.WriteLost).Inc()
	return false, visible, nil
}

// Delete implements cache.Store.
func (s *Store) Delete(ctx context.Context, fp product.Fingerprint) error {
	if _, err := s.pool.Exec(ctx, deleteEntrySQL, string(fp)); err != nil {
		cache.CacheErrors.WithLabelValues(backend, "delete").Inc()
		return fmt.Errorf("deleting entry %q: %w", fp, err)
	}
	return nil
}

// Ping implements cache.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func scanEntry(row pgx.CollectableRow) (cache.CacheEntry, error) {
	var (
		e         cache.CacheEntry
		fp        string
		expiresAt *time.Time
	)
	err := row.Scan(&fp, &e.Queries, &e.GeneratedAt, &e.GeneratorVersion, &expiresAt, &e.Model)
	if err != nil {
		return cache.CacheEntry{}, fmt.Errorf("%w: %v", cache.ErrInvalidEntry, err)
	}
	e.Fingerprint = product.Fingerprint(fp)
	if expiresAt != nil {
		e.ExpiresAt = *expiresAt
	}
	return e, nil
}
