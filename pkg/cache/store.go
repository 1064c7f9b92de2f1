package cache

import (
	"context"
	"errors"

	"github.com/Sternrassler/querygen/pkg/product"
)

var (
	// ErrCacheMiss indicates no entry exists for the fingerprint
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Store is a durable fingerprint to CacheEntry mapping shared by all
// service instances.
type Store interface {
	// Get returns the entry for fp, or ErrCacheMiss. Freshness is decided by
	// the caller.
	Get(ctx context.Context, fp product.Fingerprint) (*CacheEntry, error)

	// PutIfAbsentOrNewer atomically stores entry when it supersedes the
	// current one (see Supersedes). It returns whether entry was stored and
	// the entry visible after the write; when stored is false, visible is the
	// winner the caller should adopt.
	PutIfAbsentOrNewer(ctx context.Context, entry *CacheEntry) (stored bool, visible *CacheEntry, err error)

	// Delete removes the entry for fp. Deleting a missing entry is not an error.
	Delete(ctx context.Context, fp product.Fingerprint) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error
}
