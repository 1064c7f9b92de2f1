// Package cache stores generated queries keyed by product content
// fingerprint.
//
// All backends implement the same conditional write: an entry is only
// replaced by a candidate that supersedes it (see Supersedes). This makes
// concurrent generations for the same fingerprint converge on one visible
// entry, even across service instances.
//
// Backends:
//
//   - MemoryStore: in-process, for tests and local development
//   - RedisStore: default, atomic via a Lua script
//   - pgstore.Store: PostgreSQL upsert with a WHERE guard
//   - sqlitestore.Store: embedded SQLite, used for offline precompute
//
// # Basic Usage
//
//	redisClient := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	store := cache.NewRedisStore(redisClient, "")
//
//	entry, err := store.Get(ctx, p.Fingerprint())
//	if errors.Is(err, cache.ErrCacheMiss) || !entry.Fresh(version, time.Now()) {
//		// generate, then
//		stored, visible, err := store.PutIfAbsentOrNewer(ctx, candidate)
//	}
//
// # Metrics
//
//   - querygen_store_hits_total{backend}
//   - querygen_store_misses_total{backend}
//   - querygen_store_writes_total{backend,result}
//   - querygen_store_errors_total{backend,operation}
package cache
