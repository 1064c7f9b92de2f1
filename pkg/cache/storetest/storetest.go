// Package storetest provides a conformance suite for cache.Store
// implementations.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/querygen/pkg/cache"
	"github.com/Sternrassler/querygen/pkg/product"
	"github.com/Sternrassler/querygen/pkg/query"
)

// Entry builds a valid entry for fp. A positive maxAge sets ExpiresAt.
func Entry(fp string, version int64, generatedAt time.Time, maxAge time.Duration) *cache.CacheEntry {
	e := &cache.CacheEntry{
		Fingerprint: product.Fingerprint(fp),
		Queries: []query.GeneratedQuery{
			{Text: "linen shirt under 50", Style: query.StyleShort, Bucket: query.BucketPrice},
			{Text: "breathable shirt for hot days", Style: query.StyleNatural, Bucket: query.BucketMaterial},
		},
		GeneratedAt:      generatedAt,
		GeneratorVersion: version,
		Model:            "test-model",
	}
	if maxAge > 0 {
		e.ExpiresAt = generatedAt.Add(maxAge)
	}
	return e
}

// Run exercises the Store contract. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) cache.Store) {
	// Millisecond precision round trips exactly on every backend.
	t0 := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("miss", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, cache.ErrCacheMiss)
	})

	t.Run("round trip", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		want := Entry("fp-rt", 3, t0, time.Hour)

		stored, visible, err := store.PutIfAbsentOrNewer(ctx, want)
		require.NoError(t, err)
		assert.True(t, stored)
		assert.Equal(t, int64(3), visible.GeneratorVersion)

		got, err := store.Get(ctx, "fp-rt")
		require.NoError(t, err)
		assert.Equal(t, want.Queries, got.Queries)
		assert.Equal(t, want.GeneratorVersion, got.GeneratorVersion)
		assert.True(t, want.GeneratedAt.Equal(got.GeneratedAt), "generated_at %v != %v", got.GeneratedAt, want.GeneratedAt)
		assert.True(t, want.ExpiresAt.Equal(got.ExpiresAt), "expires_at %v != %v", got.ExpiresAt, want.ExpiresAt)
		assert.Equal(t, want.Model, got.Model)
	})

	t.Run("no age limit round trips as zero", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, _, err := store.PutIfAbsentOrNewer(ctx, Entry("fp-noexp", 1, t0, 0))
		require.NoError(t, err)

		got, err := store.Get(ctx, "fp-noexp")
		require.NoError(t, err)
		assert.True(t, got.ExpiresAt.IsZero())
	})

	t.Run("same version keeps first writer", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		first := Entry("fp-same", 1, t0, 0)
		first.Model = "first"
		_, _, err := store.PutIfAbsentOrNewer(ctx, first)
		require.NoError(t, err)

		second := Entry("fp-same", 1, t0.Add(time.Minute), 0)
		second.Model = "second"
		stored, visible, err := store.PutIfAbsentOrNewer(ctx, second)
		require.NoError(t, err)
		assert.False(t, stored)
		assert.Equal(t, "first", visible.Model)
	})

	t.Run("version ordering", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, _, err := store.PutIfAbsentOrNewer(ctx, Entry("fp-ver", 1, t0, 0))
		require.NoError(t, err)

		stored, visible, err := store.PutIfAbsentOrNewer(ctx, Entry("fp-ver", 2, t0, 0))
		require.NoError(t, err)
		assert.True(t, stored)
		assert.Equal(t, int64(2), visible.GeneratorVersion)

		stored, visible, err = store.PutIfAbsentOrNewer(ctx, Entry("fp-ver", 1, t0.Add(time.Hour), 0))
		require.NoError(t, err)
		assert.False(t, stored)
		assert.Equal(t, int64(2), visible.GeneratorVersion)
	})

	t.Run("expired entry is superseded", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, _, err := store.PutIfAbsentOrNewer(ctx, Entry("fp-exp", 1, t0.Add(-2*time.Hour), time.Hour))
		require.NoError(t, err)

		fresh := Entry("fp-exp", 1, t0, time.Hour)
		fresh.Model = "fresh"
		stored, visible, err := store.PutIfAbsentOrNewer(ctx, fresh)
		require.NoError(t, err)
		assert.True(t, stored)
		assert.Equal(t, "fresh", visible.Model)
	})

	t.Run("invalid entry rejected", func(t *testing.T) {
		store := newStore(t)
		bad := Entry("fp-bad", 1, t0, 0)
		bad.Queries = nil

		_, _, err := store.PutIfAbsentOrNewer(context.Background(), bad)
		assert.ErrorIs(t, err, cache.ErrInvalidEntry)
	})

	t.Run("concurrent writers converge", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		const writers = 8
		var (
			mu      sync.Mutex
			wg      sync.WaitGroup
			stored  int
			visible = make(map[string]struct{})
		)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				e := Entry("fp-race", 1, t0, 0)
				e.Model = fmt.Sprintf("writer-%d", i)
				ok, v, err := store.PutIfAbsentOrNewer(ctx, e)
				if err != nil {
					t.Errorf("writer %d: %v", i, err)
					return
				}
				mu.Lock()
				defer mu.Unlock()
				if ok {
					stored++
				}
				visible[v.Model] = struct{}{}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 1, stored, "exactly one writer should store")
		assert.Len(t, visible, 1, "all writers should observe the same entry")
	})

	t.Run("delete", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, _, err := store.PutIfAbsentOrNewer(ctx, Entry("fp-del", 1, t0, 0))
		require.NoError(t, err)
		require.NoError(t, store.Delete(ctx, "fp-del"))

		_, err = store.Get(ctx, "fp-del")
		assert.True(t, errors.Is(err, cache.ErrCacheMiss))
		assert.NoError(t, store.Delete(ctx, "fp-del"))
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, newStore(t).Ping(context.Background()))
	})
}
