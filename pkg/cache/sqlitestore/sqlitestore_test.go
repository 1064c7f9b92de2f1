package sqlitestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/querygen/pkg/cache"
	"github.com/Sternrassler/querygen/pkg/cache/storetest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "queries.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) cache.Store {
		return openTestStore(t)
	})
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queries.db")
	ctx := context.Background()

	store, err := Open(path)
	require.NoError(t, err)
	_, _, err = store.PutIfAbsentOrNewer(ctx, storetest.Entry("fp-persist", 1, time.Now(), 0))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "fp-persist")
	require.NoError(t, err)
	assert.Len(t, got.Queries, 2)

	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_CorruptedRow(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := store.db.ExecContext(ctx,
		`INSERT INTO generated_queries (fingerprint, queries, generated_at, generator_version) VALUES (?, ?, ?, ?)`,
		"fp-bad", "{not json", time.Now().UnixNano(), 1)
	require.NoError(t, err)

	_, err = store.Get(ctx, "fp-bad")
	assert.True(t, errors.Is(err, cache.ErrInvalidEntry), "got %v", err)
}

func TestStore_InMemory(t *testing.T) {
	store, err := Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	stored, _, err := store.PutIfAbsentOrNewer(ctx, storetest.Entry("fp-mem", 1, time.Now(), 0))
	require.NoError(t, err)
	assert.True(t, stored)

	_, err = store.Get(ctx, "fp-mem")
	assert.NoError(t, err)
}
