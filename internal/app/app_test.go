package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/querygen/internal/config"
	"github.com/Sternrassler/querygen/internal/testutil"
	"github.com/Sternrassler/querygen/pkg/cache"
	"github.com/Sternrassler/querygen/pkg/cache/sqlitestore"
	"github.com/Sternrassler/querygen/pkg/orchestrator"
	"github.com/Sternrassler/querygen/pkg/product"
)

func testConfig(t *testing.T, mock *testutil.MockLLM) *config.Config {
	t.Helper()
	cfg, err := config.LoadWith(config.LoadOptions{Files: []string{}, DotEnv: []string{}, SkipFlags: true})
	require.NoError(t, err)
	cfg.Store.Backend = config.BackendMemory
	cfg.LLM.TrackRateLimit = false
	cfg.LLM.RequestsPerSecond = 0
	if mock != nil {
		cfg.LLM.BaseURL = mock.URL()
		cfg.LLM.APIKey = "test-key"
	}
	return cfg
}

func TestNew_MemoryEndToEnd(t *testing.T) {
	mock := testutil.NewMockLLM()
	defer mock.Close()

	a, err := New(context.Background(), testConfig(t, mock), zerolog.Nop())
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &cache.MemoryStore{}, a.Store)
	assert.Nil(t, a.Redis)

	products := []product.Product{{ID: "p1", Title: "Blue Cotton Shirt", Material: "cotton"}}
	first, err := a.Orchestrator.Process(context.Background(), products)
	require.NoError(t, err)
	require.True(t, first.Results[0].OK(), "%v", first.Results[0].Err)
	assert.Equal(t, orchestrator.SourceGenerated, first.Results[0].Source)

	second, err := a.Orchestrator.Process(context.Background(), products)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.SourceCache, second.Results[0].Source)
	assert.Equal(t, first.Results[0].Queries, second.Results[0].Queries)
	assert.Equal(t, 1, mock.GetRequestCount())
}

func TestNew_TrackerWithoutRedis(t *testing.T) {
	cfg := testConfig(t, nil)
	cfg.LLM.TrackRateLimit = true
	cfg.Store.RedisURL = "redis://127.0.0.1:1/0"

	a, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err, "an unreachable redis only disables tracking")
	defer a.Close()
	assert.Nil(t, a.Redis)
}

func TestNew_RedisBackendUnavailable(t *testing.T) {
	cfg := testConfig(t, nil)
	cfg.Store.Backend = config.BackendRedis
	cfg.Store.RedisURL = "redis://127.0.0.1:1/0"

	_, err := New(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	t.Run("sqlite", func(t *testing.T) {
		store, closeFn, err := OpenStore(ctx, config.StoreConfig{
			Backend:    config.BackendSQLite,
			SQLitePath: filepath.Join(t.TempDir(), "querygen.db"),
		}, nil)
		require.NoError(t, err)
		require.NotNil(t, closeFn)
		defer closeFn()
		assert.IsType(t, &sqlitestore.Store{}, store)
		assert.NoError(t, store.Ping(ctx))
	})

	t.Run("redis without client", func(t *testing.T) {
		_, _, err := OpenStore(ctx, config.StoreConfig{Backend: config.BackendRedis}, nil)
		assert.Error(t, err)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, _, err := OpenStore(ctx, config.StoreConfig{Backend: "mongo"}, nil)
		assert.Error(t, err)
	})
}
