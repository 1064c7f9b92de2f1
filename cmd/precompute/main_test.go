package main

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/querygen/internal/config"
	"github.com/Sternrassler/querygen/internal/testutil"
)

const catalogJSON = `{"products":[
	{"id":101,"title":"Linen Shirt","body_html":"<p>Breathable</p>","vendor":"Acme","variants":[{"price":"39.00"}]},
	{"id":102,"title":"Wool Scarf","tags":["winter"]},
	{"id":103,"title":"Leather Belt"},
	{"title":"missing id"}
]}`

func precomputeConfig(t *testing.T, mock *testutil.MockLLM) *config.Config {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(dir, "catalog.json")
	require.NoError(t, os.WriteFile(input, []byte(catalogJSON), 0o600))

	cfg, err := config.LoadWith(config.LoadOptions{Files: []string{}, DotEnv: []string{}, SkipFlags: true})
	require.NoError(t, err)
	cfg.Store.Backend = config.BackendSQLite
	cfg.Store.SQLitePath = filepath.Join(dir, "querygen.db")
	cfg.LLM.BaseURL = mock.URL()
	cfg.LLM.APIKey = "test-key"
	cfg.LLM.TrackRateLimit = false
	cfg.LLM.RequestsPerSecond = 0
	cfg.Precompute.Input = input
	cfg.Precompute.PageSize = 2
	cfg.Precompute.Preview = 1
	return cfg
}

func TestRun_WarmsStoreAndExports(t *testing.T) {
	mock := testutil.NewMockLLM()
	defer mock.Close()

	cfg := precomputeConfig(t, mock)
	cfg.Precompute.Output = filepath.Join(t.TempDir(), "queries.jsonl")

	var out strings.Builder
	require.NoError(t, run(context.Background(), cfg, zerolog.Nop(), &out))

	assert.Contains(t, out.String(), "Saved 3 records")
	assert.Contains(t, out.String(), "id: 101")
	assert.NotContains(t, out.String(), "id: 102", "preview is limited")
	assert.Contains(t, out.String(), "3 products: 0 cached, 3 generated, 0 failed")
	assert.Equal(t, 3, mock.GetRequestCount())

	f, err := os.Open(cfg.Precompute.Output)
	require.NoError(t, err)
	defer f.Close()
	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec struct {
			ID      string           `json:"id"`
			Queries []map[string]any `json:"queries"`
		}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		assert.NotEmpty(t, rec.Queries)
		ids = append(ids, rec.ID)
	}
	assert.Equal(t, []string{"101", "102", "103"}, ids)

	// A second run is served entirely from the sqlite store.
	out.Reset()
	require.NoError(t, run(context.Background(), cfg, zerolog.Nop(), &out))
	assert.Contains(t, out.String(), "3 products: 3 cached, 0 generated, 0 failed")
	assert.Equal(t, 3, mock.GetRequestCount())
}

func TestRun_Limit(t *testing.T) {
	mock := testutil.NewMockLLM()
	defer mock.Close()

	cfg := precomputeConfig(t, mock)
	cfg.Precompute.Limit = 1

	var out strings.Builder
	require.NoError(t, run(context.Background(), cfg, zerolog.Nop(), &out))
	assert.Contains(t, out.String(), "1 products:")
	assert.Equal(t, 1, mock.GetRequestCount())
}

func TestRun_AllFailed(t *testing.T) {
	mock := testutil.NewMockLLM()
	defer mock.Close()
	mock.SetDefault(testutil.NewBadRequestResponse())

	cfg := precomputeConfig(t, mock)
	var out strings.Builder
	err := run(context.Background(), cfg, zerolog.Nop(), &out)
	assert.Error(t, err)
	assert.Contains(t, out.String(), "3 failed")
}

func TestRun_MissingInput(t *testing.T) {
	mock := testutil.NewMockLLM()
	defer mock.Close()

	cfg := precomputeConfig(t, mock)
	cfg.Precompute.Input = ""
	assert.Error(t, run(context.Background(), cfg, zerolog.Nop(), &strings.Builder{}))

	cfg.Precompute.Input = filepath.Join(t.TempDir(), "missing.json")
	assert.Error(t, run(context.Background(), cfg, zerolog.Nop(), &strings.Builder{}))
}
