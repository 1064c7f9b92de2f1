package catalog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/querygen/pkg/orchestrator"
	"github.com/Sternrassler/querygen/pkg/product"
	"github.com/Sternrassler/querygen/pkg/query"
)

func exportFixture() ([]product.Product, []orchestrator.ProductResult) {
	price := decimal.RequireFromString("29.99")
	products := []product.Product{
		{ID: "p1", Title: "Blue Cotton Shirt", Price: &price, Material: "cotton", Tags: []string{"summer", "casual"}},
		{ID: "p2", Title: "Mystery"},
	}
	results := []orchestrator.ProductResult{
		{
			ProductID: "p1",
			Queries: []query.GeneratedQuery{
				{Text: "blue cotton shirt", Style: query.StyleShort, Bucket: query.BucketMaterial},
				{Text: "shirt under 30 dollars", Style: query.StyleNatural, Bucket: query.BucketPrice},
			},
			Source: orchestrator.SourceGenerated,
		},
		{
			ProductID: "p2",
			Err:       &orchestrator.ProductError{Type: orchestrator.ErrorPermanent, Message: "empty output"},
		},
	}
	return products, results
}

func readLines(t *testing.T, data []byte) []map[string]any {
	t.Helper()
	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		out = append(out, rec)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestWriter_JSONLines(t *testing.T) {
	products, results := exportFixture()

	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteAll(products, results))
	require.NoError(t, w.Close())
	assert.Equal(t, 2, w.Count())

	lines := readLines(t, buf.Bytes())
	require.Len(t, lines, 2)

	assert.Equal(t, "p1", lines[0]["id"])
	assert.Equal(t, "29.99", lines[0]["price"])
	assert.Equal(t, "generated", lines[0]["source"])
	assert.Len(t, lines[0]["queries"], 2)
	assert.NotContains(t, lines[0], "error")

	assert.Equal(t, []any{}, lines[1]["queries"])
	assert.Equal(t, "permanent", lines[1]["error"].(map[string]any)["type"])
}

func TestWriter_Mismatch(t *testing.T) {
	products, results := exportFixture()
	w := NewWriter(&bytes.Buffer{})
	assert.Error(t, w.WriteAll(products, results[:1]))
}

func TestCreate_Gzip(t *testing.T) {
	products, results := exportFixture()
	path := filepath.Join(t.TempDir(), "export.jsonl.gz")

	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.WriteAll(products, results))
	require.NoError(t, w.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := pgzip.NewReader(f)
	require.NoError(t, err)
	var plain bytes.Buffer
	_, err = plain.ReadFrom(gz)
	require.NoError(t, err)

	assert.Len(t, readLines(t, plain.Bytes()), 2)
}

func TestCreate_Plain(t *testing.T) {
	products, results := exportFixture()
	path := filepath.Join(t.TempDir(), "export.jsonl")

	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(NewRecord(products[0], results[0])))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, readLines(t, data), 1)
}

func TestWritePreview(t *testing.T) {
	products, results := exportFixture()

	var out strings.Builder
	WritePreview(&out, products, results, 5)
	text := out.String()

	assert.Contains(t, text, "id: p1")
	assert.Contains(t, text, "price: 29.99")
	assert.Contains(t, text, "tags: summer, casual")
	assert.Contains(t, text, "queries: 2 (generated)")
	assert.Contains(t, text, "- natural | price | shirt under 30 dollars")
	assert.Contains(t, text, "error: permanent: empty output")

	out.Reset()
	WritePreview(&out, products, results, 1)
	assert.NotContains(t, out.String(), "p2")
}
