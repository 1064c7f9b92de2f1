package catalog

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	pgzip "github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCatalog = `{"products":[
	{"id":1,"title":"Linen Shirt","vendor":"Acme","variants":[{"price":"39.00"}]},
	{"id":"2","title":"Wool Scarf","tags":["winter"]}
]}`

func gzipBytes(t *testing.T, data string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := pgzip.NewWriter(&buf)
	_, err := gz.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		wantIDs []string
		wantErr error
	}{
		{name: "object", input: []byte(sampleCatalog), wantIDs: []string{"1", "2"}},
		{name: "bare array", input: []byte(` [{"id":7,"title":"Hat"}]`), wantIDs: []string{"7"}},
		{name: "gzip", input: gzipBytes(t, sampleCatalog), wantIDs: []string{"1", "2"}},
		{name: "empty input", input: []byte("  \n"), wantErr: ErrNoProducts},
		{name: "empty list", input: []byte(`{"products":[]}`), wantErr: ErrNoProducts},
		{name: "missing products key", input: []byte(`{"items":[{"id":1}]}`), wantErr: ErrNoProducts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(bytes.NewReader(tt.input))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			ids := make([]string, len(got))
			for i, p := range got {
				ids[i] = string(p.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode(strings.NewReader(`{"products":[{"id":1,`))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json.gz")
	require.NoError(t, os.WriteFile(path, gzipBytes(t, sampleCatalog), 0o600))

	got, err := Load(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Wool Scarf", got[1].Title)
	assert.Equal(t, []string{"winter"}, got[1].Tags)

	_, err = Load(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
