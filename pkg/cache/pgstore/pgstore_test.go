package pgstore

import (
	"strings"
	"testing"
)

func TestSchema(t *testing.T) {
	for _, want := range []string{"generated_queries", "fingerprint", "generator_version", "expires_at"} {
		if !strings.Contains(Schema, want) {
			t.Errorf("Schema missing %q", want)
		}
	}
}

func TestPutEntrySQL_GuardMatchesSupersedes(t *testing.T) {
	for _, want := range []string{
		"ON CONFLICT (fingerprint) DO UPDATE",
		"generated_queries.generator_version < EXCLUDED.generator_version",
		"EXCLUDED.generated_at >= generated_queries.expires_at",
		"RETURNING fingerprint",
	} {
		if !strings.Contains(putEntrySQL, want) {
			t.Errorf("putEntrySQL missing %q", want)
		}
	}
}
