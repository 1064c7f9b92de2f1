package cache

import (
	"fmt"
	"time"

	"github.com/Sternrassler/querygen/pkg/product"
	"github.com/Sternrassler/querygen/pkg/query"
)

// CacheEntry is a stored generation result. Entries are replaced, never
// mutated.
type CacheEntry struct {
	// Fingerprint is the content fingerprint the queries were generated for
	Fingerprint product.Fingerprint `json:"fingerprint"`

	// Queries are the generated queries
	Queries []query.GeneratedQuery `json:"queries"`

	// GeneratedAt is when the generator produced the queries
	GeneratedAt time.Time `json:"generated_at"`

	// GeneratorVersion identifies the model/prompt/parser combination
	GeneratorVersion int64 `json:"generator_version"`

	// ExpiresAt is the optional age limit. Zero means the entry never expires.
	ExpiresAt time.Time `json:"expires_at,omitempty"`

	// Model is the upstream model name, informational only
	Model string `json:"model,omitempty"`
}

// IsExpired reports whether the entry had reached its age limit at now.
func (e *CacheEntry) IsExpired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// TTL returns the time until expiration.
// Returns 0 for entries without an age limit or already expired ones.
func (e *CacheEntry) TTL() time.Duration {
	if e.ExpiresAt.IsZero() {
		return 0
	}
	ttl := time.Until(e.ExpiresAt)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Fresh reports whether the entry can be served without regeneration: it was
// produced by the current (or a newer) generator and has not aged out.
func (e *CacheEntry) Fresh(currentVersion int64, now time.Time) bool {
	return e.GeneratorVersion >= currentVersion && !e.IsExpired(now)
}

// Validate checks that an entry is complete enough to be stored or served.
func (e *CacheEntry) Validate() error {
	if e.Fingerprint == "" {
		return fmt.Errorf("%w: missing fingerprint", ErrInvalidEntry)
	}
	if len(e.Queries) == 0 {
		return fmt.Errorf("%w: no queries", ErrInvalidEntry)
	}
	for i, q := range e.Queries {
		if err := q.Validate(); err != nil {
			return fmt.Errorf("%w: query %d: %v", ErrInvalidEntry, i, err)
		}
	}
	if e.GeneratedAt.IsZero() {
		return fmt.Errorf("%w: missing generated_at", ErrInvalidEntry)
	}
	return nil
}

// Supersedes reports whether candidate must replace existing under the
// conditional write rule. A nil existing entry is always superseded.
//
// Equal versions only supersede when the existing entry had already expired
// at the moment the candidate was generated; two fresh entries of the same
// version keep the first writer.
func Supersedes(existing, candidate *CacheEntry) bool {
	if existing == nil {
		return true
	}
	if existing.GeneratorVersion != candidate.GeneratorVersion {
		return existing.GeneratorVersion < candidate.GeneratorVersion
	}
	return existing.IsExpired(candidate.GeneratedAt)
}
