package cache

import (
	"strings"

	"github.com/Sternrassler/querygen/pkg/product"
)

// DefaultPrefix namespaces all keys written by the query generator.
const DefaultPrefix = "qgen"

// CacheKey identifies a stored generation result.
type CacheKey struct {
	// Prefix namespaces the key (e.g., per environment). Empty means DefaultPrefix.
	Prefix string

	// Fingerprint is the product content fingerprint
	Fingerprint product.Fingerprint
}

// String generates a deterministic cache key string.
// Format: prefix:queries:fingerprint
//
// Example:
//
//	qgen:queries:9f86d081884c7d65...
func (k CacheKey) String() string {
	prefix := strings.Trim(k.Prefix, ":")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + ":queries:" + string(k.Fingerprint)
}
