// Package query defines generated search queries and their style and bucket
// enumerations.
package query

import (
	"fmt"
	"strings"
)

// Style is the phrasing style of a generated query.
type Style string

const (
	// StyleShort is a keyword-style query ("blue cotton shirt").
	StyleShort Style = "short"

	// StyleNatural is a natural-language query ("comfy shirt for summer weddings").
	StyleNatural Style = "natural"
)

// Bucket is the semantic intent a query targets.
type Bucket string

const (
	BucketPrice    Bucket = "price"
	BucketOccasion Bucket = "occasion"
	BucketMaterial Bucket = "material"
	BucketFit      Bucket = "fit"
	BucketBrand    Bucket = "brand"
	BucketRating   Bucket = "rating"
)

// Styles lists every valid style.
var Styles = []Style{StyleShort, StyleNatural}

// Buckets lists every valid bucket in prompt order.
var Buckets = []Bucket{
	BucketPrice,
	BucketOccasion,
	BucketMaterial,
	BucketFit,
	BucketBrand,
	BucketRating,
}

// Valid reports whether s is a known style.
func (s Style) Valid() bool {
	switch s {
	case StyleShort, StyleNatural:
		return true
	default:
		return false
	}
}

// Valid reports whether b is a known bucket.
func (b Bucket) Valid() bool {
	switch b {
	case BucketPrice, BucketOccasion, BucketMaterial, BucketFit, BucketBrand, BucketRating:
		return true
	default:
		return false
	}
}

// GeneratedQuery is one synthetic search query for a product.
type GeneratedQuery struct {
	Text   string `json:"text"`
	Style  Style  `json:"style"`
	Bucket Bucket `json:"bucket"`
}

// Validate checks that the query has text and known enumerations.
func (q GeneratedQuery) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("query text is empty")
	}
	if !q.Style.Valid() {
		return fmt.Errorf("unknown style %q", q.Style)
	}
	if !q.Bucket.Valid() {
		return fmt.Errorf("unknown bucket %q", q.Bucket)
	}
	return nil
}

// Normalize trims the text and lower-cases style and bucket.
// It does not make invalid values valid.
func Normalize(q GeneratedQuery) GeneratedQuery {
	return GeneratedQuery{
		Text:   strings.Join(strings.Fields(q.Text), " "),
		Style:  Style(strings.ToLower(strings.TrimSpace(string(q.Style)))),
		Bucket: Bucket(strings.ToLower(strings.TrimSpace(string(q.Bucket)))),
	}
}

// Dedupe drops repeated queries, comparing text case-insensitively together
// with style and bucket. The first occurrence wins and order is preserved.
func Dedupe(queries []GeneratedQuery) []GeneratedQuery {
	type key struct {
		text   string
		style  Style
		bucket Bucket
	}

	seen := make(map[key]struct{}, len(queries))
	out := make([]GeneratedQuery, 0, len(queries))
	for _, q := range queries {
		k := key{strings.ToLower(q.Text), q.Style, q.Bucket}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, q)
	}
	return out
}

// CapPerBucket keeps at most n queries per bucket, preserving order.
func CapPerBucket(queries []GeneratedQuery, n int) []GeneratedQuery {
	if n <= 0 {
		return queries
	}
	counts := make(map[Bucket]int, len(Buckets))
	out := make([]GeneratedQuery, 0, len(queries))
	for _, q := range queries {
		if counts[q.Bucket] >= n {
			continue
		}
		counts[q.Bucket]++
		out = append(out, q)
	}
	return out
}

// GroupByBucket groups queries by bucket for presentation.
func GroupByBucket(queries []GeneratedQuery) map[Bucket][]GeneratedQuery {
	groups := make(map[Bucket][]GeneratedQuery)
	for _, q := range queries {
		groups[q.Bucket] = append(groups[q.Bucket], q)
	}
	return groups
}
