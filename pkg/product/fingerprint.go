package product

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// fingerprintScheme is mixed into every fingerprint. Changing the canonical
// encoding below requires bumping it.
const fingerprintScheme = "fp2"

// Fingerprint identifies the generation-relevant content of a product.
type Fingerprint string

// priceBandEdges are the upper bounds (exclusive) of each price band.
var priceBandEdges = []int64{10, 25, 50, 75, 100, 150, 200, 300, 500, 1000}

// Fingerprint returns the content fingerprint of p.
//
// The ID is excluded so that the same content listed under two IDs shares
// cached queries. Price and rating participate through their bands, so a
// small price edit that stays within a band keeps the fingerprint.
func (p Product) Fingerprint() Fingerprint {
	fields := []string{
		fingerprintScheme,
		"title=" + foldText(p.Title),
		"description=" + foldText(p.Description),
		"material=" + foldText(p.Material),
		"size=" + foldText(p.Size),
		"price=" + PriceBand(p.Price),
		"rating=" + RatingBand(p.Rating),
		"vendor=" + foldText(p.Vendor),
		"type=" + foldText(p.ProductType),
		"tags=" + foldTags(p.Tags),
	}

	sum := sha256.Sum256([]byte(strings.Join(fields, "\n")))
	return Fingerprint(hex.EncodeToString(sum[:]))
}

// PriceBand returns the band label for a price, or "" when unknown.
func PriceBand(price *decimal.Decimal) string {
	if price == nil {
		return ""
	}
	lower := int64(0)
	for _, edge := range priceBandEdges {
		if price.LessThan(decimal.NewFromInt(edge)) {
			return fmt.Sprintf("%d-%d", lower, edge)
		}
		lower = edge
	}
	return fmt.Sprintf("%d+", lower)
}

// RatingBand rounds a rating to the nearest half star, or "" when unknown.
func RatingBand(rating *float64) string {
	if rating == nil {
		return ""
	}
	return fmt.Sprintf("%.1f", math.Round(*rating*2)/2)
}

func foldText(s string) string {
	return strings.ToLower(NormalizeText(s))
}

func foldTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	set := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		if t := foldText(tag); t != "" {
			set[t] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)

	// Length prefixes keep tags that contain the separator distinct.
	var b strings.Builder
	for _, t := range out {
		fmt.Fprintf(&b, "%d:%s;", len(t), t)
	}
	return b.String()
}
