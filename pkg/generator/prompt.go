package generator

import (
	"fmt"
	"strings"

	"github.com/Sternrassler/querygen/pkg/product"
	"github.com/Sternrassler/querygen/pkg/query"
)

// bucketHints tells the model what each bucket is about.
var bucketHints = map[query.Bucket]string{
	query.BucketPrice:    "budget, affordability or price range",
	query.BucketOccasion: "events, seasons or situations the product is used for",
	query.BucketMaterial: "fabric, material or build quality",
	query.BucketFit:      "fit, size or cut",
	query.BucketBrand:    "brand, vendor or style label",
	query.BucketRating:   "reviews, ratings or popularity",
}

const systemPrompt = "You are a helpful assistant that generates human-like e-commerce search queries. " +
	"Produce a diverse mix of short keyword-style queries and natural language queries. " +
	"Queries must be relevant to the given product and reflect realistic user behavior."

const outputContract = `Output strictly minified JSON with this structure:
{"queries":[{"text":"string","style":"short|natural","bucket":"price|occasion|material|fit|brand|rating"}]}
No explanations or extra keys.`

// productBlock renders only the fields present on p.
func productBlock(p product.Product) string {
	var b strings.Builder
	fmt.Fprintf(&b, "title: %s\n", p.Title)
	if p.Description != "" {
		fmt.Fprintf(&b, "description: %s\n", p.Description)
	}
	if p.Price != nil {
		fmt.Fprintf(&b, "price: %s\n", p.Price.StringFixed(2))
	}
	if p.Material != "" {
		fmt.Fprintf(&b, "material: %s\n", p.Material)
	}
	if p.Size != "" {
		fmt.Fprintf(&b, "size: %s\n", p.Size)
	}
	if p.Rating != nil {
		fmt.Fprintf(&b, "rating: %.1f/5\n", *p.Rating)
	}
	if p.Vendor != "" {
		fmt.Fprintf(&b, "brand: %s\n", p.Vendor)
	}
	if p.ProductType != "" {
		fmt.Fprintf(&b, "type: %s\n", p.ProductType)
	}
	if len(p.Tags) > 0 {
		fmt.Fprintf(&b, "tags: %s\n", strings.Join(p.Tags, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// UserPrompt builds the generation prompt. Every bucket is listed with its
// own quota so coverage does not depend on the model's choice.
func UserPrompt(p product.Product, perBucket int) string {
	if perBucket < 1 {
		perBucket = 1
	}

	var b strings.Builder
	b.WriteString("Given the product details below, generate realistic user search queries.\n")
	b.WriteString("Product:\n")
	b.WriteString(productBlock(p))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Generate exactly %d queries for EACH of the following buckets, "+
		"mixing short keyword-style and natural-language styles:\n", perBucket)
	for _, bucket := range query.Buckets {
		fmt.Fprintf(&b, "- %s: %s\n", bucket, bucketHints[bucket])
	}
	b.WriteString("When a bucket's attribute is missing from the product, infer a plausible query from the other fields.\n")
	b.WriteString(outputContract)
	return b.String()
}

// SelfCheckPrompt asks the model to review a first-pass result, drop weak or
// off-topic queries and keep at most maxPerBucket per bucket.
func SelfCheckPrompt(p product.Product, firstPassJSON string, maxPerBucket int) string {
	var b strings.Builder
	b.WriteString("Review the candidate search queries for the product below.\n")
	b.WriteString("Product:\n")
	b.WriteString(productBlock(p))
	b.WriteString("\n\nCandidates:\n")
	b.WriteString(firstPassJSON)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Keep the most realistic queries, at most %d per bucket. "+
		"Fix wrong bucket or style labels, remove duplicates and queries that contradict the product.\n", maxPerBucket)
	b.WriteString(outputContract)
	return b.String()
}
