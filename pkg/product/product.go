// Package product defines the product records accepted by the query
// generator, their validation rules and the content fingerprint used as the
// cache key for generated queries.
package product

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Rating bounds accepted on input.
const (
	MinRating = 0.0
	MaxRating = 5.0
)

// Product is an e-commerce product record. It is treated as immutable input.
type Product struct {
	ID          string           `json:"id" binding:"required"`
	Title       string           `json:"title"`
	Description string           `json:"description,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Material    string           `json:"material,omitempty"`
	Size        string           `json:"size,omitempty"`
	Rating      *float64         `json:"rating,omitempty"`

	// Catalog metadata carried over from Shopify-like sources.
	Vendor      string   `json:"vendor,omitempty"`
	ProductType string   `json:"product_type,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// ValidationError describes malformed product input. It is never retried.
type ValidationError struct {
	ProductID string
	Field     string
	Reason    string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid product %q: %s %s", e.ProductID, e.Field, e.Reason)
}

// Validate checks the per-product field rules that must hold before
// generation is attempted.
func (p Product) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return &ValidationError{ProductID: p.ID, Field: "id", Reason: "is required"}
	}
	if NormalizeText(p.Title) == "" {
		return &ValidationError{ProductID: p.ID, Field: "title", Reason: "is required"}
	}
	if p.Price != nil && p.Price.IsNegative() {
		return &ValidationError{ProductID: p.ID, Field: "price", Reason: "must not be negative"}
	}
	if p.Rating != nil && (*p.Rating < MinRating || *p.Rating > MaxRating) {
		return &ValidationError{
			ProductID: p.ID,
			Field:     "rating",
			Reason:    fmt.Sprintf("must be between %.0f and %.0f", MinRating, MaxRating),
		}
	}
	return nil
}

// Clean returns a copy of p with all free-text fields normalized.
func Clean(p Product) Product {
	out := p
	out.ID = strings.TrimSpace(p.ID)
	out.Title = NormalizeText(p.Title)
	out.Description = NormalizeText(p.Description)
	out.Material = NormalizeText(p.Material)
	out.Size = NormalizeText(p.Size)
	out.Vendor = NormalizeText(p.Vendor)
	out.ProductType = NormalizeText(p.ProductType)
	if len(p.Tags) > 0 {
		out.Tags = make([]string, 0, len(p.Tags))
		for _, tag := range p.Tags {
			if t := NormalizeText(tag); t != "" {
				out.Tags = append(out.Tags, t)
			}
		}
	}
	return out
}
