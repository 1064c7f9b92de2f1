// Package generator synthesizes search queries for a product by calling a
// language model backend.
//
// Failures are reported as *GenerationError with a Transient or Permanent
// kind. Retry applies the backoff policy to Transient failures only.
package generator

import (
	"context"

	"github.com/Sternrassler/querygen/pkg/product"
	"github.com/Sternrassler/querygen/pkg/query"
)

// Generator produces queries for one product.
type Generator interface {
	Generate(ctx context.Context, p product.Product) ([]query.GeneratedQuery, error)
}

// Func adapts an ordinary function to the Generator interface.
type Func func(ctx context.Context, p product.Product) ([]query.GeneratedQuery, error)

// Generate implements Generator.
func (f Func) Generate(ctx context.Context, p product.Product) ([]query.GeneratedQuery, error) {
	return f(ctx, p)
}
