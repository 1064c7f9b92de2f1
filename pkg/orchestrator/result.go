package orchestrator

import (
	"errors"

	"github.com/Sternrassler/querygen/pkg/generator"
	"github.com/Sternrassler/querygen/pkg/product"
	"github.com/Sternrassler/querygen/pkg/query"
)

// Source records where a product's queries came from.
type Source string

const (
	// SourceCache means a fresh stored entry was served.
	SourceCache Source = "cache"

	// SourceGenerated means this request ran the generator.
	SourceGenerated Source = "generated"

	// SourceShared means the queries came from a generation started by
	// another request, or from a concurrent writer that won the store race.
	SourceShared Source = "shared"
)

// ErrorType classifies a per-product failure.
type ErrorType string

const (
	ErrorValidation ErrorType = "validation"
	ErrorTransient  ErrorType = "transient"
	ErrorPermanent  ErrorType = "permanent"
)

// ProductError is the error marker attached to a failed product.
type ProductError struct {
	Type    ErrorType `json:"type"`
	Class   string    `json:"class,omitempty"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *ProductError) Error() string {
	if e.Class != "" {
		return string(e.Type) + " (" + e.Class + "): " + e.Message
	}
	return string(e.Type) + ": " + e.Message
}

// ProductResult is the outcome for one input product.
type ProductResult struct {
	ProductID string                 `json:"product_id"`
	Queries   []query.GeneratedQuery `json:"queries"`
	Source    Source                 `json:"source,omitempty"`
	Err       *ProductError          `json:"error,omitempty"`
}

// OK reports whether the product produced queries.
func (r ProductResult) OK() bool {
	return r.Err == nil
}

// BatchResult mirrors the input order of a Process call.
type BatchResult struct {
	Results []ProductResult `json:"results"`
}

// Stats summarizes a batch.
type Stats struct {
	Total     int
	Cached    int
	Generated int
	Shared    int
	Invalid   int
	Transient int
	Permanent int
}

// Stats counts results by source and error type.
func (b BatchResult) Stats() Stats {
	s := Stats{Total: len(b.Results)}
	for _, r := range b.Results {
		if r.Err != nil {
			switch r.Err.Type {
			case ErrorValidation:
				s.Invalid++
			case ErrorTransient:
				s.Transient++
			default:
				s.Permanent++
			}
			continue
		}
		switch r.Source {
		case SourceCache:
			s.Cached++
		case SourceShared:
			s.Shared++
		default:
			s.Generated++
		}
	}
	return s
}

// Succeeded returns the number of products that produced queries.
func (s Stats) Succeeded() int {
	return s.Cached + s.Generated + s.Shared
}

// productError converts a pipeline failure into its marker.
func productError(err error) *ProductError {
	var verr *product.ValidationError
	if errors.As(err, &verr) {
		return &ProductError{Type: ErrorValidation, Message: verr.Error()}
	}

	gerr := generator.Classify(err)
	t := ErrorPermanent
	if gerr.Kind == generator.Transient {
		t = ErrorTransient
	}
	return &ProductError{Type: t, Class: string(gerr.Class), Message: err.Error()}
}
