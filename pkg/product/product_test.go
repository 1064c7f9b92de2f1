package product

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func floatPtr(f float64) *float64 {
	return &f
}

func TestProduct_Validate(t *testing.T) {
	tests := []struct {
		name      string
		product   Product
		wantField string
	}{
		{
			name:    "minimal valid product",
			product: Product{ID: "p1", Title: "Linen Shirt"},
		},
		{
			name: "fully populated product",
			product: Product{
				ID: "p1", Title: "Linen Shirt", Description: "Breathable",
				Price: decPtr("39.90"), Material: "linen", Size: "M", Rating: floatPtr(4.5),
			},
		},
		{
			name:      "missing id",
			product:   Product{Title: "Linen Shirt"},
			wantField: "id",
		},
		{
			name:      "whitespace title",
			product:   Product{ID: "p1", Title: " \u200b "},
			wantField: "title",
		},
		{
			name:      "negative price",
			product:   Product{ID: "p1", Title: "Shirt", Price: decPtr("-1")},
			wantField: "price",
		},
		{
			name:    "zero price is allowed",
			product: Product{ID: "p1", Title: "Shirt", Price: decPtr("0")},
		},
		{
			name:      "rating above range",
			product:   Product{ID: "p1", Title: "Shirt", Rating: floatPtr(5.1)},
			wantField: "rating",
		},
		{
			name:      "rating below range",
			product:   Product{ID: "p1", Title: "Shirt", Rating: floatPtr(-0.5)},
			wantField: "rating",
		},
		{
			name:    "rating on upper bound",
			product: Product{ID: "p1", Title: "Shirt", Rating: floatPtr(5)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.product.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want *ValidationError", err)
			}
			if verr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", verr.Field, tt.wantField)
			}
		})
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"  plain   text ", "plain text"},
		{"“quoted”", `"quoted"`},
		{"it’s", "it's"},
		{"a \u2013 b \u2014 c", "a - b - c"},
		{"wait…", "wait..."},
		{"non\u00a0breaking", "non breaking"},
		{"zero\u200bwidth", "zerowidth"},
		{"\ufeffbom", "bom"},
		{"tab\tand\nnewline", "tab and newline"},
		{"bell\x07char", "bellchar"},
	}

	for _, tt := range tests {
		if got := NormalizeText(tt.in); got != tt.want {
			t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClean(t *testing.T) {
	in := Product{
		ID:    " p1 ",
		Title: "  Linen\u00a0Shirt ",
		Tags:  []string{" summer ", "", "\u200b"},
	}
	got := Clean(in)

	if got.ID != "p1" {
		t.Errorf("ID = %q", got.ID)
	}
	if got.Title != "Linen Shirt" {
		t.Errorf("Title = %q", got.Title)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "summer" {
		t.Errorf("Tags = %v", got.Tags)
	}
	if in.Title != "  Linen\u00a0Shirt " {
		t.Error("Clean() modified its input")
	}
}
