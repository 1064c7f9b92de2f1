package generator

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Sternrassler/querygen/pkg/product"
	"github.com/Sternrassler/querygen/pkg/query"
)

func TestUserPrompt_ListsEveryBucket(t *testing.T) {
	price := decimal.RequireFromString("29.99")
	p := product.Product{ID: "p1", Title: "Blue Cotton Shirt", Material: "cotton", Price: &price}

	prompt := UserPrompt(p, 3)

	for _, b := range query.Buckets {
		if !strings.Contains(prompt, "- "+string(b)+":") {
			t.Errorf("prompt does not target bucket %q", b)
		}
	}
	for _, want := range []string{"title: Blue Cotton Shirt", "material: cotton", "price: 29.99", "exactly 3 queries"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	for _, absent := range []string{"description:", "rating:", "size:", "p1"} {
		if strings.Contains(prompt, absent) {
			t.Errorf("prompt should not contain %q", absent)
		}
	}
}

func TestUserPrompt_MinimumQuota(t *testing.T) {
	if !strings.Contains(UserPrompt(product.Product{Title: "Hat"}, 0), "exactly 1 queries") {
		t.Error("quota below 1 should be raised to 1")
	}
}

func TestSelfCheckPrompt(t *testing.T) {
	prompt := SelfCheckPrompt(product.Product{Title: "Hat"}, `{"queries":[]}`, 2)
	if !strings.Contains(prompt, `{"queries":[]}`) {
		t.Error("self-check prompt should embed the first pass")
	}
	if !strings.Contains(prompt, "at most 2 per bucket") {
		t.Error("self-check prompt should state the cap")
	}
}
