package product

import (
	"bytes"
	"encoding/json"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// maxDescriptionLen bounds descriptions derived from body_html.
const maxDescriptionLen = 512

var htmlTagRe = regexp.MustCompile(`<[^>]+>`)

// ShopifyID accepts both numeric and string product ids.
type ShopifyID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *ShopifyID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ShopifyID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ShopifyID(n.String())
	return nil
}

// ShopifyProduct is the subset of a Shopify product export used for
// generation.
type ShopifyProduct struct {
	ID          ShopifyID        `json:"id"`
	Title       string           `json:"title"`
	BodyHTML    string           `json:"body_html"`
	Vendor      string           `json:"vendor"`
	ProductType string           `json:"product_type"`
	Tags        []string         `json:"tags"`
	Variants    []ShopifyVariant `json:"variants"`
	Options     []ShopifyOption  `json:"options"`
}

// ShopifyVariant carries a variant price; Shopify encodes prices as strings.
type ShopifyVariant struct {
	Price ShopifyPrice `json:"price"`
}

// ShopifyPrice accepts string and numeric prices. Empty or malformed
// values decode as unset instead of failing the whole document.
type ShopifyPrice struct {
	Value *decimal.Decimal
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *ShopifyPrice) UnmarshalJSON(data []byte) error {
	p.Value = nil
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	raw := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil
		}
	}
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return nil
	}
	p.Value = &d
	return nil
}

// ShopifyOption is a product option such as Size or Color.
type ShopifyOption struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// FromShopify adapts a Shopify product. It reports false when the record
// has no id or title. Material is left empty for the model to infer.
func FromShopify(sp ShopifyProduct) (Product, bool) {
	if strings.TrimSpace(string(sp.ID)) == "" || strings.TrimSpace(sp.Title) == "" {
		return Product{}, false
	}

	p := Product{
		ID:          string(sp.ID),
		Title:       sp.Title,
		Description: htmlToText(sp.BodyHTML, maxDescriptionLen),
		Price:       minVariantPrice(sp.Variants),
		Size:        sizeOption(sp.Options),
		Vendor:      strings.TrimSpace(sp.Vendor),
		ProductType: strings.TrimSpace(sp.ProductType),
	}
	for _, tag := range sp.Tags {
		if t := strings.TrimSpace(tag); t != "" {
			p.Tags = append(p.Tags, t)
		}
	}
	return p, true
}

// FromShopifyBatch adapts a batch, silently skipping unusable records.
func FromShopifyBatch(in []ShopifyProduct) []Product {
	out := make([]Product, 0, len(in))
	for _, sp := range in {
		if p, ok := FromShopify(sp); ok {
			out = append(out, p)
		}
	}
	return out
}

func htmlToText(s string, maxLen int) string {
	if s == "" {
		return ""
	}
	s = html.UnescapeString(s)
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= maxLen {
		return s
	}
	cut := strings.LastIndex(s[:maxLen], " ")
	if cut <= 0 {
		cut = maxLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
	}
	return strings.TrimRight(s[:cut], " ")
}

func minVariantPrice(variants []ShopifyVariant) *decimal.Decimal {
	var lowest *decimal.Decimal
	for _, v := range variants {
		if v.Price.Value == nil {
			continue
		}
		if lowest == nil || v.Price.Value.LessThan(*lowest) {
			price := *v.Price.Value
			lowest = &price
		}
	}
	return lowest
}

func sizeOption(options []ShopifyOption) string {
	for _, opt := range options {
		if !strings.EqualFold(strings.TrimSpace(opt.Name), "size") {
			continue
		}
		seen := make(map[string]struct{}, len(opt.Values))
		var sizes []string
		for _, v := range opt.Values {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			sizes = append(sizes, v)
		}
		return strings.Join(sizes, ",")
	}
	return ""
}
