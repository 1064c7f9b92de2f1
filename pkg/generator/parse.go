package generator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/Sternrassler/querygen/pkg/query"
)

// outputSchema validates the model output after casing is normalized.
var outputSchema = mustOutputSchema()

func mustOutputSchema() *gojsonschema.Schema {
	styles := make([]string, len(query.Styles))
	for i, s := range query.Styles {
		styles[i] = string(s)
	}
	buckets := make([]string, len(query.Buckets))
	for i, b := range query.Buckets {
		buckets[i] = string(b)
	}

	doc := map[string]any{
		"type":     "object",
		"required": []string{"queries"},
		"properties": map[string]any{
			"queries": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "object",
					"required": []string{"text", "style", "bucket"},
					"properties": map[string]any{
						"text":   map[string]any{"type": "string", "pattern": `\S`},
						"style":  map[string]any{"type": "string", "enum": styles},
						"bucket": map[string]any{"type": "string", "enum": buckets},
					},
				},
			},
		},
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
	if err != nil {
		panic(fmt.Sprintf("generator: invalid output schema: %v", err))
	}
	return schema
}

type rawOutput struct {
	Queries []query.GeneratedQuery `json:"queries"`
}

// ParseQueries turns raw model output into validated, de-duplicated queries.
//
// Surrounding prose is tolerated by falling back to the outermost braces.
// Any entry outside the style/bucket enumerations fails the whole output as
// a Permanent schema violation. Empty output is Permanent as well.
func ParseQueries(content string) ([]query.GeneratedQuery, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, NewPermanent(ClassEmptyOutput, "model returned no content", nil)
	}

	doc, err := decodeObject(content)
	if err != nil {
		return nil, NewPermanent(ClassMalformedOutput, "model output is not a JSON object", err)
	}
	normalizeLabels(doc)

	result, err := outputSchema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, NewPermanent(ClassMalformedOutput, "validate model output", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
		}
		return nil, NewPermanent(ClassSchema, strings.Join(msgs, "; "), nil)
	}

	// The schema has passed, so re-encoding into the typed form cannot fail
	// on shape; it only drops unknown keys.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, NewPermanent(ClassMalformedOutput, "re-encode model output", err)
	}
	var out rawOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, NewPermanent(ClassMalformedOutput, "decode model output", err)
	}

	queries := make([]query.GeneratedQuery, 0, len(out.Queries))
	for i, q := range out.Queries {
		q = query.Normalize(q)
		if err := q.Validate(); err != nil {
			return nil, NewPermanent(ClassSchema, fmt.Sprintf("query %d", i), err)
		}
		queries = append(queries, q)
	}

	queries = query.Dedupe(queries)
	if len(queries) == 0 {
		return nil, NewPermanent(ClassEmptyOutput, "model returned no queries", nil)
	}
	return queries, nil
}

// decodeObject parses content as a JSON object, retrying on the substring
// between the first '{' and the last '}'.
func decodeObject(content string) (map[string]any, error) {
	var doc map[string]any
	err := json.Unmarshal([]byte(content), &doc)
	if err == nil && doc != nil {
		return doc, nil
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end <= start {
		if err == nil {
			err = fmt.Errorf("no JSON object found")
		}
		return nil, err
	}
	doc = nil
	if err := json.Unmarshal([]byte(content[start:end+1]), &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("no JSON object found")
	}
	return doc, nil
}

// normalizeLabels lower-cases and trims style and bucket values in place so
// that casing differences are not reported as schema violations.
func normalizeLabels(doc map[string]any) {
	items, ok := doc["queries"].([]any)
	if !ok {
		return
	}
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		for _, key := range []string{"style", "bucket"} {
			if s, ok := obj[key].(string); ok {
				obj[key] = strings.ToLower(strings.TrimSpace(s))
			}
		}
	}
}
