package batchenrich

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"facility-search-workers/internal/common/genai"
)

var ErrEnrichmentParseFailed = errors.New("ENRICHMENT_PARSE_FAILED")

var nonKeyChars = regexp.MustCompile(`[^a-z0-9]+`)

// Wrapper keys some backends put around the array.
var wrapperKeys = []string{"results", "facilities", "data", "items"}

type item map[string]json.RawMessage

// parseItems reads the backend answer as an array of objects. It accepts a
// fenced or prose-wrapped array, an object wrapping the array, or a single
// object. Anything else is a parse failure; no values are guessed from text.
func parseItems(raw string) ([]item, error) {
	s := genai.StripFences(raw)
	if s == "" {
		return nil, errors.New("empty response")
	}

	if items, ok := decodeItems(s); ok {
		return items, nil
	}
	if arr, ok := genai.ExtractJSON(s, '['); ok {
		if items, ok := decodeItems(arr); ok {
			return items, nil
		}
	}
	if obj, ok := genai.ExtractJSON(s, '{'); ok {
		if items, ok := decodeItems(obj); ok {
			return items, nil
		}
	}
	return nil, errors.New("no JSON array or object in response")
}

func decodeItems(s string) ([]item, bool) {
	var arr []item
	if err := json.Unmarshal([]byte(s), &arr); err == nil {
		return arr, true
	}

	var obj item
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	for _, k := range wrapperKeys {
		if inner, ok := obj[k]; ok {
			if err := json.Unmarshal(inner, &arr); err == nil {
				return arr, true
			}
		}
	}
	if _, ok := obj["name"]; ok {
		return []item{obj}, true
	}
	return nil, false
}

func (it item) str(key string) string {
	raw, ok := it[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	if string(raw) == "null" {
		return ""
	}
	return strings.Trim(string(raw), `"`)
}

// value returns the field as stored JSON. Placeholder strings a model uses
// for "unknown" become null.
func (it item) value(field string) (json.RawMessage, bool) {
	raw, ok := it[field]
	if !ok {
		return nil, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "", "null", "n/a", "na", "unknown", "not available", "none found", "not found":
			return json.RawMessage(`null`), true
		}
	}
	return raw, true
}

func joinKey(name, city, state string) string {
	norm := func(s string) string {
		return nonKeyChars.ReplaceAllString(strings.ToLower(s), "")
	}
	return norm(name) + "|" + norm(city) + "|" + norm(state)
}

func jsonBytes(it item) ([]byte, error) {
	return json.Marshal(map[string]json.RawMessage(it))
}
