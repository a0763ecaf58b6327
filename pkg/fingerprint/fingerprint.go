// Package fingerprint derives stable cache keys for analytics requests.
//
// A key is derived from the first applicable source, in order: the query text, the structured
// intent, and a free-text fallback. An empty key means the request must not be cached.
package fingerprint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DefaultScope is assigned to intents that do not carry an explicit scope.
const DefaultScope = "time_bounded"

// Build returns the cache key for a request. It never fails.
func Build(queryText string, intent map[string]any, fallback string) string {
	if key := FromQuery(queryText); key != "" {
		return key
	}
	if key := FromIntent(intent); key != "" {
		return key
	}
	return strings.TrimSpace(fallback)
}

// FromQuery collapses whitespace runs to a single space and trims the ends.
func FromQuery(queryText string) string {
	return strings.Join(strings.Fields(queryText), " ")
}

// FromIntent returns the canonical serialization of the intent, or "" for an empty intent.
// The input map is not modified.
func FromIntent(intent map[string]any) string {
	if len(intent) == 0 {
		return ""
	}
	normalized, _ := normalize(intent).(map[string]any)
	if isEmptyScope(normalized["scope"]) {
		normalized["scope"] = DefaultScope
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		// fmt prints maps with sorted keys, so this stays deterministic.
		return FromQuery(fmt.Sprintf("%v", normalized))
	}
	return strings.TrimSpace(buf.String())
}

func isEmptyScope(v any) bool {
	switch s := v.(type) {
	case nil:
		return true
	case string:
		return s == ""
	case []any:
		return len(s) == 0
	case []string:
		return len(s) == 0
	}
	return false
}

// normalize deep-copies v, trimming strings and turning digit-only strings into integers.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case string:
		s := strings.TrimSpace(t)
		if isDigits(s) {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n
			}
		}
		return s
	}
	return v
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
