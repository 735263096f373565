package ingest

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// dateLayouts are tried in order when parsing date-like strings.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	time.RFC1123Z,
	time.RFC1123,
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
}

// lookup returns the value for key, treating a JSON null as absent.
func lookup(m map[string]any, key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	v, ok := m[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// isBlank reports whether v is absent for numeric coercion: nil or the
// empty string. Whitespace-only strings are present and coerce to 0.
func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// trimmed returns the trimmed string form of m[key], or "" when absent.
func trimmed(m map[string]any, key string) string {
	v, ok := lookup(m, key)
	if !ok {
		return ""
	}
	return strings.TrimSpace(stringify(v))
}

// toNumber converts v permissively. A whitespace-only string is 0;
// unparseable and non-finite values are nil.
func toNumber(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case bool:
		if t {
			f = 1
		}
	case string:
		t = strings.TrimSpace(t)
		if t == "" {
			return new(float64)
		}
		parsed, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// parseDate interprets date-like strings and Unix millisecond numbers.
func parseDate(v any) (*time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return &t, nil
	case float64:
		ts := time.UnixMilli(int64(t)).UTC()
		return &ts, nil
	case json.Number:
		ms, err := t.Int64()
		if err != nil {
			return nil, fmt.Errorf("%q is not a date", t.String())
		}
		ts := time.UnixMilli(ms).UTC()
		return &ts, nil
	}

	s := strings.TrimSpace(stringify(v))
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			ts = ts.UTC()
			return &ts, nil
		}
	}
	return nil, fmt.Errorf("%q is not a date", s)
}

// truthy mirrors the loose "defined and not falsy" check used for expiry.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case float64:
		return t != 0 && !math.IsNaN(t)
	default:
		return true
	}
}

// splitTags accepts a sequence or a pipe-delimited string and returns the
// trimmed non-empty entries. ok is false when v is neither.
func splitTags(v any) (tags []string, ok bool) {
	switch t := v.(type) {
	case []string:
		return cleanTags(t), true
	case []any:
		parts := make([]string, 0, len(t))
		for _, p := range t {
			parts = append(parts, stringify(p))
		}
		return cleanTags(parts), true
	case string:
		if t == "" {
			return nil, false
		}
		return cleanTags(strings.Split(t, "|")), true
	}
	return nil, false
}

func cleanTags(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
