package change

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// IDField is the primary key field of source documents.
const IDField = "_id"

// Document is a normalized source document. Values are limited to
// string, bool, int64, float64, time.Time, []any, map[string]any and nil;
// store adapters convert driver-specific types at the boundary. The top-level
// IDField may also hold an ObjectID.
type Document map[string]any

// ObjectID is the hex form of a store-generated primary key. It keeps the key
// distinguishable from a plain string key so writes back to the source match it.
type ObjectID string

// ID returns the document's primary key as a string, or "" if absent.
func (d Document) ID() string {
	v, ok := d[IDField]
	if !ok || v == nil {
		return ""
	}
	switch id := v.(type) {
	case string:
		return id
	case ObjectID:
		return string(id)
	case int64:
		return strconv.FormatInt(id, 10)
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case fmt.Stringer:
		return id.String()
	default:
		return fmt.Sprint(id)
	}
}

// RawID returns the primary key in its stored form, or nil if absent.
func (d Document) RawID() any {
	return d[IDField]
}

// String returns the top-level string value for key.
func (d Document) String(key string) (string, bool) {
	s, ok := d[key].(string)
	return s, ok
}

// Time returns the top-level timestamp for key, parsing ISO-8601 strings.
func (d Document) Time(key string) (time.Time, bool) {
	switch v := d[key].(type) {
	case time.Time:
		return v, true
	case string:
		return ParseTime(v)
	default:
		return time.Time{}, false
	}
}

// Lookup returns every value reachable by a dotted path. Arrays fan out,
// so "items.sku" yields one value per element of items.
func (d Document) Lookup(path string) []any {
	if path == "" {
		return nil
	}
	return lookup(map[string]any(d), strings.Split(path, "."))
}

func lookup(v any, parts []string) []any {
	if len(parts) == 0 {
		switch t := v.(type) {
		case nil:
			return nil
		case []any:
			out := make([]any, 0, len(t))
			for _, el := range t {
				out = append(out, lookup(el, nil)...)
			}
			return out
		default:
			return []any{v}
		}
	}

	switch t := v.(type) {
	case map[string]any:
		child, ok := t[parts[0]]
		if !ok {
			return nil
		}
		return lookup(child, parts[1:])
	case Document:
		return lookup(map[string]any(t), parts)
	case []any:
		var out []any
		for _, el := range t {
			out = append(out, lookup(el, parts)...)
		}
		return out
	default:
		return nil
	}
}

// isoLayouts are the string timestamp formats recognised as dates.
var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime parses an ISO-8601 timestamp or date. Short or non-digit-leading
// strings are rejected early so free text never parses as a date.
func ParseTime(s string) (time.Time, bool) {
	if len(s) < len("2006-01-02") || s[0] < '0' || s[0] > '9' {
		return time.Time{}, false
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
