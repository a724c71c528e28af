package discovery

import (
	"strings"
	"time"
	"unicode"

	"github.com/kailas-cloud/vecsync/internal/domain/change"
	"github.com/kailas-cloud/vecsync/internal/domain/schema"
)

// DefaultSkipFields are top-level keys that are never classified: keys,
// soft-delete markers, audit fields and the fields the pipeline writes back
// into source documents. Nested keys with the same names are ordinary fields.
var DefaultSkipFields = []string{
	"_id", "__v", "id",
	"tenantId", "type",
	"deleted", "isDeleted", "deletedAt", "deletedBy",
	"createdAt", "createdBy", "updatedAt", "updatedBy",
	"_vectorIndexedAt", "embedding", "semanticText", "searchableContent",
}

// identifierWords are trailing key words that mark a string as an id or code.
var identifierWords = map[string]struct{}{
	"id": {}, "ids": {}, "uuid": {}, "guid": {},
	"code": {}, "number": {}, "num": {}, "no": {},
	"sku": {}, "ref": {}, "serial": {}, "slug": {},
}

// Classifier buckets leaf fields of arbitrary documents into schema.FieldKind values.
type Classifier struct {
	skip map[string]struct{}
}

// NewClassifier skips DefaultSkipFields plus extra, matched against top-level keys only.
func NewClassifier(extra ...string) *Classifier {
	c := &Classifier{skip: make(map[string]struct{}, len(DefaultSkipFields)+len(extra))}
	for _, f := range DefaultSkipFields {
		c.skip[f] = struct{}{}
	}
	for _, f := range extra {
		if f != "" {
			c.skip[f] = struct{}{}
		}
	}
	return c
}

// Classify classifies docs with the default skip set.
func Classify(docs ...map[string]any) schema.FieldStructure {
	return NewClassifier().Classify(docs...)
}

// Classify walks every document; for a path seen in several documents the first classification wins.
func (c *Classifier) Classify(docs ...map[string]any) schema.FieldStructure {
	set := schema.NewFieldSet()
	for _, d := range docs {
		c.walk(set, "", d)
	}
	return set.Structure()
}

func (c *Classifier) walk(set *schema.FieldSet, prefix string, m map[string]any) {
	for key, val := range m {
		if prefix == "" {
			if _, skip := c.skip[key]; skip {
				continue
			}
		}
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		c.visit(set, path, key, val)
	}
}

func (c *Classifier) visit(set *schema.FieldSet, path, key string, val any) {
	switch v := val.(type) {
	case map[string]any:
		c.walk(set, path, v)
	case change.Document:
		c.walk(set, path, v)
	case []any:
		// first element stands in for the whole array
		if len(v) > 0 {
			c.visit(set, path, key, v[0])
		}
	default:
		if kind, ok := kindOf(key, v); ok {
			set.Add(path, kind)
		}
	}
}

func kindOf(key string, v any) (schema.FieldKind, bool) {
	switch t := v.(type) {
	case string:
		if t == "" {
			return 0, false
		}
		if _, ok := change.ParseTime(t); ok {
			return schema.KindDate, true
		}
		if IsIdentifierKey(key) {
			return schema.KindIdentifier, true
		}
		return schema.KindText, true
	case int, int32, int64, float32, float64:
		return schema.KindNumeric, true
	case time.Time:
		return schema.KindDate, true
	default:
		return 0, false
	}
}

// IsIdentifierKey reports whether a key name's last word marks an id or code,
// e.g. "assetId", "serial_no", "invoiceNumber", "SKU".
func IsIdentifierKey(key string) bool {
	words := splitWords(key)
	if len(words) == 0 {
		return false
	}
	_, ok := identifierWords[words[len(words)-1]]
	return ok
}

// splitWords splits camelCase, snake_case and kebab-case keys into lowercase words.
func splitWords(key string) []string {
	var words []string
	var cur []rune
	runes := []rune(key)
	flush := func() {
		if len(cur) > 0 {
			words = append(words, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == ' ' || r == '.':
			flush()
		case unicode.IsUpper(r):
			// boundary at aB and at the last capital of an acronym followed by lowercase (IDNumber -> id, number)
			if i > 0 && (unicode.IsLower(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))) {
				flush()
			}
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return words
}
