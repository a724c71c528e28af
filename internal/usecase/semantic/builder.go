// Package semantic renders source documents into bounded natural-language
// text for embedding and a keyword blob for lexical matching.
package semantic

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kailas-cloud/vecsync/internal/domain/change"
	"github.com/kailas-cloud/vecsync/internal/domain/schema"
)

// Default byte caps.
const (
	DefaultSemanticMaxBytes   = 8192
	DefaultSearchableMaxBytes = 4096
)

// TruncationMarker ends semantic text that exceeded its cap.
const TruncationMarker = "\n[truncated]"

// meaningfulNumeric are key fragments that make a number worth describing.
var meaningfulNumeric = []string{
	"amount", "count", "price", "total", "cost", "qty", "quantity",
	"balance", "score", "rating", "severity", "hours",
}

// Options configures a Builder.
type Options struct {
	SemanticMaxBytes   int
	SearchableMaxBytes int
	// Profiles extend or override BuiltinProfiles by type name.
	Profiles []Profile
}

// Builder renders documents deterministically: identical input yields identical output.
// It holds no mutable state and is safe for concurrent use.
type Builder struct {
	semanticMax   int
	searchableMax int
	profiles      profileIndex
}

// NewBuilder creates a builder. Invalid profiles are rejected.
func NewBuilder(opts Options) (*Builder, error) {
	if opts.SemanticMaxBytes <= len(TruncationMarker) {
		opts.SemanticMaxBytes = DefaultSemanticMaxBytes
	}
	if opts.SearchableMaxBytes <= 0 {
		opts.SearchableMaxBytes = DefaultSearchableMaxBytes
	}
	for _, p := range opts.Profiles {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	all := append(BuiltinProfiles(), opts.Profiles...)
	return &Builder{
		semanticMax:   opts.SemanticMaxBytes,
		searchableMax: opts.SearchableMaxBytes,
		profiles:      newProfileIndex(all),
	}, nil
}

// ProfileTypes returns every type name with a profile.
func (b *Builder) ProfileTypes() []string {
	return b.profiles.types()
}

// BuildSemanticText renders one "<field>: <value>" line per field in the order:
// type label, profile fragments, text, identifiers, meaningful numbers, dates.
// Output longer than the cap is cut and ends with TruncationMarker.
func (b *Builder) BuildSemanticText(typeName string, doc change.Document, fs schema.FieldStructure) string {
	var sb strings.Builder

	label := typeName
	profile, hasProfile := b.profiles.lookup(typeName)
	if hasProfile && profile.Label != "" {
		label = profile.Label
	}
	writeLine(&sb, "Type", label)

	if hasProfile {
		for _, f := range profile.Fragments {
			writeLine(&sb, f.Label, f.render(doc))
		}
	}

	for _, path := range fs.TextFields {
		writeLine(&sb, path, joinValues(doc.Lookup(path)))
	}
	for _, path := range fs.IdentifierFields {
		writeLine(&sb, path, joinValues(doc.Lookup(path)))
	}
	for _, path := range fs.NumericFields {
		if isMeaningfulNumeric(path) {
			writeLine(&sb, path, joinValues(doc.Lookup(path)))
		}
	}
	for _, path := range fs.DateFields {
		writeLine(&sb, path, joinValues(doc.Lookup(path)))
	}

	return truncate(strings.TrimRight(sb.String(), "\n"), b.semanticMax, TruncationMarker)
}

// BuildSearchableContent flattens the type name, text and identifier fields into
// lowercase space-separated keywords.
func (b *Builder) BuildSearchableContent(typeName string, doc change.Document, fs schema.FieldStructure) string {
	parts := []string{strings.ToLower(typeName)}
	add := func(path string) {
		v := joinValues(doc.Lookup(path))
		if v == "" {
			return
		}
		parts = append(parts, flattenName(path), strings.ToLower(v))
	}
	for _, path := range fs.TextFields {
		add(path)
	}
	for _, path := range fs.IdentifierFields {
		add(path)
	}

	content := strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
	return truncateWords(content, b.searchableMax)
}

func writeLine(sb *strings.Builder, name, value string) {
	if value == "" {
		return
	}
	sb.WriteString(name)
	sb.WriteString(": ")
	sb.WriteString(value)
	sb.WriteByte('\n')
}

func isMeaningfulNumeric(path string) bool {
	leaf := strings.ToLower(path[strings.LastIndexByte(path, '.')+1:])
	for _, kw := range meaningfulNumeric {
		if strings.Contains(leaf, kw) {
			return true
		}
	}
	return false
}

// flattenName turns "lineItems.unit_price" into "line items unit price".
func flattenName(path string) string {
	var sb strings.Builder
	prevLower := false
	for _, r := range path {
		switch {
		case r == '.' || r == '_' || r == '-':
			sb.WriteByte(' ')
			prevLower = false
		case r >= 'A' && r <= 'Z':
			if prevLower {
				sb.WriteByte(' ')
			}
			sb.WriteRune(r + ('a' - 'A'))
			prevLower = false
		default:
			sb.WriteRune(r)
			prevLower = true
		}
	}
	return sb.String()
}

func joinValues(values []any) string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s := formatValue(v); s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, ", ")
}

func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case float64:
		return formatFloat(t)
	case float32:
		return formatFloat(float64(t))
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return formatTime(t)
	case nil, map[string]any, change.Document, []any:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// formatTime drops the clock for midnight UTC values, which are almost always plain dates.
func formatTime(t time.Time) string {
	t = t.UTC()
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format(time.DateOnly)
	}
	return t.Format(time.RFC3339)
}

// truncate cuts s to at most maxBytes including marker, on a rune boundary.
func truncate(s string, maxBytes int, marker string) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes - len(marker)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + marker
}

// truncateWords cuts s to at most maxBytes, preferring the last word boundary.
func truncateWords(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if i := strings.LastIndexByte(s[:cut], ' '); i > 0 {
		cut = i
	}
	return s[:cut]
}
