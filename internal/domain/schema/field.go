// Package schema holds the discovered shape of source documents: field kinds,
// per-type field structure and the immutable document-type registry.
package schema

import "sort"

// FieldKind is the closed set of semantic categories a leaf field can fall into.
type FieldKind int

const (
	// KindText is free-form text.
	KindText FieldKind = iota + 1
	// KindNumeric is a number.
	KindNumeric
	// KindDate is a timestamp or an ISO-8601 string.
	KindDate
	// KindIdentifier is a string whose key name marks it as an id or code.
	KindIdentifier
)

// String returns the lowercase kind name.
func (k FieldKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNumeric:
		return "numeric"
	case KindDate:
		return "date"
	case KindIdentifier:
		return "identifier"
	default:
		return "unknown"
	}
}

// FieldStructure groups classified dotted paths by kind. Every slice is sorted.
type FieldStructure struct {
	TextFields       []string `json:"text_fields"`
	NumericFields    []string `json:"numeric_fields"`
	DateFields       []string `json:"date_fields"`
	IdentifierFields []string `json:"identifier_fields"`
}

// Fields returns the paths classified as kind.
func (fs FieldStructure) Fields(kind FieldKind) []string {
	switch kind {
	case KindText:
		return fs.TextFields
	case KindNumeric:
		return fs.NumericFields
	case KindDate:
		return fs.DateFields
	case KindIdentifier:
		return fs.IdentifierFields
	default:
		return nil
	}
}

// Len returns the total number of classified paths.
func (fs FieldStructure) Len() int {
	return len(fs.TextFields) + len(fs.NumericFields) + len(fs.DateFields) + len(fs.IdentifierFields)
}

// FieldSet accumulates path classifications. The first kind recorded for a path wins.
type FieldSet struct {
	kinds map[string]FieldKind
}

// NewFieldSet creates an empty FieldSet.
func NewFieldSet() *FieldSet {
	return &FieldSet{kinds: make(map[string]FieldKind)}
}

// Add records kind for path. Returns false if the path was already classified.
func (s *FieldSet) Add(path string, kind FieldKind) bool {
	if _, ok := s.kinds[path]; ok {
		return false
	}
	s.kinds[path] = kind
	return true
}

// Kind returns the recorded kind for path.
func (s *FieldSet) Kind(path string) (FieldKind, bool) {
	k, ok := s.kinds[path]
	return k, ok
}

// Structure freezes the set into a FieldStructure with sorted paths.
func (s *FieldSet) Structure() FieldStructure {
	var fs FieldStructure
	for path, kind := range s.kinds {
		switch kind {
		case KindText:
			fs.TextFields = append(fs.TextFields, path)
		case KindNumeric:
			fs.NumericFields = append(fs.NumericFields, path)
		case KindDate:
			fs.DateFields = append(fs.DateFields, path)
		case KindIdentifier:
			fs.IdentifierFields = append(fs.IdentifierFields, path)
		}
	}
	sort.Strings(fs.TextFields)
	sort.Strings(fs.NumericFields)
	sort.Strings(fs.DateFields)
	sort.Strings(fs.IdentifierFields)
	return fs
}
