package schema

// DocumentTypeEntry describes one discovered document type.
type DocumentTypeEntry struct {
	TypeName         string         `json:"type_name"`
	SourceCollection string         `json:"source_collection"`
	Fields           FieldStructure `json:"fields"`
	// SampleCount is capped at the discovery sample limit; it is not an exact count.
	SampleCount int64 `json:"sample_count"`
	// Discriminated is true when the type came from a discriminator value rather than the collection name.
	Discriminated bool `json:"discriminated"`
}

// Registry maps type names to entries. It is built once and never mutated,
// so concurrent readers need no locking.
type Registry struct {
	entries     map[string]DocumentTypeEntry
	order       []string
	collections []string
}

// NewRegistry builds a registry. When two entries share a type name the first one wins.
func NewRegistry(entries ...DocumentTypeEntry) *Registry {
	r := &Registry{entries: make(map[string]DocumentTypeEntry, len(entries))}
	seenColl := make(map[string]struct{})
	for _, e := range entries {
		if _, dup := r.entries[e.TypeName]; dup {
			continue
		}
		r.entries[e.TypeName] = e
		r.order = append(r.order, e.TypeName)
		if _, ok := seenColl[e.SourceCollection]; !ok {
			seenColl[e.SourceCollection] = struct{}{}
			r.collections = append(r.collections, e.SourceCollection)
		}
	}
	return r
}

// Lookup returns the entry for typeName.
func (r *Registry) Lookup(typeName string) (DocumentTypeEntry, bool) {
	if r == nil {
		return DocumentTypeEntry{}, false
	}
	e, ok := r.entries[typeName]
	return e, ok
}

// Resolve picks the entry for a document from collection: the entry named by its
// discriminator value first, then the entry named after the collection.
func (r *Registry) Resolve(collection, discriminatorValue string) (DocumentTypeEntry, bool) {
	if discriminatorValue != "" {
		if e, ok := r.Lookup(discriminatorValue); ok {
			return e, true
		}
	}
	e, ok := r.Lookup(collection)
	if ok && e.SourceCollection == collection {
		return e, true
	}
	return DocumentTypeEntry{}, false
}

// Entries returns entries in registration order.
func (r *Registry) Entries() []DocumentTypeEntry {
	if r == nil {
		return nil
	}
	out := make([]DocumentTypeEntry, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name])
	}
	return out
}

// Collections returns the distinct source collections in registration order.
func (r *Registry) Collections() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.collections))
	copy(out, r.collections)
	return out
}

// Len returns the number of types.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}
