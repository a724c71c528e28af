// Package record defines the derived vector record kept in sync with each source document.
package record

import (
	"errors"
	"time"
)

// Key identifies a vector record.
type Key struct {
	DocumentID string
	TenantID   string
}

// VectorRecord is the indexable representation of one source document.
type VectorRecord struct {
	DocumentID        string
	TenantID          string
	DocumentType      string
	SourceCollection  string
	Embedding         []float32
	SemanticText      string
	SearchableContent string
	EmbeddingModel    string
	SchemaVersion     int
	UpdatedAt         time.Time
}

// Key returns the record's identity.
func (r *VectorRecord) Key() Key {
	return Key{DocumentID: r.DocumentID, TenantID: r.TenantID}
}

// Validate checks the fields every backend relies on.
func (r *VectorRecord) Validate() error {
	if r.DocumentID == "" {
		return errors.New("record: document id is required")
	}
	if r.TenantID == "" {
		return errors.New("record: tenant id is required")
	}
	if len(r.Embedding) == 0 {
		return errors.New("record: embedding is required")
	}
	return nil
}

// SameContent reports whether two records carry identical derived content,
// ignoring UpdatedAt.
func (r *VectorRecord) SameContent(o *VectorRecord) bool {
	if r.Key() != o.Key() ||
		r.DocumentType != o.DocumentType ||
		r.SourceCollection != o.SourceCollection ||
		r.SemanticText != o.SemanticText ||
		r.SearchableContent != o.SearchableContent ||
		r.EmbeddingModel != o.EmbeddingModel ||
		r.SchemaVersion != o.SchemaVersion ||
		len(r.Embedding) != len(o.Embedding) {
		return false
	}
	for i := range r.Embedding {
		if r.Embedding[i] != o.Embedding[i] {
			return false
		}
	}
	return true
}
