package indexing

import (
	"context"
	"time"

	"github.com/kailas-cloud/vecsync/internal/domain/change"
	"github.com/kailas-cloud/vecsync/internal/domain/record"
	"github.com/kailas-cloud/vecsync/internal/domain/schema"
)

// VectorStore persists vector records keyed by (document id, tenant id).
// A duplicate-key race surfaces as domain.ErrAlreadyExists.
type VectorStore interface {
	Upsert(ctx context.Context, rec *record.VectorRecord) (bool, error)
}

// Stamper records on the source document when it was last indexed. id is the
// document's primary key in its stored form (change.Document.RawID).
type Stamper interface {
	MarkIndexed(ctx context.Context, collection string, id any, field string, at time.Time) error
}

// TextBuilder renders documents into embedding input and keyword content.
type TextBuilder interface {
	BuildSemanticText(typeName string, doc change.Document, fs schema.FieldStructure) string
	BuildSearchableContent(typeName string, doc change.Document, fs schema.FieldStructure) string
}

// TypeResolver names the document type of doc and returns its field classification.
type TypeResolver func(collection string, doc change.Document) (typeName string, fs schema.FieldStructure)
