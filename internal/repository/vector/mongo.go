// Package vector persists vector records, one per (document id, tenant id).
package vector

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/vecsync/internal/domain/record"
)

// DefaultCollection holds vector records in the primary store.
const DefaultCollection = "vector_records"

const uniqueIndexName = "documentId_tenantId_unique"

// mongoStore is the consumer interface for the Mongo-backed repository (ISP).
type mongoStore interface {
	EnsureUniqueIndex(ctx context.Context, collection, name string, keys ...string) error
	UpsertOne(ctx context.Context, collection string, filter map[string]any, set any, setOnInsert map[string]any) (bool, error)
	FindOne(ctx context.Context, collection string, filter map[string]any, out any) error
}

// MongoRepo stores vector records in a collection of the primary store.
// A unique index on (documentId, tenantId) turns concurrent first inserts into
// domain.ErrAlreadyExists for every writer but one.
type MongoRepo struct {
	store      mongoStore
	collection string
	now        func() time.Time
}

// NewMongo creates a Mongo-backed repository. An empty collection uses DefaultCollection.
func NewMongo(s mongoStore, collection string) *MongoRepo {
	if collection == "" {
		collection = DefaultCollection
	}
	return &MongoRepo{store: s, collection: collection, now: time.Now}
}

// EnsureIndex creates the unique key index.
func (r *MongoRepo) EnsureIndex(ctx context.Context) error {
	if err := r.store.EnsureUniqueIndex(ctx, r.collection, uniqueIndexName, "documentId", "tenantId"); err != nil {
		return fmt.Errorf("ensure vector index: %w", err)
	}
	return nil
}

// Upsert writes rec keyed by its (document id, tenant id). Returns true if created.
func (r *MongoRepo) Upsert(ctx context.Context, rec *record.VectorRecord) (bool, error) {
	if err := rec.Validate(); err != nil {
		return false, err //nolint:wrapcheck // validation message is self-describing
	}
	filter := map[string]any{"documentId": rec.DocumentID, "tenantId": rec.TenantID}
	created, err := r.store.UpsertOne(ctx, r.collection, filter, toMongoDTO(rec),
		map[string]any{"createdAt": r.now().UTC()})
	if err != nil {
		return false, fmt.Errorf("upsert vector %s/%s: %w", rec.TenantID, rec.DocumentID, err)
	}
	return created, nil
}

// Get returns the record for key, or domain.ErrNotFound.
func (r *MongoRepo) Get(ctx context.Context, key record.Key) (*record.VectorRecord, error) {
	var dto mongoDTO
	filter := map[string]any{"documentId": key.DocumentID, "tenantId": key.TenantID}
	if err := r.store.FindOne(ctx, r.collection, filter, &dto); err != nil {
		return nil, fmt.Errorf("get vector %s/%s: %w", key.TenantID, key.DocumentID, err)
	}
	return dto.toRecord(), nil
}

type mongoDTO struct {
	DocumentID        string    `bson:"documentId"`
	TenantID          string    `bson:"tenantId"`
	DocumentType      string    `bson:"documentType"`
	SourceCollection  string    `bson:"sourceCollection"`
	Embedding         []float32 `bson:"embedding"`
	SemanticText      string    `bson:"semanticText"`
	SearchableContent string    `bson:"searchableContent"`
	EmbeddingModel    string    `bson:"embeddingModel"`
	SchemaVersion     int       `bson:"schemaVersion"`
	UpdatedAt         time.Time `bson:"updatedAt"`
}

func toMongoDTO(rec *record.VectorRecord) mongoDTO {
	return mongoDTO{
		DocumentID:        rec.DocumentID,
		TenantID:          rec.TenantID,
		DocumentType:      rec.DocumentType,
		SourceCollection:  rec.SourceCollection,
		Embedding:         rec.Embedding,
		SemanticText:      rec.SemanticText,
		SearchableContent: rec.SearchableContent,
		EmbeddingModel:    rec.EmbeddingModel,
		SchemaVersion:     rec.SchemaVersion,
		UpdatedAt:         rec.UpdatedAt.UTC(),
	}
}

func (d *mongoDTO) toRecord() *record.VectorRecord {
	return &record.VectorRecord{
		DocumentID:        d.DocumentID,
		TenantID:          d.TenantID,
		DocumentType:      d.DocumentType,
		SourceCollection:  d.SourceCollection,
		Embedding:         d.Embedding,
		SemanticText:      d.SemanticText,
		SearchableContent: d.SearchableContent,
		EmbeddingModel:    d.EmbeddingModel,
		SchemaVersion:     d.SchemaVersion,
		UpdatedAt:         d.UpdatedAt,
	}
}
