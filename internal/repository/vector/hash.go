package vector

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/vecsync/internal/db"
	"github.com/kailas-cloud/vecsync/internal/domain"
	"github.com/kailas-cloud/vecsync/internal/domain/record"
)

var (
	hashPrefix = domain.KeyPrefix + "vec:"
	// IndexName is the FT index over vector record hashes.
	IndexName = domain.KeyPrefix + "idx:vectors"
)

const (
	fieldDocumentID   = "document_id"
	fieldTenantID     = "tenant_id"
	fieldDocumentType = "document_type"
	fieldCollection   = "source_collection"
	fieldModel        = "embedding_model"
	fieldSchema       = "schema_version"
	fieldUpdatedAt    = "updated_at"
	fieldCreatedAt    = "created_at"
	fieldSemantic     = "semantic_text"
	fieldSearchable   = "searchable_content"
	fieldVector       = "__vector"
)

// hashStore is the consumer interface for the Redis/Valkey repository (ISP).
type hashStore interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetNX(ctx context.Context, key, field, value string) (bool, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SupportsTextSearch(ctx context.Context) bool
}

// HNSWConfig holds HNSW graph parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// HashRepo stores vector records as hashes covered by an FT HNSW index.
// HSET overwrites whole field sets, so concurrent writers converge on one hash.
type HashRepo struct {
	store    hashStore
	dim      int
	distance db.DistanceMetric
	hnsw     HNSWConfig
	now      func() time.Time
}

// NewHash creates a Redis/Valkey-backed repository.
func NewHash(s hashStore, dim int, distance db.DistanceMetric, hnsw HNSWConfig) *HashRepo {
	if distance == "" {
		distance = db.DistanceCosine
	}
	return &HashRepo{store: s, dim: dim, distance: distance, hnsw: hnsw, now: time.Now}
}

// EnsureIndex creates the FT index unless it already exists.
// searchable_content is indexed as TEXT only where the backend supports it.
func (r *HashRepo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, IndexName)
	if err != nil {
		return fmt.Errorf("check index %s: %w", IndexName, err)
	}
	if exists {
		return nil
	}

	def, err := r.buildIndex(r.store.SupportsTextSearch(ctx))
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", IndexName, err)
	}
	return nil
}

func (r *HashRepo) buildIndex(textSearch bool) (*db.IndexDefinition, error) {
	b := db.NewIndex(IndexName).
		Prefix(hashPrefix).
		Tag(fieldTenantID).
		Tag(fieldDocumentType).
		Tag(fieldCollection).
		Numeric(fieldSchema).
		Numeric(fieldUpdatedAt)
	if textSearch {
		b = b.Text(fieldSearchable)
	}
	return b.VectorHNSW(fieldVector, "vector", r.dim, r.distance, r.hnsw.M, r.hnsw.EFConstruct).Build()
}

// Upsert writes rec keyed by its (document id, tenant id). Returns true if created.
func (r *HashRepo) Upsert(ctx context.Context, rec *record.VectorRecord) (bool, error) {
	if err := rec.Validate(); err != nil {
		return false, err //nolint:wrapcheck // validation message is self-describing
	}
	if r.dim > 0 && len(rec.Embedding) != r.dim {
		return false, fmt.Errorf("%w: got %d, want %d", domain.ErrVectorDimMismatch, len(rec.Embedding), r.dim)
	}

	key := hashKey(rec.Key())
	created, err := r.store.HSetNX(ctx, key, fieldCreatedAt, strconv.FormatInt(r.now().UnixMilli(), 10))
	if err != nil {
		return false, fmt.Errorf("hsetnx %s: %w", key, err)
	}
	if err := r.store.HSet(ctx, key, toHashFields(rec)); err != nil {
		return false, fmt.Errorf("hset %s: %w", key, err)
	}
	return created, nil
}

// Get returns the record for key, or domain.ErrNotFound.
func (r *HashRepo) Get(ctx context.Context, key record.Key) (*record.VectorRecord, error) {
	k := hashKey(key)
	fields, err := r.store.HGetAll(ctx, k)
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", k, err)
	}
	if len(fields) == 0 || fields[fieldDocumentID] == "" {
		return nil, fmt.Errorf("get vector %s: %w", k, domain.ErrNotFound)
	}
	return fromHashFields(fields)
}

// hashKey escapes ':' in tenant ids so tenant and document segments stay unambiguous.
func hashKey(k record.Key) string {
	return hashPrefix + strings.ReplaceAll(k.TenantID, ":", "\\:") + ":" + k.DocumentID
}

func toHashFields(rec *record.VectorRecord) map[string]string {
	return map[string]string{
		fieldDocumentID:   rec.DocumentID,
		fieldTenantID:     rec.TenantID,
		fieldDocumentType: rec.DocumentType,
		fieldCollection:   rec.SourceCollection,
		fieldModel:        rec.EmbeddingModel,
		fieldSchema:       strconv.Itoa(rec.SchemaVersion),
		fieldUpdatedAt:    strconv.FormatInt(rec.UpdatedAt.UnixMilli(), 10),
		fieldSemantic:     rec.SemanticText,
		fieldSearchable:   rec.SearchableContent,
		fieldVector:       string(db.VectorToBytes(rec.Embedding)),
	}
}

func fromHashFields(f map[string]string) (*record.VectorRecord, error) {
	vec, err := db.BytesToVector([]byte(f[fieldVector]))
	if err != nil {
		return nil, fmt.Errorf("decode vector: %w", err)
	}
	schemaVersion, err := strconv.Atoi(f[fieldSchema])
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", fieldSchema, err)
	}
	updatedMs, err := strconv.ParseInt(f[fieldUpdatedAt], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", fieldUpdatedAt, err)
	}
	return &record.VectorRecord{
		DocumentID:        f[fieldDocumentID],
		TenantID:          f[fieldTenantID],
		DocumentType:      f[fieldDocumentType],
		SourceCollection:  f[fieldCollection],
		Embedding:         vec,
		SemanticText:      f[fieldSemantic],
		SearchableContent: f[fieldSearchable],
		EmbeddingModel:    f[fieldModel],
		SchemaVersion:     schemaVersion,
		UpdatedAt:         time.UnixMilli(updatedMs).UTC(),
	}, nil
}
