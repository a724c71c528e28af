package vector

import (
	"context"
	"testing"
	"time"

	"github.com/kailas-cloud/vecsync/internal/db"
	"github.com/kailas-cloud/vecsync/internal/domain/record"
)

// mockMongo implements mongoStore for tests.
type mockMongo struct {
	ensureFn func(ctx context.Context, collection, name string, keys ...string) error
	upsertFn func(
		ctx context.Context, collection string, filter map[string]any, set any, setOnInsert map[string]any,
	) (bool, error)
	findFn func(ctx context.Context, collection string, filter map[string]any, out any) error
}

func (m *mockMongo) EnsureUniqueIndex(ctx context.Context, collection, name string, keys ...string) error {
	if m.ensureFn != nil {
		return m.ensureFn(ctx, collection, name, keys...)
	}
	return nil
}

func (m *mockMongo) UpsertOne(
	ctx context.Context, collection string, filter map[string]any, set any, setOnInsert map[string]any,
) (bool, error) {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, collection, filter, set, setOnInsert)
	}
	return true, nil
}

func (m *mockMongo) FindOne(ctx context.Context, collection string, filter map[string]any, out any) error {
	if m.findFn != nil {
		return m.findFn(ctx, collection, filter, out)
	}
	return nil
}

// memHash is an in-memory hashStore.
type memHash struct {
	hashes      map[string]map[string]string
	indexExists bool
	textSearch  bool
	created     []*db.IndexDefinition
	createErr   error
	hsetErr     error
}

func newMemHash() *memHash {
	return &memHash{hashes: map[string]map[string]string{}}
}

func (m *memHash) HSet(_ context.Context, key string, fields map[string]string) error {
	if m.hsetErr != nil {
		return m.hsetErr
	}
	h, ok := m.hashes[key]
	if !ok {
		h = map[string]string{}
		m.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (m *memHash) HSetNX(_ context.Context, key, field, value string) (bool, error) {
	h, ok := m.hashes[key]
	if !ok {
		h = map[string]string{}
		m.hashes[key] = h
	}
	if _, exists := h[field]; exists {
		return false, nil
	}
	h[field] = value
	return true, nil
}

func (m *memHash) HGetAll(_ context.Context, key string) (map[string]string, error) {
	out := map[string]string{}
	for k, v := range m.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (m *memHash) CreateIndex(_ context.Context, def *db.IndexDefinition) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, def)
	return nil
}

func (m *memHash) IndexExists(_ context.Context, _ string) (bool, error) {
	return m.indexExists, nil
}

func (m *memHash) SupportsTextSearch(_ context.Context) bool {
	return m.textSearch
}

func testRecord(t *testing.T) *record.VectorRecord {
	t.Helper()
	return &record.VectorRecord{
		DocumentID:        "65f0c0ffee",
		TenantID:          "acme",
		DocumentType:      "invoices",
		SourceCollection:  "invoices",
		Embedding:         []float32{0.25, -0.5, 1},
		SemanticText:      "Type: invoices\nnumber: INV-1",
		SearchableContent: "invoices number inv-1",
		EmbeddingModel:    "text-embedding-3-small",
		SchemaVersion:     1,
		UpdatedAt:         time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC),
	}
}
