package indexing

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecsync/internal/domain"
	"github.com/kailas-cloud/vecsync/internal/domain/change"
	"github.com/kailas-cloud/vecsync/internal/domain/record"
	"github.com/kailas-cloud/vecsync/internal/domain/schema"
	"github.com/kailas-cloud/vecsync/internal/usecase/semantic"
)

// hashEmbedder returns a deterministic vector derived from the text.
type hashEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *hashEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return domain.EmbeddingResult{}, e.err
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	sum := h.Sum32()
	return domain.EmbeddingResult{
		Embedding:   []float32{float32(sum%97) / 97, float32(sum%89) / 89, float32(len(text))},
		TotalTokens: len(text) / 4,
	}, nil
}

func (e *hashEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// memVectorStore enforces one record per key. collisions scripts how many
// upcoming writes fail with a duplicate-key error.
type memVectorStore struct {
	mu         sync.Mutex
	records    map[record.Key]record.VectorRecord
	collisions int
	err        error
	calls      int
}

func newMemVectorStore() *memVectorStore {
	return &memVectorStore{records: map[record.Key]record.VectorRecord{}}
}

func (s *memVectorStore) Upsert(_ context.Context, rec *record.VectorRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return false, s.err
	}
	if s.collisions > 0 {
		s.collisions--
		return false, domain.ErrAlreadyExists
	}
	_, existed := s.records[rec.Key()]
	cp := *rec
	cp.Embedding = append([]float32(nil), rec.Embedding...)
	s.records[rec.Key()] = cp
	return !existed, nil
}

func (s *memVectorStore) get(k record.Key) (record.VectorRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[k]
	return r, ok
}

type stampCall struct {
	collection, field string
	id                any
	at                time.Time
}

type fakeStamper struct {
	mu    sync.Mutex
	calls []stampCall
	err   error
}

func (f *fakeStamper) MarkIndexed(_ context.Context, collection string, id any, field string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, stampCall{collection: collection, field: field, id: id, at: at})
	return f.err
}

var invoiceFields = schema.FieldStructure{
	TextFields:       []string{"customer"},
	IdentifierFields: []string{"invoiceNumber"},
	NumericFields:    []string{"amount"},
}

func staticResolver(collection string, _ change.Document) (string, schema.FieldStructure) {
	return collection, invoiceFields
}

func invoiceDoc(id string) change.Document {
	return change.Document{
		"_id":           id,
		"tenantId":      "acme",
		"invoiceNumber": "INV-" + id,
		"customer":      "Acme Corp",
		"amount":        int64(420),
	}
}

func testConfig() Config {
	return Config{
		DuplicateRetries:   3,
		DuplicateBaseDelay: time.Millisecond,
		IndexedAtField:     "_vectorIndexedAt",
		StampSource:        true,
		EmbeddingModel:     "test-model",
		SchemaVersion:      1,
	}
}

type testDeps struct {
	embedder *hashEmbedder
	store    *memVectorStore
	stamper  *fakeStamper
}

func newTestProcessor(cfg Config, embedder domain.Embedder) (*Processor, *testDeps) {
	deps := &testDeps{store: newMemVectorStore(), stamper: &fakeStamper{}}
	if embedder == nil {
		deps.embedder = &hashEmbedder{}
		embedder = deps.embedder
	}
	b, err := semantic.NewBuilder(semantic.Options{})
	if err != nil {
		panic(err)
	}
	p := NewProcessor(cfg, b, embedder, deps.store, deps.stamper, staticResolver, zap.NewNop())
	return p, deps
}
