package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kailas-cloud/vecsync/internal/domain"
	"github.com/kailas-cloud/vecsync/internal/domain/change"
	"github.com/kailas-cloud/vecsync/internal/domain/record"
	"github.com/kailas-cloud/vecsync/internal/usecase/subscription"
)

// fakeStream delivers events pushed by the test until its context ends.
type fakeStream struct {
	events chan change.Event
}

func (s *fakeStream) Next(ctx context.Context) (change.Event, error) {
	select {
	case ev := <-s.events:
		return ev, nil
	case <-ctx.Done():
		return change.Event{}, ctx.Err()
	}
}

func (s *fakeStream) ResumeToken() []byte           { return nil }
func (s *fakeStream) Close(_ context.Context) error { return nil }

// fakeStore is an in-memory primary store: discovery reads, change feeds and scans.
type fakeStore struct {
	mu      sync.Mutex
	docs    map[string][]change.Document
	streams map[string]*fakeStream
	listErr error
	stamped map[string]time.Time
}

func newFakeStore(docs map[string][]change.Document) *fakeStore {
	return &fakeStore{
		docs:    docs,
		streams: map[string]*fakeStream{},
		stamped: map[string]time.Time{},
	}
}

func (f *fakeStore) ListCollections(context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]string, 0, len(f.docs))
	for name := range f.docs {
		out = append(out, name)
	}
	return out, nil
}

func (f *fakeStore) Distinct(_ context.Context, coll, field string) ([]any, error) {
	seen := map[any]bool{}
	var out []any
	for _, d := range f.docs[coll] {
		if v, ok := d[field]; ok && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeStore) Sample(_ context.Context, coll string, _ map[string]any, limit int64) ([]change.Document, error) {
	docs := f.docs[coll]
	if limit > 0 && int64(len(docs)) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

func (f *fakeStore) Count(_ context.Context, coll string, _ map[string]any, limit int64) (int64, error) {
	n := int64(len(f.docs[coll]))
	if limit > 0 && n > limit {
		n = limit
	}
	return n, nil
}

func (f *fakeStore) Scan(
	ctx context.Context, coll string, _ map[string]any, _ int32, fn func(change.Document) error,
) error {
	for _, d := range f.docs[coll] {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(d); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeStore) MarkIndexed(_ context.Context, collection string, id any, _ string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stamped[fmt.Sprintf("%s/%v", collection, id)] = at
	return nil
}

func (f *fakeStore) open(_ context.Context, coll string, _ []byte) (subscription.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.streams[coll]
	if !ok {
		s = &fakeStream{events: make(chan change.Event, 64)}
		f.streams[coll] = s
	}
	return s, nil
}

// push emits an insert event on coll's feed.
func (f *fakeStore) push(coll string, doc change.Document) {
	f.mu.Lock()
	s := f.streams[coll]
	f.mu.Unlock()
	s.events <- change.Event{
		Collection: coll,
		Operation:  change.OpInsert,
		DocumentID: doc.ID(),
		Document:   doc,
	}
}

// countingEmbedder returns a fixed-size vector and counts calls.
// A non-zero delay holds each call until it elapses or ctx ends.
type countingEmbedder struct {
	delay time.Duration
	mu    sync.Mutex
	texts []string
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if e.delay > 0 {
		select {
		case <-ctx.Done():
			return domain.EmbeddingResult{}, ctx.Err()
		case <-time.After(e.delay):
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.texts = append(e.texts, text)
	return domain.EmbeddingResult{Embedding: []float32{float32(len(text)), 1, 0}}, nil
}

func (e *countingEmbedder) calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.texts)
}

type memVectors struct {
	mu      sync.Mutex
	records map[record.Key]record.VectorRecord
}

func (m *memVectors) Upsert(_ context.Context, rec *record.VectorRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records == nil {
		m.records = map[record.Key]record.VectorRecord{}
	}
	_, existed := m.records[rec.Key()]
	m.records[rec.Key()] = *rec
	return !existed, nil
}

func (m *memVectors) all() []record.VectorRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]record.VectorRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	return out
}

func invoices(n int) []change.Document {
	docs := make([]change.Document, n)
	for i := range docs {
		docs[i] = invoice(fmt.Sprintf("inv-%02d", i))
	}
	return docs
}

func invoice(id string) change.Document {
	return change.Document{
		"_id":           id,
		"tenantId":      "acme",
		"invoiceNumber": "INV-" + id,
		"customer":      "Acme Corp",
		"amount":        float64(120),
	}
}
