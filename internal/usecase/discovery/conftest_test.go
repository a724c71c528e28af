package discovery

import (
	"context"
	"sync"

	"github.com/kailas-cloud/vecsync/internal/domain/change"
)

// fakeSource is an in-memory Source keyed by collection.
type fakeSource struct {
	mu          sync.Mutex
	collections []string
	docs        map[string][]change.Document
	listErr     error
	failColl    map[string]error
	sampleCalls int
}

func (f *fakeSource) ListCollections(context.Context) ([]string, error) {
	return f.collections, f.listErr
}

func (f *fakeSource) Distinct(_ context.Context, coll, field string) ([]any, error) {
	if err := f.failColl[coll]; err != nil {
		return nil, err
	}
	seen := map[any]bool{}
	var out []any
	for _, d := range f.docs[coll] {
		v, ok := d[field]
		if !ok || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out, nil
}

func (f *fakeSource) match(coll string, filter map[string]any) []change.Document {
	var out []change.Document
	for _, d := range f.docs[coll] {
		ok := true
		for k, v := range filter {
			if d[k] != v {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, d)
		}
	}
	return out
}

func (f *fakeSource) Sample(_ context.Context, coll string, filter map[string]any, limit int64) ([]change.Document, error) {
	f.mu.Lock()
	f.sampleCalls++
	f.mu.Unlock()
	docs := f.match(coll, filter)
	if limit > 0 && int64(len(docs)) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

func (f *fakeSource) Count(_ context.Context, coll string, filter map[string]any, limit int64) (int64, error) {
	n := int64(len(f.match(coll, filter)))
	if limit > 0 && n > limit {
		n = limit
	}
	return n, nil
}
