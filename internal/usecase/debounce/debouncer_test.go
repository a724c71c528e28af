package debounce

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecsync/internal/domain/change"
)

type fired struct {
	collection string
	doc        change.Document
}

type recorder struct {
	mu    sync.Mutex
	calls []fired
	ch    chan fired
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan fired, 16)}
}

func (r *recorder) handle(collection string, doc change.Document) {
	r.mu.Lock()
	r.calls = append(r.calls, fired{collection, doc})
	r.mu.Unlock()
	r.ch <- fired{collection, doc}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recorder) wait(t *testing.T) fired {
	t.Helper()
	select {
	case f := <-r.ch:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not called")
		return fired{}
	}
}

func TestNotify_CoalescesBurst(t *testing.T) {
	rec := newRecorder()
	d := New(Config{Interval: 50 * time.Millisecond}, rec.handle, zap.NewNop())
	defer d.Stop()

	for i := range 5 {
		if !d.Notify("invoices", change.Document{"_id": "a", "rev": int64(i)}) {
			t.Fatalf("notify %d dropped", i)
		}
	}
	if d.Pending() != 1 {
		t.Errorf("pending = %d, want 1", d.Pending())
	}

	got := rec.wait(t)
	if got.collection != "invoices" || got.doc["rev"] != int64(4) {
		t.Errorf("fired %+v, want last state rev=4", got)
	}

	time.Sleep(150 * time.Millisecond)
	if rec.count() != 1 {
		t.Errorf("handler calls = %d, want 1", rec.count())
	}
	if d.Pending() != 0 {
		t.Errorf("pending = %d after fire", d.Pending())
	}
}

func TestNotify_SeparateKeys(t *testing.T) {
	rec := newRecorder()
	d := New(Config{Interval: 20 * time.Millisecond}, rec.handle, zap.NewNop())
	defer d.Stop()

	d.Notify("invoices", change.Document{"_id": "a"})
	d.Notify("invoices", change.Document{"_id": "b"})
	d.Notify("orders", change.Document{"_id": "a"})

	for range 3 {
		rec.wait(t)
	}
	if rec.count() != 3 {
		t.Errorf("handler calls = %d, want 3", rec.count())
	}
}

func TestNotify_FreshnessGuard(t *testing.T) {
	rec := newRecorder()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	d := New(Config{Interval: 10 * time.Millisecond, Freshness: 5 * time.Second}, rec.handle, zap.NewNop())
	d.now = func() time.Time { return now }
	defer d.Stop()

	fresh := change.Document{"_id": "a", DefaultIndexedAtField: now.Add(-2 * time.Second)}
	if d.Notify("invoices", fresh) {
		t.Error("self-triggered change should be dropped")
	}

	freshString := change.Document{"_id": "b", DefaultIndexedAtField: now.Add(-time.Second).Format(time.RFC3339)}
	if d.Notify("invoices", freshString) {
		t.Error("ISO string stamp should also be recognised")
	}

	stale := change.Document{"_id": "c", DefaultIndexedAtField: now.Add(-time.Minute)}
	if !d.Notify("invoices", stale) {
		t.Error("old stamp must not block a real edit")
	}
	rec.wait(t)
}

func TestNotify_NoID(t *testing.T) {
	d := New(Config{}, func(string, change.Document) {}, zap.NewNop())
	defer d.Stop()
	if d.Notify("invoices", change.Document{"name": "x"}) {
		t.Error("document without id must be dropped")
	}
}

func TestStop_ClearsWithoutFiring(t *testing.T) {
	rec := newRecorder()
	d := New(Config{Interval: 30 * time.Millisecond}, rec.handle, zap.NewNop())

	d.Notify("invoices", change.Document{"_id": "a"})
	d.Notify("invoices", change.Document{"_id": "b"})
	d.Stop()
	d.Stop()

	if d.Pending() != 0 {
		t.Errorf("pending = %d after stop", d.Pending())
	}
	if d.Notify("invoices", change.Document{"_id": "c"}) {
		t.Error("notify after stop should be dropped")
	}

	time.Sleep(100 * time.Millisecond)
	if rec.count() != 0 {
		t.Errorf("handler calls = %d after stop, want 0", rec.count())
	}
}
