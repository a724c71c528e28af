package indexing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecsync/internal/domain"
	"github.com/kailas-cloud/vecsync/internal/domain/change"
	"github.com/kailas-cloud/vecsync/internal/domain/record"
	"github.com/kailas-cloud/vecsync/internal/domain/schema"
	"github.com/kailas-cloud/vecsync/internal/metrics"
	"github.com/kailas-cloud/vecsync/internal/usecase/embedding"
)

func TestProcess_IndexesAndStamps(t *testing.T) {
	p, deps := newTestProcessor(testConfig(), nil)
	fixed := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	out := p.Process(context.Background(), "invoices", invoiceDoc("1"))
	if out.Status != StatusIndexed || out.Err != nil {
		t.Fatalf("outcome = %+v", out)
	}

	rec, ok := deps.store.get(record.Key{DocumentID: "1", TenantID: "acme"})
	if !ok {
		t.Fatal("record not stored")
	}
	if rec.DocumentType != "invoices" || rec.SourceCollection != "invoices" ||
		rec.EmbeddingModel != "test-model" || rec.SchemaVersion != 1 || !rec.UpdatedAt.Equal(fixed) {
		t.Errorf("record = %+v", rec)
	}
	if rec.SemanticText == "" || rec.SearchableContent == "" {
		t.Error("rendered text missing")
	}

	if len(deps.stamper.calls) != 1 {
		t.Fatalf("stamp calls = %d", len(deps.stamper.calls))
	}
	if sc := deps.stamper.calls[0]; sc.field != "_vectorIndexedAt" || sc.id != "1" || !sc.at.Equal(fixed) {
		t.Errorf("stamp = %+v", sc)
	}
}

func TestProcess_StampKeepsRawIDType(t *testing.T) {
	tests := []struct {
		name   string
		id     any
		wantID string
	}{
		{"numeric id", int64(42), "42"},
		{"object id", change.ObjectID("507f1f77bcf86cd799439011"), "507f1f77bcf86cd799439011"},
		{"hex-looking string", "507f1f77bcf86cd799439011", "507f1f77bcf86cd799439011"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, deps := newTestProcessor(testConfig(), nil)
			doc := invoiceDoc("x")
			doc["_id"] = tt.id

			out := p.Process(context.Background(), "invoices", doc)
			if out.Status != StatusIndexed {
				t.Fatalf("outcome = %+v", out)
			}
			if _, ok := deps.store.get(record.Key{DocumentID: tt.wantID, TenantID: "acme"}); !ok {
				t.Errorf("record not stored under %q", tt.wantID)
			}
			if len(deps.stamper.calls) != 1 {
				t.Fatalf("stamp calls = %d", len(deps.stamper.calls))
			}
			if got := deps.stamper.calls[0].id; got != tt.id {
				t.Errorf("stamped id = %#v (%T), want %#v (%T)", got, got, tt.id, tt.id)
			}
		})
	}
}

func TestProcess_Idempotent(t *testing.T) {
	p, deps := newTestProcessor(testConfig(), nil)
	key := record.Key{DocumentID: "1", TenantID: "acme"}

	p.Process(context.Background(), "invoices", invoiceDoc("1"))
	first, _ := deps.store.get(key)
	p.now = func() time.Time { return time.Now().Add(time.Hour) }
	p.Process(context.Background(), "invoices", invoiceDoc("1"))
	second, _ := deps.store.get(key)

	if !first.SameContent(&second) {
		t.Errorf("records differ:\n%+v\n%+v", first, second)
	}
	if first.UpdatedAt.Equal(second.UpdatedAt) {
		t.Error("updatedAt should move forward")
	}
}

func TestProcess_DefaultTenant(t *testing.T) {
	p, deps := newTestProcessor(testConfig(), nil)
	doc := invoiceDoc("7")
	delete(doc, "tenantId")

	p.Process(context.Background(), "invoices", doc)
	if _, ok := deps.store.get(record.Key{DocumentID: "7", TenantID: DefaultTenant}); !ok {
		t.Error("expected record under default tenant")
	}
}

func TestProcess_ShortTextSkipped(t *testing.T) {
	p, deps := newTestProcessor(testConfig(), nil)
	p.resolve = func(string, change.Document) (string, schema.FieldStructure) {
		return "x", schema.FieldStructure{}
	}

	out := p.Process(context.Background(), "x", change.Document{"_id": "1"})
	if out.Status != StatusSkippedShort || out.Err != nil {
		t.Fatalf("outcome = %+v", out)
	}
	if deps.embedder.callCount() != 0 || deps.store.calls != 0 {
		t.Error("short text must not reach the provider or the store")
	}
}

func TestProcess_BoundedRetryThenDrop(t *testing.T) {
	failing := &hashEmbedder{err: domain.NewRetryable(errors.New("503 from provider"))}
	retrying := embedding.NewRetryingEmbedder(failing, 3, time.Millisecond, zap.NewNop())
	p, deps := newTestProcessor(testConfig(), retrying)

	errorsBefore := testutil.ToFloat64(metrics.PipelineErrorsTotal.WithLabelValues("embed"))
	out := p.Process(context.Background(), "invoices", invoiceDoc("1"))

	if out.Status != StatusFailed || out.Stage != "embed" {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Attempts != 3 || failing.callCount() != 3 {
		t.Errorf("attempts = %d, provider calls = %d, want 3", out.Attempts, failing.callCount())
	}
	if deps.store.calls != 0 {
		t.Error("no record may be written after embedding failure")
	}
	if got := testutil.ToFloat64(metrics.PipelineErrorsTotal.WithLabelValues("embed")) - errorsBefore; got != 1 {
		t.Errorf("embed error counter delta = %v, want 1", got)
	}
}

func TestProcess_UpsertFailureDropped(t *testing.T) {
	p, deps := newTestProcessor(testConfig(), nil)
	deps.store.err = errors.New("not primary")

	out := p.Process(context.Background(), "invoices", invoiceDoc("1"))
	if out.Status != StatusFailed || out.Stage != "upsert" || !out.Embedded {
		t.Fatalf("outcome = %+v", out)
	}
	if len(deps.stamper.calls) != 0 {
		t.Error("failed upsert must not stamp the source")
	}
}

func TestProcess_StampFailureStillIndexed(t *testing.T) {
	p, deps := newTestProcessor(testConfig(), nil)
	deps.stamper.err = errors.New("write conflict")

	if out := p.Process(context.Background(), "invoices", invoiceDoc("1")); out.Status != StatusIndexed {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestProcess_PanicRecovered(t *testing.T) {
	p, _ := newTestProcessor(testConfig(), nil)
	p.resolve = func(string, change.Document) (string, schema.FieldStructure) {
		panic("boom")
	}

	out := p.Process(context.Background(), "invoices", invoiceDoc("1"))
	if out.Status != StatusFailed || out.Stage != "panic" || out.Err == nil {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestUpsert_DuplicateRetriedThenWritten(t *testing.T) {
	p, deps := newTestProcessor(testConfig(), nil)
	deps.store.collisions = 2
	before := testutil.ToFloat64(metrics.DuplicateRetriesTotal)

	written, err := p.Upsert(context.Background(), &record.VectorRecord{
		DocumentID: "1", TenantID: "acme", Embedding: []float32{1},
	})
	if err != nil || !written {
		t.Fatalf("written = %v, err = %v", written, err)
	}
	if deps.store.calls != 3 {
		t.Errorf("store calls = %d, want 3", deps.store.calls)
	}
	if got := testutil.ToFloat64(metrics.DuplicateRetriesTotal) - before; got != 2 {
		t.Errorf("duplicate retries delta = %v, want 2", got)
	}
}

func TestUpsert_PersistentDuplicateIsBenign(t *testing.T) {
	p, deps := newTestProcessor(testConfig(), nil)
	deps.store.collisions = 100

	written, err := p.Upsert(context.Background(), &record.VectorRecord{
		DocumentID: "1", TenantID: "acme", Embedding: []float32{1},
	})
	if err != nil || written {
		t.Fatalf("written = %v, err = %v; want benign skip", written, err)
	}
	if deps.store.calls != 4 {
		t.Errorf("store calls = %d, want 1 + 3 retries", deps.store.calls)
	}

	out := p.Process(context.Background(), "invoices", invoiceDoc("2"))
	if out.Status != StatusSkippedDuplicate || out.Err != nil {
		t.Errorf("outcome = %+v", out)
	}
}

func TestProcess_ConcurrentDuplicateConverges(t *testing.T) {
	p, deps := newTestProcessor(testConfig(), nil)
	deps.store.collisions = 1

	var wg sync.WaitGroup
	outs := make([]Outcome, 2)
	for i := range outs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outs[i] = p.Process(context.Background(), "invoices", invoiceDoc("1"))
		}()
	}
	wg.Wait()

	for i, out := range outs {
		if out.Err != nil || out.Status != StatusIndexed {
			t.Errorf("caller %d outcome = %+v", i, out)
		}
	}
	deps.store.mu.Lock()
	n := len(deps.store.records)
	deps.store.mu.Unlock()
	if n != 1 {
		t.Errorf("records = %d, want exactly 1", n)
	}
}

func TestConfig_MaxUpsertDelay(t *testing.T) {
	cfg := Config{DuplicateRetries: 3, DuplicateBaseDelay: 100 * time.Millisecond}
	if got := cfg.MaxUpsertDelay(); got != 600*time.Millisecond {
		t.Errorf("MaxUpsertDelay = %v, want 600ms", got)
	}
}
