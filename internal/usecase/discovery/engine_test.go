package discovery

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecsync/internal/domain/change"
)

func TestSelectCollections(t *testing.T) {
	all := []string{"system.sessions", "widgets", "orders", "vector_records", "__schema"}
	tests := []struct {
		name string
		cfg  Config
		want []string
	}{
		{
			name: "auto discovery skips system collections",
			cfg:  Config{Enabled: true, Exclude: []string{"vector_records"}},
			want: []string{"widgets", "orders"},
		},
		{
			name: "allow-list only",
			cfg:  Config{Collections: []string{"orders", "missing"}},
			want: []string{"orders"},
		},
		{
			name: "allow-list first then the rest",
			cfg:  Config{Enabled: true, Collections: []string{"orders"}, Exclude: []string{"vector_records"}},
			want: []string{"orders", "widgets"},
		},
		{
			name: "disabled without allow-list stays idle",
			cfg:  Config{},
			want: nil,
		},
		{
			name: "truncated to max",
			cfg:  Config{Enabled: true, MaxCollections: 1, Exclude: []string{"vector_records"}},
			want: []string{"widgets"},
		},
		{
			name: "allow-listed system collection is still excluded",
			cfg:  Config{Collections: []string{"system.sessions"}},
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectCollections(all, tt.cfg, zap.NewNop())
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func invoices(n int) []change.Document {
	docs := make([]change.Document, n)
	for i := range docs {
		docs[i] = change.Document{
			"_id":           fmt.Sprintf("inv-%02d", i),
			"invoiceNumber": fmt.Sprintf("INV-%04d", i),
			"customer":      "Acme Corp",
			"amount":        float64(100 + i),
			"issuedOn":      "2025-03-01",
		}
	}
	return docs
}

func TestDiscover_InvoicesScenario(t *testing.T) {
	src := &fakeSource{
		collections: []string{"invoices"},
		docs:        map[string][]change.Document{"invoices": invoices(12)},
	}
	eng := New(src, Config{Enabled: true, MaxCollections: 5, SampleLimit: 100}, nil, zap.NewNop())

	reg, err := eng.Discover(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reg.Len() != 1 {
		t.Fatalf("types = %d, want 1", reg.Len())
	}
	entry, ok := reg.Lookup("invoices")
	if !ok {
		t.Fatal("expected entry named invoices")
	}
	if entry.SourceCollection != "invoices" || entry.Discriminated {
		t.Errorf("entry = %+v", entry)
	}
	if entry.SampleCount != 12 {
		t.Errorf("sample count = %d, want 12", entry.SampleCount)
	}
	fs := entry.Fields
	if !reflect.DeepEqual(fs.IdentifierFields, []string{"invoiceNumber"}) ||
		!reflect.DeepEqual(fs.TextFields, []string{"customer"}) ||
		!reflect.DeepEqual(fs.NumericFields, []string{"amount"}) ||
		!reflect.DeepEqual(fs.DateFields, []string{"issuedOn"}) {
		t.Errorf("fields = %+v", fs)
	}
}

func TestDiscover_Discriminator(t *testing.T) {
	src := &fakeSource{
		collections: []string{"records"},
		docs: map[string][]change.Document{"records": {
			{"_id": "1", "type": "asset", "name": "Pump 4", "assetCode": "P-4"},
			{"_id": "2", "type": "inspection", "notes": "Leak found", "score": int64(3)},
			{"_id": "3", "type": "asset", "name": "Valve 2"},
		}},
	}
	eng := New(src, Config{Enabled: true, SampleLimit: 10}, nil, zap.NewNop())

	reg, err := eng.Discover(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reg.Len() != 2 {
		t.Fatalf("types = %d, want 2", reg.Len())
	}
	asset, ok := reg.Lookup("asset")
	if !ok || !asset.Discriminated || asset.SampleCount != 2 {
		t.Fatalf("asset entry = %+v", asset)
	}
	if !reflect.DeepEqual(asset.Fields.IdentifierFields, []string{"assetCode"}) {
		t.Errorf("asset identifiers = %v", asset.Fields.IdentifierFields)
	}
	if _, ok := reg.Lookup("records"); ok {
		t.Error("discriminated collection must not get a collection-named entry")
	}
}

func TestDiscover_FailingCollectionIsSkipped(t *testing.T) {
	src := &fakeSource{
		collections: []string{"broken", "invoices"},
		docs:        map[string][]change.Document{"invoices": invoices(2)},
		failColl:    map[string]error{"broken": errors.New("unauthorized")},
	}
	eng := New(src, Config{Enabled: true, SampleLimit: 10}, nil, zap.NewNop())

	reg, err := eng.Discover(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(reg.Collections(), []string{"invoices"}) {
		t.Errorf("collections = %v", reg.Collections())
	}
}

func TestDiscover_ListError(t *testing.T) {
	src := &fakeSource{listErr: errors.New("no route to host")}
	if _, err := New(src, Config{Enabled: true}, nil, zap.NewNop()).Discover(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestDiscover_IdleWhenNothingSelected(t *testing.T) {
	src := &fakeSource{collections: []string{"invoices"}}
	reg, err := New(src, Config{}, nil, zap.NewNop()).Discover(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reg.Len() != 0 || src.sampleCalls != 0 {
		t.Errorf("expected idle discovery, types=%d samples=%d", reg.Len(), src.sampleCalls)
	}
}
