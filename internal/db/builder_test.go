package db

import (
	"strings"
	"testing"
)

func TestIndexBuilder_VectorRecordShape(t *testing.T) {
	idx, err := NewIndex("vecsync:rec:idx").
		Prefix("vecsync:rec:").
		Tag("tenantId").
		Tag("documentType").
		Numeric("updatedAt").
		Text("searchableContent").
		VectorHNSW("__vector", "vector", 1536, DistanceCosine, 16, 200).
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(idx.Fields) != 5 {
		t.Fatalf("fields count = %d, want 5", len(idx.Fields))
	}
	v := idx.Fields[4]
	if v.Type != IndexFieldVector || v.Alias != "vector" || v.VectorDim != 1536 {
		t.Errorf("unexpected vector field: %+v", v)
	}
	if v.VectorM != 16 || v.VectorEFConstruct != 200 {
		t.Errorf("unexpected HNSW params: M=%d EF=%d", v.VectorM, v.VectorEFConstruct)
	}
}

func TestIndexBuilder_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		b    *IndexBuilder
	}{
		{"empty name", NewIndex("").Tag("a")},
		{"invalid name", NewIndex("bad name!").Tag("a")},
		{"no fields", NewIndex("idx")},
		{"zero dim", NewIndex("idx").VectorHNSW("v", "", 0, DistanceCosine, 0, 0)},
		{"duplicate", NewIndex("idx").Tag("a").Numeric("a")},
		{"duplicate alias", NewIndex("idx").Tag("vector").VectorHNSW("__vector", "vector", 3, DistanceL2, 0, 0)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.b.Build(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestIndexDefinition_String(t *testing.T) {
	idx, err := NewIndex("idx").Prefix("p:").Tag("t").VectorHNSW("__vector", "vector", 4, DistanceIP, 0, 0).Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := idx.String()
	for _, want := range []string{"FT.CREATE idx ON HASH", "PREFIX p:", "t TAG", "__vector AS vector VECTOR HNSW"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
}

func TestIsValidIdentifier(t *testing.T) {
	for _, ok := range []string{"a", "vecsync:rec:idx", "A_b-9"} {
		if !IsValidIdentifier(ok) {
			t.Errorf("%q should be valid", ok)
		}
	}
	for _, bad := range []string{"", "has space", "semi;colon"} {
		if IsValidIdentifier(bad) {
			t.Errorf("%q should be invalid", bad)
		}
	}
}

func TestVectorBytesRoundTrip(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 3e-7}
	out, err := BytesToVector(VectorToBytes(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}
	if _, err := BytesToVector([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated data")
	}
}
