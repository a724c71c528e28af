package budget

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/vecsync/internal/db"
)

type expireCall struct {
	key string
	ttl time.Duration
	nx  bool
}

type mockKV struct {
	values  map[string]int64
	raw     map[string][]byte
	expires []expireCall
	incrErr error
}

func newMockKV() *mockKV {
	return &mockKV{values: map[string]int64{}, raw: map[string][]byte{}}
}

func (m *mockKV) Get(_ context.Context, key string) ([]byte, error) {
	if b, ok := m.raw[key]; ok {
		return b, nil
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockKV) IncrBy(_ context.Context, key string, val int64) error {
	if m.incrErr != nil {
		return m.incrErr
	}
	m.values[key] += val
	return nil
}

func (m *mockKV) Expire(_ context.Context, key string, ttl time.Duration, nx bool) error {
	m.expires = append(m.expires, expireCall{key, ttl, nx})
	return nil
}

func TestStore_AddUsesWindowTTL(t *testing.T) {
	kv := newMockKV()
	s := New(kv, "openai", map[string]time.Duration{"daily": 48 * time.Hour})

	if err := s.Add(context.Background(), "daily", "2025-06-15", 10); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(context.Background(), "monthly", "2025-06", 10); err != nil {
		t.Fatalf("Add: %v", err)
	}

	if kv.values["vecsync:budget:openai:daily:2025-06-15"] != 10 {
		t.Errorf("unexpected counters: %v", kv.values)
	}
	if len(kv.expires) != 2 {
		t.Fatalf("expire calls = %d, want 2", len(kv.expires))
	}
	if kv.expires[0].ttl != 48*time.Hour || !kv.expires[0].nx {
		t.Errorf("daily expire = %+v", kv.expires[0])
	}
	if kv.expires[1].ttl != fallbackTTL {
		t.Errorf("monthly expire should fall back, got %v", kv.expires[1].ttl)
	}
}

func TestStore_AddError(t *testing.T) {
	kv := newMockKV()
	kv.incrErr = errors.New("READONLY")
	s := New(kv, "openai", nil)

	if err := s.Add(context.Background(), "daily", "b", 1); err == nil {
		t.Fatal("expected error")
	}
	if len(kv.expires) != 0 {
		t.Error("expire must not run after a failed increment")
	}
}

func TestStore_Used(t *testing.T) {
	kv := newMockKV()
	kv.raw["vecsync:budget:p:daily:b"] = []byte("42")
	kv.raw["vecsync:budget:p:daily:bad"] = []byte("nope")
	s := New(kv, "p", nil)

	if v, err := s.Used(context.Background(), "daily", "b"); err != nil || v != 42 {
		t.Errorf("Used = %d, %v", v, err)
	}
	if v, err := s.Used(context.Background(), "daily", "missing"); err != nil || v != 0 {
		t.Errorf("missing key: Used = %d, %v", v, err)
	}
	if _, err := s.Used(context.Background(), "daily", "bad"); err == nil {
		t.Error("expected parse error")
	}
}
