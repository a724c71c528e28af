// Package budget persists token budget counters in Redis/Valkey.
package budget

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/vecsync/internal/db"
	"github.com/kailas-cloud/vecsync/internal/domain"
)

// store is the consumer interface for budget operations (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// Store keeps one INCRBY counter per provider, window and bucket, each with its own TTL.
type Store struct {
	store    store
	provider string
	ttls     map[string]time.Duration
}

// New creates a budget store. ttls maps a window name ("daily", "monthly") to the
// lifetime of its counters; windows without an entry use fallbackTTL.
func New(s store, provider string, ttls map[string]time.Duration) *Store {
	return &Store{store: s, provider: provider, ttls: ttls}
}

const fallbackTTL = 62 * 24 * time.Hour

// Add increments the counter and sets its TTL on first write (EXPIRE NX).
func (s *Store) Add(ctx context.Context, window, bucket string, tokens int64) error {
	key := s.key(window, bucket)
	if err := s.store.IncrBy(ctx, key, tokens); err != nil {
		return fmt.Errorf("budget INCRBY %s: %w", key, err)
	}

	ttl, ok := s.ttls[window]
	if !ok {
		ttl = fallbackTTL
	}
	if err := s.store.Expire(ctx, key, ttl, true); err != nil {
		return fmt.Errorf("budget EXPIRE %s: %w", key, err)
	}
	return nil
}

// Used returns the counter value, 0 when the key does not exist.
func (s *Store) Used(ctx context.Context, window, bucket string) (int64, error) {
	key := s.key(window, bucket)
	data, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("budget GET %s: %w", key, err)
	}

	val, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("budget GET %s parse: %w", key, err)
	}
	return val, nil
}

func (s *Store) key(window, bucket string) string {
	return domain.KeyPrefix + "budget:" + s.provider + ":" + window + ":" + bucket
}
