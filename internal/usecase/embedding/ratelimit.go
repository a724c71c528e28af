package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/kailas-cloud/vecsync/internal/domain"
	"github.com/kailas-cloud/vecsync/internal/metrics"
)

// DefaultRateLimitCooldown is how long calls pause after the provider answers 429.
const DefaultRateLimitCooldown = 2 * time.Second

// RateLimitedEmbedder bounds provider calls with a token bucket and a concurrency cap.
// When the provider reports a rate limit, new calls hold off for a cooldown period.
type RateLimitedEmbedder struct {
	inner    domain.Embedder
	limiter  *rate.Limiter
	slots    *semaphore.Weighted
	cooldown time.Duration

	mu      sync.Mutex
	retryAt time.Time
}

// NewRateLimitedEmbedder wraps inner. rps <= 0 disables the token bucket;
// concurrency <= 0 disables the concurrency cap.
func NewRateLimitedEmbedder(inner domain.Embedder, rps float64, burst, concurrency int) *RateLimitedEmbedder {
	e := &RateLimitedEmbedder{inner: inner, cooldown: DefaultRateLimitCooldown}
	if rps > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
	if concurrency > 0 {
		e.slots = semaphore.NewWeighted(int64(concurrency))
	}
	return e
}

// WithCooldown overrides the pause applied after a provider rate-limit answer.
func (e *RateLimitedEmbedder) WithCooldown(d time.Duration) *RateLimitedEmbedder {
	e.cooldown = d
	return e
}

// Embed waits for a slot and a token, then calls the inner embedder.
func (e *RateLimitedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	start := time.Now()
	if err := e.acquire(ctx); err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("rate limit wait: %w", err)
	}
	if e.slots != nil {
		defer e.slots.Release(1)
	}
	metrics.EmbeddingThrottleWaitSeconds.Observe(time.Since(start).Seconds())

	res, err := e.inner.Embed(ctx, text)
	if err != nil && errors.Is(err, domain.ErrRateLimited) {
		e.backoff()
	}
	return res, err //nolint:wrapcheck // transparent decorator
}

// HealthCheck forwards to the inner embedder without consuming rate budget.
func (e *RateLimitedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := e.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent decorator
	}
	return nil
}

func (e *RateLimitedEmbedder) acquire(ctx context.Context) error {
	e.mu.Lock()
	retryAt := e.retryAt
	e.mu.Unlock()
	if wait := time.Until(retryAt); wait > 0 {
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}

	if e.slots != nil {
		if err := e.slots.Acquire(ctx, 1); err != nil {
			return err //nolint:wrapcheck // wrapped by caller
		}
	}
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			if e.slots != nil {
				e.slots.Release(1)
			}
			return err //nolint:wrapcheck // wrapped by caller
		}
	}
	return nil
}

func (e *RateLimitedEmbedder) backoff() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if until := time.Now().Add(e.cooldown); until.After(e.retryAt) {
		e.retryAt = until
	}
}
