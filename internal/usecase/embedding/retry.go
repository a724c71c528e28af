package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecsync/internal/domain"
	"github.com/kailas-cloud/vecsync/internal/metrics"
)

// RetryingEmbedder repeats failed calls up to a fixed number of attempts with a
// fixed delay in between. Only errors marked retryable are repeated.
type RetryingEmbedder struct {
	inner    domain.Embedder
	attempts int
	delay    time.Duration
	logger   *zap.Logger
}

// NewRetryingEmbedder wraps inner. attempts < 1 is treated as 1.
func NewRetryingEmbedder(inner domain.Embedder, attempts int, delay time.Duration, logger *zap.Logger) *RetryingEmbedder {
	return &RetryingEmbedder{
		inner:    inner,
		attempts: max(attempts, 1),
		delay:    delay,
		logger:   logger,
	}
}

// AttemptsError reports how many attempts were made before giving up.
type AttemptsError struct {
	Attempts int
	Err      error
}

func (e *AttemptsError) Error() string {
	return fmt.Sprintf("after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *AttemptsError) Unwrap() error { return e.Err }

// Embed calls the inner embedder until it succeeds, returns a non-retryable error,
// the attempts are exhausted or ctx is done. The final error is an *AttemptsError.
func (r *RetryingEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		res, err := r.inner.Embed(ctx, text)
		if err == nil {
			if attempt > 1 {
				metrics.EmbeddingRetriesTotal.WithLabelValues("recovered").Inc()
			}
			return res, nil
		}
		lastErr = err

		if !domain.IsRetryable(err) {
			return domain.EmbeddingResult{}, &AttemptsError{Attempts: attempt, Err: err}
		}
		if attempt == r.attempts {
			break
		}

		r.logger.Debug("Retrying embedding",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.attempts),
			zap.Duration("delay", r.delay),
			zap.Error(err),
		)
		if err := sleep(ctx, r.delay); err != nil {
			return domain.EmbeddingResult{}, &AttemptsError{Attempts: attempt, Err: err}
		}
	}

	metrics.EmbeddingRetriesTotal.WithLabelValues("exhausted").Inc()
	return domain.EmbeddingResult{}, &AttemptsError{Attempts: r.attempts, Err: lastErr}
}

// HealthCheck forwards to the inner embedder when it supports health checks.
func (r *RetryingEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := r.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent decorator
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
