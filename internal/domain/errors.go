package domain

import (
	"context"
	"errors"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists signals a duplicate-key write: another writer created the record first.
	ErrAlreadyExists = errors.New("already exists")
	// ErrDocumentTooLarge signals a payload the store refuses to deliver or persist.
	// Retrying the same operation repeats the same failure.
	ErrDocumentTooLarge = errors.New("document too large")
	// ErrResumePointLost signals that a change feed can no longer resume from its saved token.
	ErrResumePointLost = errors.New("change feed resume point lost")
	// ErrInvalidConfig signals an unusable configuration.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingQuotaExceeded signals an exhausted embedding budget.
	ErrEmbeddingQuotaExceeded = errors.New("embedding quota exceeded")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrEmptyEmbedding signals a provider response without a vector.
	ErrEmptyEmbedding = errors.New("empty embedding")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
)

// RetryableError marks a transient failure that may succeed when the same call is repeated.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// NewRetryable wraps err as retryable. A nil err stays nil.
func NewRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err (or anything it wraps) was marked retryable.
// Context cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var re *RetryableError
	return errors.As(err, &re)
}
