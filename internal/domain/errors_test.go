package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	base := errors.New("503 upstream")

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", base, false},
		{"marked", NewRetryable(base), true},
		{"wrapped marked", fmt.Errorf("embed: %w", NewRetryable(base)), true},
		{"canceled", NewRetryable(context.Canceled), false},
		{"deadline", fmt.Errorf("x: %w", NewRetryable(context.DeadlineExceeded)), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRetryable(tc.err); got != tc.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestRetryableError_Unwrap(t *testing.T) {
	err := NewRetryable(fmt.Errorf("call: %w", ErrEmbeddingProviderError))
	if !errors.Is(err, ErrEmbeddingProviderError) {
		t.Fatal("expected errors.Is to see through RetryableError")
	}
	if NewRetryable(nil) != nil {
		t.Fatal("NewRetryable(nil) must be nil")
	}
}
