package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecsync/internal/domain"
	"github.com/kailas-cloud/vecsync/internal/metrics"
)

func TestInstrumentedEmbedder_Success(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding:    []float32{0.1, 0.2, 0.3},
		PromptTokens: 10,
		TotalTokens:  10,
	}}
	p := NewInstrumentedEmbedder(inner, "test", "test-model", nil, zap.NewNop())

	result, err := p.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 || result.TotalTokens != 10 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestInstrumentedEmbedder_ErrorKeepsRetryable(t *testing.T) {
	inner := &mockEmbedder{err: domain.NewRetryable(errors.New("502 bad gateway"))}
	p := NewInstrumentedEmbedder(inner, "test", "test-model", nil, zap.NewNop())

	_, err := p.Embed(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	if !domain.IsRetryable(err) {
		t.Error("retryable marker lost through the decorator")
	}
}

func TestInstrumentedEmbedder_BudgetRejection(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}}}
	budget := NewBudgetTracker("test", 10, 0, BudgetActionReject, zap.NewNop())
	budget.Record(10)

	p := NewInstrumentedEmbedder(inner, "test", "test-model", budget, zap.NewNop())
	_, err := p.Embed(context.Background(), "hello")
	if !errors.Is(err, domain.ErrEmbeddingQuotaExceeded) {
		t.Fatalf("expected ErrEmbeddingQuotaExceeded, got %v", err)
	}
	if inner.Calls() != 0 {
		t.Error("inner embedder must not be called when budget is exhausted")
	}
}

func TestInstrumentedEmbedder_RecordsBudget(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1}, TotalTokens: 25}}
	budget := NewBudgetTracker("budget-test", 1000, 0, BudgetActionWarn, zap.NewNop())
	p := NewInstrumentedEmbedder(inner, "budget-test", "m", budget, zap.NewNop())

	if _, err := p.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := budget.RemainingDaily(); got != 975 {
		t.Errorf("remaining = %d, want 975", got)
	}
	gauge := metrics.EmbeddingBudgetTokensRemaining.WithLabelValues("budget-test", WindowDaily)
	if got := testutil.ToFloat64(gauge); got != 975 {
		t.Errorf("gauge = %v, want 975", got)
	}
}
