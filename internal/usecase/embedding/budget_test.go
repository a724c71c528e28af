package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecsync/internal/domain"
)

func TestBudgetTracker_Check(t *testing.T) {
	tests := []struct {
		name    string
		daily   int64
		monthly int64
		action  BudgetAction
		record  int64
		wantErr bool
	}{
		{"below limit", 1000, 0, BudgetActionReject, 999, false},
		{"daily reject", 100, 0, BudgetActionReject, 100, true},
		{"monthly reject", 0, 500, BudgetActionReject, 500, true},
		{"warn lets through", 100, 0, BudgetActionWarn, 200, false},
		{"unlimited", 0, 0, BudgetActionReject, 1 << 40, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			bt := NewBudgetTracker("test", tc.daily, tc.monthly, tc.action, zap.NewNop())
			bt.Record(tc.record)
			err := bt.Check(context.Background())
			if tc.wantErr && !errors.Is(err, domain.ErrEmbeddingQuotaExceeded) {
				t.Fatalf("expected ErrEmbeddingQuotaExceeded, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestBudgetTracker_Remaining(t *testing.T) {
	bt := NewBudgetTracker("test", 1000, 10000, BudgetActionWarn, zap.NewNop())
	bt.Record(300)

	if got := bt.RemainingDaily(); got != 700 {
		t.Errorf("daily remaining = %d, want 700", got)
	}
	if got := bt.RemainingMonthly(); got != 9700 {
		t.Errorf("monthly remaining = %d, want 9700", got)
	}

	bt.Record(5000)
	if got := bt.RemainingDaily(); got != 0 {
		t.Errorf("daily remaining should floor at 0, got %d", got)
	}

	unlimited := NewBudgetTracker("test", 0, 0, BudgetActionWarn, zap.NewNop())
	if unlimited.RemainingDaily() != -1 || unlimited.RemainingMonthly() != -1 {
		t.Error("expected -1 for unlimited windows")
	}
}

func TestBudgetTracker_RollsOverOnNewDay(t *testing.T) {
	now := time.Date(2025, 1, 31, 23, 0, 0, 0, time.UTC)
	bt := NewBudgetTracker("test", 100, 1000, BudgetActionReject, zap.NewNop())
	bt.now = func() time.Time { return now }
	bt.rollAll()

	bt.Record(100)
	if err := bt.Check(context.Background()); err == nil {
		t.Fatal("expected daily limit hit")
	}

	now = now.Add(2 * time.Hour) // Feb 1st: new day and new month
	if err := bt.Check(context.Background()); err != nil {
		t.Fatalf("expected reset after rollover, got %v", err)
	}
	usage := bt.Usage()
	if usage[0].Used != 0 || usage[1].Used != 0 {
		t.Errorf("usage after rollover = %+v", usage)
	}
}

func TestBudgetTracker_WithStore(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	store := newMockBudgetStore()
	store.data["daily/2025-06-15"] = 400
	store.data["monthly/2025-06"] = 4000

	bt := NewBudgetTracker("test", 1000, 10000, BudgetActionWarn, zap.NewNop())
	bt.now = func() time.Time { return now }
	bt.WithStore(context.Background(), store)

	if got := bt.RemainingDaily(); got != 600 {
		t.Errorf("daily remaining after load = %d, want 600", got)
	}

	bt.Record(50)
	bt.Record(25)
	if got := store.get("daily/2025-06-15"); got != 475 {
		t.Errorf("persisted daily = %d, want 475", got)
	}
	if got := store.get("monthly/2025-06"); got != 4075 {
		t.Errorf("persisted monthly = %d, want 4075", got)
	}
}

func TestBudgetTracker_StoreErrorsAreNotFatal(t *testing.T) {
	store := newMockBudgetStore()
	store.usedErr = errors.New("connection refused")
	store.addErr = errors.New("connection refused")

	bt := NewBudgetTracker("test", 100, 0, BudgetActionReject, zap.NewNop())
	bt.WithStore(context.Background(), store)
	bt.Record(40)

	if got := bt.RemainingDaily(); got != 60 {
		t.Errorf("in-memory remaining = %d, want 60", got)
	}
	if err := bt.Check(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
