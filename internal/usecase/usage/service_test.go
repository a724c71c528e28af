package usage

import (
	"context"
	"testing"
	"time"

	"github.com/kailas-cloud/vecsync/internal/usecase/embedding"
)

// --- Mock ---

type mockBudgetReader struct {
	usage []embedding.BudgetUsage
}

func (m *mockBudgetReader) Usage() []embedding.BudgetUsage { return m.usage }

func fixedNow() time.Time { return time.Date(2026, 3, 15, 13, 30, 0, 0, time.UTC) }

// --- Tests ---

func TestGetReport_Windows(t *testing.T) {
	br := &mockBudgetReader{usage: []embedding.BudgetUsage{
		{Window: embedding.WindowDaily, Used: 3000, Limit: 10000, Remaining: 7000},
		{Window: embedding.WindowMonthly, Used: 50000, Limit: 0, Remaining: -1},
	}}
	svc := New("openai", "text-embedding-3-small", br)
	svc.now = fixedNow

	r := svc.GetReport(context.Background())
	if r.Provider != "openai" || r.Model != "text-embedding-3-small" {
		t.Errorf("unexpected header: %+v", r)
	}
	if len(r.Windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(r.Windows))
	}

	day := r.Windows[0]
	wantStart := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	if !day.PeriodStart.Equal(wantStart) || !day.PeriodEnd.Equal(wantStart.Add(24*time.Hour)) {
		t.Errorf("day bounds: %v - %v", day.PeriodStart, day.PeriodEnd)
	}
	if day.Used != 3000 || day.Remaining != 7000 || day.Exhausted {
		t.Errorf("day window: %+v", day)
	}

	month := r.Windows[1]
	if !month.PeriodStart.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) ||
		!month.PeriodEnd.Equal(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("month bounds: %v - %v", month.PeriodStart, month.PeriodEnd)
	}
	if month.Exhausted {
		t.Error("unlimited window must never be exhausted")
	}
}

func TestGetReport_Exhausted(t *testing.T) {
	br := &mockBudgetReader{usage: []embedding.BudgetUsage{
		{Window: embedding.WindowDaily, Used: 5000, Limit: 5000, Remaining: 0},
	}}
	r := New("openai", "m", br).GetReport(context.Background())

	if !r.Windows[0].Exhausted {
		t.Error("budget should be exhausted when remaining is 0")
	}
}

func TestGetReport_NilBudgetReader(t *testing.T) {
	r := New("openai", "m", nil).GetReport(context.Background())

	if r.Windows == nil || len(r.Windows) != 0 {
		t.Errorf("expected empty windows, got %v", r.Windows)
	}
}

func TestGetReport_FromTracker(t *testing.T) {
	tracker := embedding.NewBudgetTracker("openai", 100, 0, embedding.BudgetActionWarn, nil)
	tracker.Record(40)

	r := New("openai", "m", tracker).GetReport(context.Background())
	if r.Windows[0].Used != 40 || r.Windows[0].Remaining != 60 {
		t.Errorf("daily window: %+v", r.Windows[0])
	}
	if r.Windows[1].Used != 40 || r.Windows[1].Remaining != -1 {
		t.Errorf("monthly window: %+v", r.Windows[1])
	}
}
