package embedding

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecsync/internal/domain"
)

// BudgetAction defines behavior when token budget is exceeded.
type BudgetAction string

const (
	// BudgetActionWarn logs a warning but allows the request.
	BudgetActionWarn BudgetAction = "warn"
	// BudgetActionReject blocks the request.
	BudgetActionReject BudgetAction = "reject"
)

// Budget windows.
const (
	WindowDaily   = "daily"
	WindowMonthly = "monthly"
)

// BudgetStore persists per-window token counters.
// Add may be called repeatedly for the same bucket.
type BudgetStore interface {
	Add(ctx context.Context, window, bucket string, tokens int64) error
	Used(ctx context.Context, window, bucket string) (int64, error)
}

// BudgetUsage is a point-in-time view of one budget window. Remaining is -1 when unlimited.
type BudgetUsage struct {
	Window    string `json:"window"`
	Used      int64  `json:"used"`
	Limit     int64  `json:"limit"`
	Remaining int64  `json:"remaining"`
}

// budgetWindow is one rolling counter (a day or a month).
type budgetWindow struct {
	name   string
	limit  int64
	used   int64
	bucket string
	format string
}

func (w *budgetWindow) roll(now time.Time) {
	if b := now.Format(w.format); b != w.bucket {
		w.bucket = b
		w.used = 0
	}
}

func (w *budgetWindow) exceeded() bool {
	return w.limit > 0 && w.used >= w.limit
}

func (w *budgetWindow) usage() BudgetUsage {
	u := BudgetUsage{Window: w.name, Used: w.used, Limit: w.limit, Remaining: -1}
	if w.limit > 0 {
		u.Remaining = max(w.limit-w.used, 0)
	}
	return u
}

// BudgetTracker enforces daily and monthly token limits for one provider.
// Check reads memory only; Record updates memory, then writes through to the store.
type BudgetTracker struct {
	mu       sync.Mutex
	windows  [2]*budgetWindow
	action   BudgetAction
	provider string
	store    BudgetStore
	now      func() time.Time
	logger   *zap.Logger
}

// NewBudgetTracker creates a budget tracker. A zero limit disables that window.
func NewBudgetTracker(
	provider string, dailyLimit, monthlyLimit int64,
	action BudgetAction, logger *zap.Logger,
) *BudgetTracker {
	b := &BudgetTracker{
		windows: [2]*budgetWindow{
			{name: WindowDaily, limit: dailyLimit, format: "2006-01-02"},
			{name: WindowMonthly, limit: monthlyLimit, format: "2006-01"},
		},
		action:   action,
		provider: provider,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
	b.rollAll()
	return b
}

// WithStore attaches a persistence store and loads the current counters from it.
func (b *BudgetTracker) WithStore(ctx context.Context, store BudgetStore) *BudgetTracker {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.store = store
	b.rollAll()
	for _, w := range b.windows {
		used, err := store.Used(ctx, w.name, w.bucket)
		if err != nil {
			b.logger.Warn("Failed to load budget from store", zap.String("window", w.name), zap.Error(err))
			continue
		}
		w.used = used
	}

	b.logger.Info("Budget loaded from store",
		zap.String("provider", b.provider),
		zap.Int64("daily_used", b.windows[0].used),
		zap.Int64("monthly_used", b.windows[1].used),
	)
	return b
}

// Check reports whether a new request may proceed.
func (b *BudgetTracker) Check(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollAll()
	exceeded := b.windows[0].exceeded() || b.windows[1].exceeded()
	if !exceeded {
		return nil
	}
	if b.action == BudgetActionReject {
		return domain.ErrEmbeddingQuotaExceeded
	}

	b.logger.Warn("Token budget exceeded",
		zap.String("provider", b.provider),
		zap.Int64("daily_used", b.windows[0].used),
		zap.Int64("daily_limit", b.windows[0].limit),
		zap.Int64("monthly_used", b.windows[1].used),
		zap.Int64("monthly_limit", b.windows[1].limit),
	)
	return nil
}

// Record adds consumed tokens to every window and persists them when a store is attached.
func (b *BudgetTracker) Record(tokens int64) {
	type pending struct{ window, bucket string }

	b.mu.Lock()
	b.rollAll()
	writes := make([]pending, 0, len(b.windows))
	for _, w := range b.windows {
		w.used += tokens
		writes = append(writes, pending{w.name, w.bucket})
	}
	store := b.store
	b.mu.Unlock()

	if store == nil {
		return
	}

	// Detached from the caller so a canceled request still gets billed.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, p := range writes {
		if err := store.Add(ctx, p.window, p.bucket, tokens); err != nil {
			b.logger.Warn("Failed to persist budget",
				zap.String("window", p.window),
				zap.String("bucket", p.bucket),
				zap.Error(err),
			)
		}
	}
}

// RemainingDaily returns tokens left today (-1 if unlimited).
func (b *BudgetTracker) RemainingDaily() int64 {
	return b.Usage()[0].Remaining
}

// RemainingMonthly returns tokens left this month (-1 if unlimited).
func (b *BudgetTracker) RemainingMonthly() int64 {
	return b.Usage()[1].Remaining
}

// Usage returns the daily and monthly windows, in that order.
func (b *BudgetTracker) Usage() []BudgetUsage {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollAll()
	return []BudgetUsage{b.windows[0].usage(), b.windows[1].usage()}
}

func (b *BudgetTracker) rollAll() {
	now := b.now()
	for _, w := range b.windows {
		w.roll(now)
	}
}
