package usage

import "github.com/kailas-cloud/vecsync/internal/usecase/embedding"

// BudgetReader provides read-only access to token budget state.
type BudgetReader interface {
	Usage() []embedding.BudgetUsage
}
