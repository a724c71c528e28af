package discovery

import (
	"context"

	"github.com/kailas-cloud/vecsync/internal/domain/change"
)

// Source is the primary-store read surface discovery needs.
type Source interface {
	ListCollections(ctx context.Context) ([]string, error)
	Distinct(ctx context.Context, collection, field string) ([]any, error)
	Sample(ctx context.Context, collection string, filter map[string]any, limit int64) ([]change.Document, error)
	Count(ctx context.Context, collection string, filter map[string]any, limit int64) (int64, error)
}
