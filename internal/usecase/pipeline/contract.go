package pipeline

import (
	"context"

	"github.com/kailas-cloud/vecsync/internal/domain/change"
	"github.com/kailas-cloud/vecsync/internal/domain/schema"
	"github.com/kailas-cloud/vecsync/internal/usecase/indexing"
)

// Discoverer builds the document-type registry at startup.
type Discoverer interface {
	Discover(ctx context.Context) (*schema.Registry, error)
}

// RegistryPublisher receives the registry once discovery has finished.
type RegistryPublisher interface {
	SetRegistry(reg *schema.Registry)
}

// Processor indexes one document. It must not panic or return errors.
type Processor interface {
	Process(ctx context.Context, collection string, doc change.Document) indexing.Outcome
}

// Scanner iterates existing documents for backfill.
type Scanner interface {
	Scan(ctx context.Context, collection string, filter map[string]any, batchSize int32, fn func(change.Document) error) error
}
