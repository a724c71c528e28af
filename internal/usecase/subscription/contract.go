package subscription

import (
	"context"

	"github.com/kailas-cloud/vecsync/internal/domain/change"
)

// Stream is one open change feed. Next blocks until an event arrives, the
// stream fails, or ctx is done; a cleanly ended stream returns io.EOF.
type Stream interface {
	Next(ctx context.Context) (change.Event, error)
	ResumeToken() []byte
	Close(ctx context.Context) error
}

// Opener opens a change feed for collection delivering insert, update and
// replace events with full documents, resuming after resumeToken when it is non-nil.
type Opener func(ctx context.Context, collection string, resumeToken []byte) (Stream, error)

// Sink receives every indexable event. It runs on the subscription goroutine.
type Sink func(ev change.Event)
