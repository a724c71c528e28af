package pipeline

import (
	"sync/atomic"
	"time"

	"github.com/kailas-cloud/vecsync/internal/usecase/indexing"
)

// Snapshot is the on-demand metrics view of the pipeline.
type Snapshot struct {
	InstanceID          string        `json:"instance_id"`
	Running             bool          `json:"running"`
	StartedAt           time.Time     `json:"started_at,omitzero"`
	UptimeSeconds       float64       `json:"uptime_seconds"`
	DocumentsProcessed  int64         `json:"documents_processed"`
	DocumentsIndexed    int64         `json:"documents_indexed"`
	DocumentsSkipped    int64         `json:"documents_skipped"`
	EmbeddingsGenerated int64         `json:"embeddings_generated"`
	Errors              int64         `json:"errors"`
	PendingUpdates      int           `json:"pending_updates"`
	InFlight            int64         `json:"in_flight"`
	ActiveSubscriptions int           `json:"active_subscriptions"`
	Subscriptions       int           `json:"subscriptions"`
	DocumentTypes       int           `json:"document_types"`
	Collections         []string      `json:"collections"`
	Types               []TypeSummary `json:"types"`
}

// TypeSummary describes one discovered document type.
type TypeSummary struct {
	Name        string `json:"name"`
	Collection  string `json:"collection"`
	SampleCount int64  `json:"sample_count"`
}

// counters accumulate processing outcomes for the lifetime of the controller.
type counters struct {
	processed  atomic.Int64
	indexed    atomic.Int64
	skipped    atomic.Int64
	embeddings atomic.Int64
	errors     atomic.Int64
	inFlight   atomic.Int64
}

func (c *counters) record(out indexing.Outcome) {
	c.processed.Add(1)
	switch out.Status {
	case indexing.StatusIndexed:
		c.indexed.Add(1)
	case indexing.StatusFailed:
		c.errors.Add(1)
	default:
		c.skipped.Add(1)
	}
	if out.Embedded {
		c.embeddings.Add(1)
	}
}
