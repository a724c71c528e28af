// Package indexing turns one debounced source document into a persisted vector record.
package indexing

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecsync/internal/domain"
	"github.com/kailas-cloud/vecsync/internal/domain/change"
	"github.com/kailas-cloud/vecsync/internal/domain/record"
	"github.com/kailas-cloud/vecsync/internal/logger"
	"github.com/kailas-cloud/vecsync/internal/metrics"
	"github.com/kailas-cloud/vecsync/internal/usecase/embedding"
)

// Status is the terminal state of one processing run.
type Status string

// Processing outcomes.
const (
	StatusIndexed          Status = "indexed"
	StatusSkippedShort     Status = "skipped_short"
	StatusSkippedDuplicate Status = "skipped_duplicate"
	StatusFailed           Status = "failed"
)

// Outcome describes one processing run. Err is set only for StatusFailed.
type Outcome struct {
	Status   Status
	Stage    string
	Embedded bool
	Attempts int
	Duration time.Duration
	Err      error
}

// Config tunes processing.
type Config struct {
	MinTextLength      int
	DuplicateRetries   int
	DuplicateBaseDelay time.Duration
	TenantField        string
	DefaultTenant      string
	IndexedAtField     string
	StampSource        bool
	EmbeddingModel     string
	SchemaVersion      int
	Timeout            time.Duration
}

// Defaults.
const (
	DefaultMinTextLength      = 20
	DefaultDuplicateBaseDelay = 100 * time.Millisecond
	DefaultTenantField        = "tenantId"
	DefaultTenant             = "default"
	DefaultTimeout            = 60 * time.Second
)

// MaxUpsertDelay is the longest a single upsert can spend backing off on duplicate keys.
func (c Config) MaxUpsertDelay() time.Duration {
	var total time.Duration
	for i := 1; i <= c.DuplicateRetries; i++ {
		total += c.DuplicateBaseDelay * time.Duration(i)
	}
	return total
}

// Processor runs the render, embed, upsert, stamp sequence. It never panics
// and never returns errors to its caller: failures are logged, counted and dropped.
type Processor struct {
	cfg      Config
	builder  TextBuilder
	embedder domain.Embedder
	store    VectorStore
	stamper  Stamper
	resolve  TypeResolver
	logger   *zap.Logger
	now      func() time.Time
}

// NewProcessor creates a processor. stamper may be nil.
func NewProcessor(
	cfg Config,
	builder TextBuilder,
	embedder domain.Embedder,
	store VectorStore,
	stamper Stamper,
	resolve TypeResolver,
	logger *zap.Logger,
) *Processor {
	if cfg.MinTextLength <= 0 {
		cfg.MinTextLength = DefaultMinTextLength
	}
	if cfg.DuplicateRetries < 0 {
		cfg.DuplicateRetries = 0
	}
	if cfg.DuplicateBaseDelay <= 0 {
		cfg.DuplicateBaseDelay = DefaultDuplicateBaseDelay
	}
	if cfg.TenantField == "" {
		cfg.TenantField = DefaultTenantField
	}
	if cfg.DefaultTenant == "" {
		cfg.DefaultTenant = DefaultTenant
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Processor{
		cfg:      cfg,
		builder:  builder,
		embedder: embedder,
		store:    store,
		stamper:  stamper,
		resolve:  resolve,
		logger:   logger,
		now:      time.Now,
	}
}

// Process indexes doc from collection.
func (p *Processor) Process(ctx context.Context, collection string, doc change.Document) (out Outcome) {
	start := time.Now()
	id := doc.ID()
	tenant := p.tenantOf(doc)
	log := p.logger.With(
		zap.String("run_id", uuid.NewString()),
		zap.String("collection", collection),
		zap.String("document_id", id),
		zap.String("tenant_id", tenant),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic while processing document",
				zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			out = Outcome{Status: StatusFailed, Stage: "panic", Err: fmt.Errorf("panic: %v", r)}
		}
		out.Duration = time.Since(start)
		p.observe(collection, out)
	}()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	ctx = logger.ContextWithLogger(ctx, log)

	return p.process(ctx, collection, id, tenant, doc)
}

func (p *Processor) process(ctx context.Context, collection, id, tenant string, doc change.Document) Outcome {
	log := logger.FromContext(ctx)

	typeName, fs := p.resolve(collection, doc)
	text := p.builder.BuildSemanticText(typeName, doc, fs)
	if len(strings.TrimSpace(text)) < p.cfg.MinTextLength {
		log.Debug("Semantic text too short, nothing to index", zap.Int("length", len(text)))
		return Outcome{Status: StatusSkippedShort}
	}

	res, err := p.embedder.Embed(ctx, text)
	if err != nil {
		attempts := 1
		var ae *embedding.AttemptsError
		if errors.As(err, &ae) {
			attempts = ae.Attempts
		}
		log.Error("Embedding failed, dropping update",
			zap.Int("attempts", attempts), zap.Error(err))
		return Outcome{Status: StatusFailed, Stage: "embed", Attempts: attempts, Err: err}
	}

	rec := &record.VectorRecord{
		DocumentID:        id,
		TenantID:          tenant,
		DocumentType:      typeName,
		SourceCollection:  collection,
		Embedding:         res.Embedding,
		SemanticText:      text,
		SearchableContent: p.builder.BuildSearchableContent(typeName, doc, fs),
		EmbeddingModel:    p.cfg.EmbeddingModel,
		SchemaVersion:     p.cfg.SchemaVersion,
	}

	written, err := p.Upsert(ctx, rec)
	if err != nil {
		log.Error("Vector upsert failed, dropping update", zap.Error(err))
		return Outcome{Status: StatusFailed, Stage: "upsert", Embedded: true, Attempts: 1, Err: err}
	}
	if !written {
		return Outcome{Status: StatusSkippedDuplicate, Embedded: true, Attempts: 1}
	}

	if p.cfg.StampSource && p.stamper != nil && p.cfg.IndexedAtField != "" {
		if err := p.stamper.MarkIndexed(ctx, collection, doc.RawID(), p.cfg.IndexedAtField, rec.UpdatedAt); err != nil {
			metrics.PipelineErrorsTotal.WithLabelValues("stamp").Inc()
			log.Warn("Failed to stamp source document", zap.Error(err))
		}
	}

	log.Debug("Document indexed", zap.String("document_type", typeName), zap.Int("text_bytes", len(text)))
	return Outcome{Status: StatusIndexed, Embedded: true, Attempts: 1}
}

// Upsert writes rec, retrying duplicate-key races with an increasing delay.
// Returns false without error when every attempt collided: a concurrent
// writer already stored the record.
func (p *Processor) Upsert(ctx context.Context, rec *record.VectorRecord) (bool, error) {
	log := logger.FromContext(ctx)
	for attempt := 0; ; attempt++ {
		rec.UpdatedAt = p.now().UTC()
		_, err := p.store.Upsert(ctx, rec)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, domain.ErrAlreadyExists) {
			return false, err
		}
		if attempt >= p.cfg.DuplicateRetries {
			log.Info("Duplicate key persisted after retries, treating as already indexed",
				zap.Int("attempts", attempt+1))
			return false, nil
		}

		metrics.DuplicateRetriesTotal.Inc()
		delay := p.cfg.DuplicateBaseDelay * time.Duration(attempt+1)
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return false, fmt.Errorf("upsert retry: %w", ctx.Err())
		case <-t.C:
		}
	}
}

func (p *Processor) tenantOf(doc change.Document) string {
	if t, ok := doc.String(p.cfg.TenantField); ok && t != "" {
		return t
	}
	if v, ok := doc[p.cfg.TenantField]; ok && v != nil {
		if s := fmt.Sprint(v); s != "" {
			return s
		}
	}
	return p.cfg.DefaultTenant
}

func (p *Processor) observe(collection string, out Outcome) {
	metrics.DocumentsProcessedTotal.WithLabelValues(collection, string(out.Status)).Inc()
	if out.Embedded {
		metrics.EmbeddingsGeneratedTotal.Inc()
	}
	if out.Status == StatusFailed {
		metrics.PipelineErrorsTotal.WithLabelValues(out.Stage).Inc()
	}
	if out.Status == StatusIndexed {
		metrics.ProcessingDuration.Observe(out.Duration.Seconds())
	}
}
