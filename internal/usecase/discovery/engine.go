// Package discovery infers which collections and document types exist in the
// primary store and how their fields are classified.
package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/vecsync/internal/domain/change"
	"github.com/kailas-cloud/vecsync/internal/domain/schema"
)

// Config controls which collections are monitored and how deeply they are sampled.
type Config struct {
	// Enabled unions the allow-list with every non-system collection.
	Enabled bool
	// Collections is the explicit allow-list.
	Collections    []string
	MaxCollections int
	SampleLimit    int64
	// TypeField is the discriminator field; empty uses "type".
	TypeField string
	// Exclude names collections never monitored, such as the vector records collection.
	Exclude []string
	// Concurrency bounds collections inspected at once.
	Concurrency int
}

const (
	defaultTypeField   = "type"
	defaultConcurrency = 4
)

// Engine builds the document-type registry.
type Engine struct {
	source     Source
	cfg        Config
	classifier *Classifier
	logger     *zap.Logger
}

// New creates a discovery engine.
func New(source Source, cfg Config, classifier *Classifier, logger *zap.Logger) *Engine {
	if cfg.TypeField == "" {
		cfg.TypeField = defaultTypeField
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if classifier == nil {
		classifier = NewClassifier()
	}
	return &Engine{source: source, cfg: cfg, classifier: classifier, logger: logger}
}

// Discover lists, selects and inspects collections. Only a failure to list
// collections is returned; a collection that cannot be inspected is logged and skipped.
func (e *Engine) Discover(ctx context.Context) (*schema.Registry, error) {
	all, err := e.source.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}

	selected := SelectCollections(all, e.cfg, e.logger)
	if len(selected) == 0 {
		e.logger.Warn("No collections selected for indexing; pipeline will stay idle",
			zap.Bool("discovery_enabled", e.cfg.Enabled),
			zap.Int("allow_list", len(e.cfg.Collections)),
		)
		return schema.NewRegistry(), nil
	}

	results := make([][]schema.DocumentTypeEntry, len(selected))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i, coll := range selected {
		g.Go(func() error {
			entries, err := e.inspect(gctx, coll)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err() //nolint:wrapcheck // caller cancellation
				}
				e.logger.Warn("Skipping collection: inspection failed",
					zap.String("collection", coll), zap.Error(err))
				return nil
			}
			results[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}

	var entries []schema.DocumentTypeEntry
	for _, r := range results {
		entries = append(entries, r...)
	}
	reg := schema.NewRegistry(entries...)
	e.logger.Info("Schema discovery complete",
		zap.Int("collections", len(reg.Collections())),
		zap.Int("types", reg.Len()),
	)
	return reg, nil
}

// inspect turns one collection into one entry per discriminator value, or a
// single entry named after the collection when it has no discriminator.
func (e *Engine) inspect(ctx context.Context, coll string) ([]schema.DocumentTypeEntry, error) {
	values, err := e.source.Distinct(ctx, coll, e.cfg.TypeField)
	if err != nil {
		return nil, fmt.Errorf("distinct %s: %w", e.cfg.TypeField, err)
	}
	types := discriminatorValues(values)

	if len(types) == 0 {
		return e.inspectUntyped(ctx, coll)
	}

	entries := make([]schema.DocumentTypeEntry, 0, len(types))
	for _, t := range types {
		filter := map[string]any{e.cfg.TypeField: t}
		docs, err := e.source.Sample(ctx, coll, filter, 1)
		if err != nil {
			return nil, fmt.Errorf("sample %s=%s: %w", e.cfg.TypeField, t, err)
		}
		n, err := e.source.Count(ctx, coll, filter, e.cfg.SampleLimit)
		if err != nil {
			return nil, fmt.Errorf("count %s=%s: %w", e.cfg.TypeField, t, err)
		}
		entries = append(entries, schema.DocumentTypeEntry{
			TypeName:         t,
			SourceCollection: coll,
			Fields:           e.classifier.Classify(asMaps(docs)...),
			SampleCount:      n,
			Discriminated:    true,
		})
		e.logger.Debug("Discovered document type",
			zap.String("collection", coll), zap.String("type", t), zap.Int64("sample_count", n))
	}
	return entries, nil
}

func (e *Engine) inspectUntyped(ctx context.Context, coll string) ([]schema.DocumentTypeEntry, error) {
	docs, err := e.source.Sample(ctx, coll, nil, e.cfg.SampleLimit)
	if err != nil {
		return nil, fmt.Errorf("sample: %w", err)
	}
	n, err := e.source.Count(ctx, coll, nil, e.cfg.SampleLimit)
	if err != nil {
		return nil, fmt.Errorf("count: %w", err)
	}
	e.logger.Debug("Discovered untyped collection",
		zap.String("collection", coll), zap.Int64("sample_count", n))
	return []schema.DocumentTypeEntry{{
		TypeName:         coll,
		SourceCollection: coll,
		Fields:           e.classifier.Classify(asMaps(docs)...),
		SampleCount:      n,
	}}, nil
}

// SelectCollections applies the system filter, the allow-list, the
// auto-discovery flag and the collection cap, in that order.
func SelectCollections(all []string, cfg Config, logger *zap.Logger) []string {
	excluded := make(map[string]struct{}, len(cfg.Exclude))
	for _, name := range cfg.Exclude {
		excluded[name] = struct{}{}
	}

	existing := make(map[string]struct{}, len(all))
	var candidates []string
	for _, name := range all {
		if IsSystemCollection(name) {
			continue
		}
		if _, ok := excluded[name]; ok {
			continue
		}
		existing[name] = struct{}{}
		candidates = append(candidates, name)
	}

	seen := make(map[string]struct{})
	var selected []string
	for _, name := range cfg.Collections {
		if _, ok := existing[name]; !ok {
			logger.Warn("Allow-listed collection not found, dropping", zap.String("collection", name))
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		selected = append(selected, name)
	}

	if cfg.Enabled {
		for _, name := range candidates {
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			selected = append(selected, name)
		}
	}

	if cfg.MaxCollections > 0 && len(selected) > cfg.MaxCollections {
		logger.Warn("Collection cap reached, truncating",
			zap.Int("max_collections", cfg.MaxCollections),
			zap.Strings("dropped", selected[cfg.MaxCollections:]),
		)
		selected = selected[:cfg.MaxCollections]
	}
	return selected
}

// IsSystemCollection reports names reserved for internal storage.
func IsSystemCollection(name string) bool {
	return strings.HasPrefix(name, "system.") || strings.HasPrefix(name, "__")
}

// discriminatorValues keeps non-empty string values, sorted for a stable registry order.
func discriminatorValues(values []any) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func asMaps(docs []change.Document) []map[string]any {
	out := make([]map[string]any, len(docs))
	for i, d := range docs {
		out[i] = d
	}
	return out
}
