package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecsync/internal/config"
	"github.com/kailas-cloud/vecsync/internal/db"
	dbMongo "github.com/kailas-cloud/vecsync/internal/db/mongo"
	dbRedis "github.com/kailas-cloud/vecsync/internal/db/redis"
	"github.com/kailas-cloud/vecsync/internal/domain"
	"github.com/kailas-cloud/vecsync/internal/metrics"
	budgetrepo "github.com/kailas-cloud/vecsync/internal/repository/budget"
	"github.com/kailas-cloud/vecsync/internal/repository/embcache"
	vectorrepo "github.com/kailas-cloud/vecsync/internal/repository/vector"
	openaiEmb "github.com/kailas-cloud/vecsync/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/vecsync/internal/usecase/embedding"
	"github.com/kailas-cloud/vecsync/internal/usecase/indexing"
	"github.com/kailas-cloud/vecsync/internal/usecase/semantic"
	"github.com/kailas-cloud/vecsync/internal/usecase/subscription"
)

func connectRedis(ctx context.Context, cfg config.Config) (*dbRedis.Store, error) {
	flavor := dbRedis.FlavorRedis
	if cfg.VectorStore.Driver == config.DriverValkey {
		flavor = dbRedis.FlavorValkey
	}
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Redis.Addrs,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		Flavor:   flavor,
	})
	if err != nil {
		return nil, fmt.Errorf("create redis store: %w", err)
	}
	if err := store.WaitForReady(ctx, time.Duration(cfg.Redis.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("redis not ready: %w", err)
	}
	return store, nil
}

type embedders struct {
	// base answers health checks without going through budget and retries.
	base   *openaiEmb.Embedder
	chain  domain.Embedder
	budget *embeddinguc.BudgetTracker
}

// buildEmbedder assembles the decorator chain:
// OpenAI -> RateLimited -> Cached -> Instrumented -> Instruction -> Retrying.
func buildEmbedder(ctx context.Context, cfg config.Config, kv *dbRedis.Store, logger *zap.Logger) embedders {
	ec := cfg.Embedding

	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     ec.APIKey,
		BaseURL:    ec.BaseURL,
		Model:      ec.Model,
		Dimensions: ec.Dimensions,
		Provider:   ec.Provider,
		Timeout:    time.Duration(ec.TimeoutSec) * time.Second,
		Logger:     logger,
	})

	var embedder domain.Embedder = embeddinguc.NewRateLimitedEmbedder(
		base, ec.RateLimit.RPS, ec.RateLimit.Burst, ec.RateLimit.Concurrency,
	)

	if ec.Cache.Enabled && kv != nil {
		embedder = embcache.New(embedder, kv, embcache.Options{
			Model:      ec.Model,
			Dimensions: ec.Dimensions,
			TTL:        time.Duration(ec.Cache.TTLHours) * time.Hour,
		}, metrics.EmbeddingCacheTotal, logger)
	}

	// The tracker always counts tokens for /usage; zero limits never reject.
	action := embeddinguc.BudgetActionWarn
	if ec.Budget.Action == "reject" {
		action = embeddinguc.BudgetActionReject
	}
	budget := embeddinguc.NewBudgetTracker(
		ec.Provider, ec.Budget.DailyTokenLimit, ec.Budget.MonthlyTokenLimit, action, logger,
	)
	if kv != nil {
		budget.WithStore(ctx, budgetrepo.New(kv, ec.Provider, map[string]time.Duration{
			embeddinguc.WindowDaily:   48 * time.Hour,
			embeddinguc.WindowMonthly: 62 * 24 * time.Hour,
		}))
	}

	embedder = embeddinguc.NewInstrumentedEmbedder(embedder, ec.Provider, ec.Model, budget, logger)

	if ec.Instruction != "" {
		embedder = domain.NewInstructionEmbedder(embedder, ec.Instruction)
	}

	cfgP := cfg.Pipeline
	embedder = embeddinguc.NewRetryingEmbedder(
		embedder, cfgP.MaxRetries, cfgP.Durations().RetryDelay, logger,
	)

	logger.Info("Embedder created",
		zap.String("provider", ec.Provider),
		zap.String("model", ec.Model),
		zap.Int("dimensions", ec.Dimensions),
		zap.Bool("cache", ec.Cache.Enabled && kv != nil),
		zap.Bool("budget", ec.Budget.Enabled()),
	)
	return embedders{base: base, chain: embedder, budget: budget}
}

type vectorStore interface {
	indexing.VectorStore
	EnsureIndex(ctx context.Context) error
}

func buildVectorStore(
	ctx context.Context, cfg config.Config, source *dbMongo.Store, kv *dbRedis.Store,
) (indexing.VectorStore, error) {
	var store vectorStore
	switch cfg.VectorStore.Driver {
	case config.DriverValkey, config.DriverRedis:
		store = vectorrepo.NewHash(kv, cfg.Embedding.Dimensions,
			db.DistanceMetric(strings.ToUpper(cfg.VectorStore.Distance)),
			vectorrepo.HNSWConfig{M: cfg.VectorStore.HNSWM, EFConstruct: cfg.VectorStore.HNSWEFConstruct},
		)
	default:
		store = vectorrepo.NewMongo(source, cfg.VectorStore.Collection)
	}
	if err := store.EnsureIndex(ctx); err != nil {
		return nil, fmt.Errorf("ensure vector index: %w", err)
	}
	return store, nil
}

// mongoOpener adapts change streams to subscriptions. A failed Watch must
// return a nil interface, not a typed nil *ChangeStream.
func mongoOpener(s *dbMongo.Store) subscription.Opener {
	return func(ctx context.Context, collection string, resumeToken []byte) (subscription.Stream, error) {
		cs, err := s.Watch(ctx, collection, resumeToken)
		if err != nil {
			return nil, err
		}
		return cs, nil
	}
}

func profilesFromConfig(in []config.ProfileConfig) []semantic.Profile {
	out := make([]semantic.Profile, 0, len(in))
	for _, p := range in {
		frags := make([]semantic.Fragment, 0, len(p.Fragments))
		for _, f := range p.Fragments {
			frags = append(frags, semantic.Fragment{
				Label:     f.Label,
				Path:      f.Path,
				Aggregate: semantic.Aggregate(f.Aggregate),
			})
		}
		out = append(out, semantic.Profile{Types: p.Types, Label: p.Label, Fragments: frags})
	}
	return out
}
