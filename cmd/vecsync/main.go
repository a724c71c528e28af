package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecsync/internal/config"
	dbMongo "github.com/kailas-cloud/vecsync/internal/db/mongo"
	dbRedis "github.com/kailas-cloud/vecsync/internal/db/redis"
	logpkg "github.com/kailas-cloud/vecsync/internal/logger"
	"github.com/kailas-cloud/vecsync/internal/metrics"
	chiTransport "github.com/kailas-cloud/vecsync/internal/transport/chi"
	"github.com/kailas-cloud/vecsync/internal/usecase/debounce"
	"github.com/kailas-cloud/vecsync/internal/usecase/discovery"
	healthuc "github.com/kailas-cloud/vecsync/internal/usecase/health"
	"github.com/kailas-cloud/vecsync/internal/usecase/indexing"
	"github.com/kailas-cloud/vecsync/internal/usecase/pipeline"
	"github.com/kailas-cloud/vecsync/internal/usecase/semantic"
	"github.com/kailas-cloud/vecsync/internal/usecase/subscription"
	usageuc "github.com/kailas-cloud/vecsync/internal/usecase/usage"
	"github.com/kailas-cloud/vecsync/internal/version"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting vecsync",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("source_database", cfg.Source.Database),
		zap.String("vector_store", cfg.VectorStore.Driver),
		zap.String("embedding_model", cfg.Embedding.Model),
	)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("vecsync stopped with error", zap.Error(err))
	}
	logger.Info("vecsync stopped gracefully")
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()

	source, err := dbMongo.Connect(ctx, dbMongo.Config{
		URI:            cfg.Source.URI,
		Database:       cfg.Source.Database,
		ConnectTimeout: time.Duration(cfg.Source.ConnectTimeoutSec) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("connect source: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = source.Close(closeCtx)
	}()
	logger.Info("Connected to source store", zap.String("database", source.DatabaseName()))

	var kv *dbRedis.Store
	if cfg.Redis.Configured() {
		kv, err = connectRedis(ctx, cfg)
		if err != nil {
			return err
		}
		defer kv.Close()
		logger.Info("Connected to redis", zap.Strings("addrs", cfg.Redis.Addrs))
	}

	emb := buildEmbedder(ctx, cfg, kv, logger)

	vectors, err := buildVectorStore(ctx, cfg, source, kv)
	if err != nil {
		return err
	}

	builder, err := semantic.NewBuilder(semantic.Options{
		SemanticMaxBytes:   cfg.Semantic.SemanticMaxBytes,
		SearchableMaxBytes: cfg.Semantic.SearchableMaxBytes,
		Profiles:           profilesFromConfig(cfg.Semantic.Profiles),
	})
	if err != nil {
		return fmt.Errorf("semantic profiles: %w", err)
	}
	logger.Debug("Semantic profiles loaded", zap.Strings("types", builder.ProfileTypes()))

	pc := cfg.Pipeline
	dur := pc.Durations()

	classifier := discovery.NewClassifier(pc.IndexedAtField)
	resolver := discovery.NewResolver(classifier, pc.Discovery.TypeField)
	engine := discovery.New(source, discovery.Config{
		Enabled:        pc.Discovery.AutoDiscover(),
		Collections:    pc.Discovery.Collections,
		MaxCollections: pc.Discovery.MaxCollections,
		SampleLimit:    pc.Discovery.SampleLimit,
		TypeField:      pc.Discovery.TypeField,
		Exclude:        append([]string{cfg.VectorStore.Collection}, pc.Discovery.Exclude...),
		Concurrency:    pc.Discovery.Concurrency,
	}, classifier, logger)

	procCfg := indexing.Config{
		MinTextLength:      pc.MinTextLength,
		DuplicateRetries:   pc.DuplicateRetries,
		DuplicateBaseDelay: dur.DuplicateBaseDelay,
		TenantField:        pc.TenantField,
		DefaultTenant:      pc.DefaultTenant,
		IndexedAtField:     pc.IndexedAtField,
		StampSource:        pc.Stamp(),
		EmbeddingModel:     cfg.Embedding.Model,
		SchemaVersion:      pc.SchemaVersion,
		Timeout:            dur.ProcessTimeout,
	}
	var stamper indexing.Stamper
	if pc.Stamp() {
		stamper = source
	}
	processor := indexing.NewProcessor(procCfg, builder, emb.chain, vectors, stamper, resolver.Resolve, logger)

	ctrl := pipeline.New(pipeline.Config{
		Debounce: debounce.Config{
			Interval:       dur.Debounce,
			Freshness:      dur.Freshness,
			IndexedAtField: pc.IndexedAtField,
		},
		Subscription:        subscription.Config{RetryDelay: dur.SubscriptionRetry},
		MonitorInterval:     dur.MonitorInterval,
		DrainTimeout:        dur.DrainTimeout,
		Backfill:            pc.Backfill,
		BatchSize:           pc.BatchSize,
		BackfillConcurrency: pc.BackfillConcurrency,
		MaxUpsertDelay:      procCfg.MaxUpsertDelay(),
	}, pipeline.Deps{
		Discoverer: engine,
		Publisher:  resolver,
		Opener:     mongoOpener(source),
		Processor:  processor,
		Scanner:    source,
		Logger:     logger,
	})

	health := healthuc.New(ctrl, emb.base).WithStore("source", source)
	if kv != nil {
		health.WithStore("redis", kv)
	}

	handler := chiTransport.NewServer(ctrl, health, logger).
		WithUsage(usageuc.New(cfg.Embedding.Provider, cfg.Embedding.Model, emb.budget)).
		Router(cfg.Auth.APIKeys)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	if err := ctrl.Start(ctx); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serveErr:
		runErr = fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.HTTP.ShutdownSec)*time.Second+dur.DrainTimeout)
	defer cancel()

	if err := ctrl.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping pipeline", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during HTTP shutdown", zap.Error(err))
	}

	return runErr
}
