// Package pipeline orchestrates discovery, change subscriptions, debouncing
// and processing, and owns the only start/stop lifecycle of the system.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/kailas-cloud/vecsync/internal/domain/change"
	"github.com/kailas-cloud/vecsync/internal/domain/schema"
	"github.com/kailas-cloud/vecsync/internal/metrics"
	"github.com/kailas-cloud/vecsync/internal/usecase/debounce"
	"github.com/kailas-cloud/vecsync/internal/usecase/subscription"
)

// Defaults.
const (
	DefaultMonitorInterval     = 60 * time.Second
	DefaultDrainTimeout        = 30 * time.Second
	DefaultBatchSize           = 100
	DefaultBackfillConcurrency = 4
)

// ErrDrainTimeout is returned by Stop when in-flight processing outlived the drain timeout.
var ErrDrainTimeout = errors.New("drain timeout")

var errStopping = errors.New("pipeline stopping")

// Config tunes the controller and the components it creates.
type Config struct {
	Debounce        debounce.Config
	Subscription    subscription.Config
	MonitorInterval time.Duration
	DrainTimeout    time.Duration

	Backfill            bool
	BatchSize           int32
	BackfillConcurrency int

	// MaxUpsertDelay is the longest an upsert may back off; a freshness window
	// shorter than this lets a slow write slip past the feedback-loop guard.
	MaxUpsertDelay time.Duration
}

// Deps are the collaborators the controller drives.
type Deps struct {
	Discoverer Discoverer
	Publisher  RegistryPublisher
	Opener     subscription.Opener
	Processor  Processor
	// Scanner is required only when backfill is enabled.
	Scanner Scanner
	Logger  *zap.Logger
}

// Controller runs one pipeline instance. All state lives here; nothing is global.
type Controller struct {
	cfg  Config
	deps Deps
	log  *zap.Logger
	now  func() time.Time

	stats counters

	// lifecycle serializes Start and Stop; mu guards the fields readers see.
	lifecycle  sync.Mutex
	mu         sync.Mutex
	running    bool
	instanceID string
	startedAt  time.Time
	registry   *schema.Registry
	subs       *subscription.Manager
	debouncer  *debounce.Debouncer
	bgCancel   context.CancelFunc
	bgDone     sync.WaitGroup
	runCancel  context.CancelFunc
	runCtx     context.Context

	inflightMu sync.Mutex
	accepting  bool
	inflight   sync.WaitGroup
}

// New creates a stopped controller.
func New(cfg Config, deps Deps) *Controller {
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = DefaultMonitorInterval
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BackfillConcurrency <= 0 {
		cfg.BackfillConcurrency = DefaultBackfillConcurrency
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{cfg: cfg, deps: deps, log: log, now: time.Now}
}

// Start discovers collections and opens a subscription for each. Calling Start
// on a running controller is a no-op. If discovery fails nothing is left running.
// Readers such as Stats and Healthy are not blocked while Start runs.
func (c *Controller) Start(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if c.isRunning() {
		return nil
	}

	instanceID := uuid.NewString()
	log := c.log.With(zap.String("instance_id", instanceID))
	c.warnFreshness(log)

	reg, err := c.deps.Discoverer.Discover(ctx)
	if err != nil {
		metrics.PipelineErrorsTotal.WithLabelValues("discovery").Inc()
		return fmt.Errorf("discover: %w", err)
	}
	if c.deps.Publisher != nil {
		c.deps.Publisher.SetRegistry(reg)
	}
	metrics.DiscoveredTypes.Set(float64(reg.Len()))

	// in-flight processing outlives Start's ctx; Stop drains it
	c.runCtx, c.runCancel = context.WithCancel(context.WithoutCancel(ctx))
	bgCtx, bgCancel := context.WithCancel(context.WithoutCancel(ctx))

	debouncer := debounce.New(c.cfg.Debounce, c.dispatch, log.Named("debounce"))
	subs := subscription.NewManager(c.deps.Opener, func(ev change.Event) {
		debouncer.Notify(ev.Collection, ev.Document)
	}, c.cfg.Subscription, log.Named("subscription"))

	c.inflightMu.Lock()
	c.accepting = true
	c.inflightMu.Unlock()

	for _, coll := range reg.Collections() {
		sub, err := subs.Open(ctx, coll)
		if err != nil {
			metrics.PipelineErrorsTotal.WithLabelValues("subscription").Inc()
			log.Error("Failed to open change feed", zap.String("collection", coll), zap.Error(err))
			continue
		}
		log.Debug("Change feed opened",
			zap.String("collection", sub.Collection()), zap.Stringer("state", sub.State()))
	}

	c.mu.Lock()
	c.instanceID = instanceID
	c.registry = reg
	c.startedAt = c.now()
	c.debouncer = debouncer
	c.subs = subs
	c.running = true
	c.mu.Unlock()
	c.bgCancel = bgCancel

	c.bgDone.Add(1)
	go c.monitor(bgCtx, debouncer, subs, log)

	if c.cfg.Backfill && c.deps.Scanner != nil {
		c.bgDone.Add(1)
		go c.backfill(bgCtx, c.runCtx, reg, log)
	}

	log.Info("Pipeline started",
		zap.Int("document_types", reg.Len()),
		zap.Int("collections", len(reg.Collections())),
		zap.Int("active_subscriptions", subs.ActiveCount()),
	)
	return nil
}

// Stop stops accepting work, closes subscriptions, clears pending debounce
// timers without firing them, then waits for in-flight processing up to the
// drain timeout or ctx. Work still running then is canceled and ErrDrainTimeout
// (or the ctx error) is returned. Calling Stop on a stopped controller is a no-op.
func (c *Controller) Stop(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()

	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	instanceID, subs, debouncer := c.instanceID, c.subs, c.debouncer
	c.mu.Unlock()
	log := c.log.With(zap.String("instance_id", instanceID))

	c.bgCancel()
	subs.CloseAll()
	debouncer.Stop()
	c.bgDone.Wait()

	c.inflightMu.Lock()
	c.accepting = false
	c.inflightMu.Unlock()

	drained := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(drained)
	}()

	timer := time.NewTimer(c.cfg.DrainTimeout)
	defer timer.Stop()
	var err error
	select {
	case <-drained:
	case <-timer.C:
		err = ErrDrainTimeout
	case <-ctx.Done():
		err = ctx.Err()
	}
	c.runCancel()
	if err != nil {
		log.Warn("In-flight processing did not finish, canceled",
			zap.Int64("in_flight", c.stats.inFlight.Load()), zap.Error(err))
		<-drained
	}

	snap := c.Stats()
	log.Info("Pipeline stopped",
		zap.Int64("documents_processed", snap.DocumentsProcessed),
		zap.Int64("errors", snap.Errors),
		zap.Float64("uptime_seconds", snap.UptimeSeconds),
	)
	if err != nil {
		return fmt.Errorf("drain: %w", err)
	}
	return nil
}

func (c *Controller) isRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Healthy reports running with at least one active subscription.
func (c *Controller) Healthy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running && c.subs.ActiveCount() >= 1
}

// Registry returns the registry built by the last Start, or nil.
func (c *Controller) Registry() *schema.Registry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry
}

// Subscriptions returns per-collection subscription status.
func (c *Controller) Subscriptions() []subscription.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs == nil {
		return []subscription.Status{}
	}
	return c.subs.Snapshot()
}

// Stats returns the current metrics snapshot.
func (c *Controller) Stats() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		InstanceID:          c.instanceID,
		Running:             c.running,
		DocumentsProcessed:  c.stats.processed.Load(),
		DocumentsIndexed:    c.stats.indexed.Load(),
		DocumentsSkipped:    c.stats.skipped.Load(),
		EmbeddingsGenerated: c.stats.embeddings.Load(),
		Errors:              c.stats.errors.Load(),
		InFlight:            c.stats.inFlight.Load(),
		Collections:         []string{},
		Types:               []TypeSummary{},
	}
	if !c.startedAt.IsZero() {
		s.StartedAt = c.startedAt
		s.UptimeSeconds = c.now().Sub(c.startedAt).Seconds()
	}
	if c.registry != nil {
		s.DocumentTypes = c.registry.Len()
		s.Collections = c.registry.Collections()
		for _, e := range c.registry.Entries() {
			s.Types = append(s.Types, TypeSummary{
				Name:        e.TypeName,
				Collection:  e.SourceCollection,
				SampleCount: e.SampleCount,
			})
		}
	}
	if c.running {
		s.PendingUpdates = c.debouncer.Pending()
		s.ActiveSubscriptions = c.subs.ActiveCount()
		s.Subscriptions = len(c.subs.Snapshot())
	}
	return s
}

// dispatch starts one independent processing task per fired document.
func (c *Controller) dispatch(collection string, doc change.Document) {
	if !c.track() {
		return
	}
	go func() {
		defer c.inflight.Done()
		c.process(c.runCtx, collection, doc)
	}()
}

// track registers one processing task with the drain group. It returns false
// once Stop has stopped accepting work.
func (c *Controller) track() bool {
	c.inflightMu.Lock()
	defer c.inflightMu.Unlock()
	if !c.accepting {
		return false
	}
	c.inflight.Add(1)
	return true
}

func (c *Controller) process(ctx context.Context, collection string, doc change.Document) {
	c.stats.inFlight.Add(1)
	defer c.stats.inFlight.Add(-1)
	out := c.deps.Processor.Process(ctx, collection, doc)
	c.stats.record(out)
}

func (c *Controller) monitor(ctx context.Context, debouncer *debounce.Debouncer, subs *subscription.Manager, log *zap.Logger) {
	defer c.bgDone.Done()
	startedAt := c.now()
	ticker := time.NewTicker(c.cfg.MonitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Info("pipeline_stats",
				zap.Int64("documents_processed", c.stats.processed.Load()),
				zap.Int64("documents_indexed", c.stats.indexed.Load()),
				zap.Int64("embeddings_generated", c.stats.embeddings.Load()),
				zap.Int64("errors", c.stats.errors.Load()),
				zap.Int("pending_updates", debouncer.Pending()),
				zap.Int64("in_flight", c.stats.inFlight.Load()),
				zap.Int("active_subscriptions", subs.ActiveCount()),
				zap.Float64("uptime_seconds", c.now().Sub(startedAt).Seconds()),
			)
		}
	}
}

// backfill runs existing, never-stamped documents through processing. The scan
// stops when scanCtx ends; queued documents run under runCtx and are drained
// by Stop like any other processing task.
func (c *Controller) backfill(scanCtx, runCtx context.Context, reg *schema.Registry, log *zap.Logger) {
	defer c.bgDone.Done()
	indexedAt := c.cfg.Debounce.IndexedAtField
	if indexedAt == "" {
		indexedAt = debounce.DefaultIndexedAtField
	}
	slots := semaphore.NewWeighted(int64(c.cfg.BackfillConcurrency))

	for _, coll := range reg.Collections() {
		var queued int
		var wg sync.WaitGroup
		err := c.deps.Scanner.Scan(scanCtx, coll, nil, c.cfg.BatchSize, func(doc change.Document) error {
			if err := scanCtx.Err(); err != nil {
				return err //nolint:wrapcheck // scan stop signal
			}
			if _, stamped := doc[indexedAt]; stamped {
				return nil
			}
			if err := slots.Acquire(scanCtx, 1); err != nil {
				return err //nolint:wrapcheck // scan stop signal
			}
			if !c.track() {
				slots.Release(1)
				return errStopping
			}
			queued++
			wg.Add(1)
			go func() {
				defer func() {
					slots.Release(1)
					wg.Done()
					c.inflight.Done()
				}()
				c.process(runCtx, coll, doc)
			}()
			return nil
		})

		if !waitGroup(scanCtx, &wg) || scanCtx.Err() != nil || errors.Is(err, errStopping) {
			log.Info("Backfill interrupted", zap.String("collection", coll))
			return
		}
		if err != nil {
			metrics.PipelineErrorsTotal.WithLabelValues("backfill").Inc()
			log.Error("Backfill scan failed", zap.String("collection", coll), zap.Error(err))
			continue
		}
		log.Info("Backfill complete", zap.String("collection", coll), zap.Int("documents", queued))
	}
}

// waitGroup waits for wg unless ctx ends first.
func waitGroup(ctx context.Context, wg *sync.WaitGroup) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Controller) warnFreshness(log *zap.Logger) {
	freshness := c.cfg.Debounce.Freshness
	if freshness > 0 && c.cfg.MaxUpsertDelay > 0 && freshness < c.cfg.MaxUpsertDelay {
		log.Warn("Freshness window is shorter than the worst-case upsert backoff; slow writes may re-trigger indexing",
			zap.Duration("freshness", freshness),
			zap.Duration("max_upsert_delay", c.cfg.MaxUpsertDelay),
		)
	}
}
