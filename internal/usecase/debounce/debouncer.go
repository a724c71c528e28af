// Package debounce coalesces bursts of change notifications per document.
package debounce

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecsync/internal/domain/change"
	"github.com/kailas-cloud/vecsync/internal/metrics"
)

// Defaults.
const (
	DefaultInterval       = 3 * time.Second
	DefaultIndexedAtField = "_vectorIndexedAt"
)

// Handler receives a document once its quiet window has elapsed.
// It runs on the timer goroutine and should hand work off quickly.
type Handler func(collection string, doc change.Document)

// Config tunes the quiet window and the feedback-loop guard.
type Config struct {
	Interval time.Duration
	// Freshness drops notifications for documents stamped more recently than this.
	Freshness      time.Duration
	IndexedAtField string
}

type key struct {
	collection string
	documentID string
}

type pendingUpdate struct {
	timer       *time.Timer
	gen         uint64
	scheduledAt time.Time
}

// Debouncer keeps at most one pending timer per (collection, document id).
type Debouncer struct {
	cfg     Config
	handler Handler
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	pending map[key]*pendingUpdate
	gen     uint64
	stopped bool
}

// New creates a debouncer. Zero config fields take their defaults.
func New(cfg Config, handler Handler, logger *zap.Logger) *Debouncer {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Freshness < 0 {
		cfg.Freshness = 0
	}
	if cfg.IndexedAtField == "" {
		cfg.IndexedAtField = DefaultIndexedAtField
	}
	return &Debouncer{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		now:     time.Now,
		pending: make(map[key]*pendingUpdate),
	}
}

// Notify schedules doc for processing after the quiet window, replacing any
// pending timer for the same document. Returns false when the notification was dropped.
func (d *Debouncer) Notify(collection string, doc change.Document) bool {
	id := doc.ID()
	if id == "" {
		metrics.DebounceEventsTotal.WithLabelValues("no_id").Inc()
		return false
	}
	if d.isFresh(doc) {
		metrics.DebounceEventsTotal.WithLabelValues("fresh").Inc()
		d.logger.Debug("Dropping self-triggered change",
			zap.String("collection", collection), zap.String("document_id", id))
		return false
	}

	k := key{collection: collection, documentID: id}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		metrics.DebounceEventsTotal.WithLabelValues("stopped").Inc()
		return false
	}

	result := "scheduled"
	if prev, ok := d.pending[k]; ok {
		prev.timer.Stop()
		result = "coalesced"
	} else {
		metrics.PendingUpdates.Inc()
	}

	d.gen++
	gen := d.gen
	d.pending[k] = &pendingUpdate{
		gen:         gen,
		scheduledAt: d.now(),
		timer:       time.AfterFunc(d.cfg.Interval, func() { d.fire(k, gen, doc) }),
	}
	metrics.DebounceEventsTotal.WithLabelValues(result).Inc()
	return true
}

// fire hands the document to the handler unless a newer notification replaced it.
// Timer.Stop can lose the race against an already-fired timer, hence the generation check.
func (d *Debouncer) fire(k key, gen uint64, doc change.Document) {
	d.mu.Lock()
	p, ok := d.pending[k]
	if !ok || p.gen != gen || d.stopped {
		d.mu.Unlock()
		return
	}
	delete(d.pending, k)
	metrics.PendingUpdates.Dec()
	d.mu.Unlock()

	d.handler(k.collection, doc)
}

func (d *Debouncer) isFresh(doc change.Document) bool {
	if d.cfg.Freshness == 0 {
		return false
	}
	at, ok := doc.Time(d.cfg.IndexedAtField)
	if !ok {
		return false
	}
	return d.now().Sub(at) < d.cfg.Freshness
}

// Pending returns the number of documents waiting for their quiet window.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Stop clears every pending timer without firing it. Later notifications are dropped.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	for k, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, k)
	}
	metrics.PendingUpdates.Set(0)
	if n := d.gen; n > 0 {
		d.logger.Debug("Debouncer stopped", zap.Uint64("notifications_seen", n))
	}
}
