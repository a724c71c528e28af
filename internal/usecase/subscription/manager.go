// Package subscription owns one resilient change-feed subscription per monitored collection.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecsync/internal/domain"
	"github.com/kailas-cloud/vecsync/internal/domain/change"
	"github.com/kailas-cloud/vecsync/internal/metrics"
)

// DefaultRetryDelay is the pause before reopening a failed feed.
const DefaultRetryDelay = 5 * time.Second

const closeTimeout = 5 * time.Second

// ErrManagerClosed is returned by Open after CloseAll.
var ErrManagerClosed = errors.New("subscription manager closed")

// Config tunes restart behavior.
type Config struct {
	RetryDelay time.Duration
}

// Subscription is a live feed for one collection.
type Subscription struct {
	collection string
	cancel     context.CancelFunc
	done       chan struct{}

	mu          sync.Mutex
	state       State
	since       time.Time
	restarts    int
	events      int64
	lastErr     error
	resumeToken []byte
}

// Collection returns the monitored collection name.
func (s *Subscription) Collection() string { return s.collection }

// State returns the current state.
func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed when the subscription goroutine has exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Collection: s.collection,
		State:      s.state.String(),
		Since:      s.since,
		Restarts:   s.restarts,
		Events:     s.events,
		Resumable:  len(s.resumeToken) > 0,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

func (s *Subscription) token() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumeToken
}

// Manager owns the subscription table. Only its methods mutate it.
type Manager struct {
	open   Opener
	sink   Sink
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	subs    map[string]*Subscription
	opening map[string]chan struct{}
	closed  bool
}

// NewManager creates a manager.
func NewManager(open Opener, sink Sink, cfg Config, logger *zap.Logger) *Manager {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	return &Manager{
		open:    open,
		sink:    sink,
		cfg:     cfg,
		logger:  logger,
		subs:    make(map[string]*Subscription),
		opening: make(map[string]chan struct{}),
	}
}

// Open subscribes to collection. An existing live subscription is returned as is.
// A first-open failure that reopening would repeat is returned as an error; a
// recoverable one leaves the subscription Restarting. The opener runs without
// holding the manager lock; concurrent Opens of one collection wait for the first.
func (m *Manager) Open(ctx context.Context, collection string) (*Subscription, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	if sub, ok := m.subs[collection]; ok && !sub.State().Terminal() {
		m.mu.Unlock()
		return sub, nil
	}
	if wait, ok := m.opening[collection]; ok {
		m.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, fmt.Errorf("open %s: %w", collection, ctx.Err())
		}
		return m.Open(ctx, collection)
	}
	wait := make(chan struct{})
	m.opening[collection] = wait
	m.mu.Unlock()

	stream, err := m.open(ctx, collection, nil)

	m.mu.Lock()
	delete(m.opening, collection)
	close(wait)

	if m.closed {
		m.mu.Unlock()
		if stream != nil {
			closeStream(stream, m.logger)
		}
		return nil, ErrManagerClosed
	}
	if err != nil && isTerminal(err) {
		m.mu.Unlock()
		metrics.SubscriptionFailuresTotal.WithLabelValues(collection).Inc()
		return nil, fmt.Errorf("open %s: %w", collection, err)
	}

	// subscriptions outlive the caller's context; Close/CloseAll stop them
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &Subscription{
		collection: collection,
		cancel:     cancel,
		done:       make(chan struct{}),
		state:      StateActive,
		since:      time.Now(),
	}
	if err != nil {
		sub.state = StateRestarting
		sub.lastErr = err
		m.logger.Warn("Change feed open failed, will retry",
			zap.String("collection", collection),
			zap.Duration("retry_delay", m.cfg.RetryDelay),
			zap.Error(err),
		)
	}
	m.subs[collection] = sub
	m.updateGauge()
	m.mu.Unlock()

	go m.run(runCtx, sub, stream)
	return sub, nil
}

// run pumps events until the context is canceled or the feed fails terminally.
func (m *Manager) run(ctx context.Context, sub *Subscription, stream Stream) {
	defer close(sub.done)
	log := m.logger.With(zap.String("collection", sub.collection))

	for {
		if stream == nil {
			if !sleep(ctx, m.cfg.RetryDelay) {
				m.setState(sub, StateClosed, nil)
				return
			}
			s, err := m.open(ctx, sub.collection, sub.token())
			if err != nil {
				if ctx.Err() != nil {
					m.setState(sub, StateClosed, nil)
					return
				}
				if !m.handleFailure(sub, err, log) {
					return
				}
				continue
			}
			stream = s
			m.setState(sub, StateActive, nil)
			log.Info("Change feed reopened")
		}

		ev, err := stream.Next(ctx)
		if err == nil {
			m.deliver(sub, ev)
			continue
		}

		closeStream(stream, log)
		stream = nil
		if ctx.Err() != nil {
			m.setState(sub, StateClosed, nil)
			return
		}
		if !m.handleFailure(sub, err, log) {
			return
		}
	}
}

// handleFailure moves sub to Restarting or PermanentlyFailed. Returns false when the loop must stop.
func (m *Manager) handleFailure(sub *Subscription, err error, log *zap.Logger) bool {
	if isTerminal(err) {
		m.setState(sub, StatePermanentlyFailed, err)
		metrics.SubscriptionFailuresTotal.WithLabelValues(sub.collection).Inc()
		metrics.PipelineErrorsTotal.WithLabelValues("subscription").Inc()
		log.Error("Change feed failed permanently, not restarting", zap.Error(err))
		return false
	}

	if errors.Is(err, domain.ErrResumePointLost) {
		sub.mu.Lock()
		sub.resumeToken = nil
		sub.mu.Unlock()
		log.Warn("Resume point lost, reopening from now; changes in the gap are missed", zap.Error(err))
	} else if errors.Is(err, io.EOF) {
		log.Info("Change feed ended, reopening")
	}

	sub.mu.Lock()
	sub.restarts++
	sub.mu.Unlock()
	m.setState(sub, StateRestarting, err)
	metrics.SubscriptionRestartsTotal.WithLabelValues(sub.collection).Inc()
	log.Warn("Change feed interrupted, restarting",
		zap.Duration("retry_delay", m.cfg.RetryDelay), zap.Error(err))
	return true
}

func (m *Manager) deliver(sub *Subscription, ev change.Event) {
	sub.mu.Lock()
	if len(ev.ResumeToken) > 0 {
		sub.resumeToken = ev.ResumeToken
	}
	sub.events++
	sub.mu.Unlock()

	if !ev.Operation.Indexable() || ev.Document == nil {
		return
	}
	if ev.Collection == "" {
		ev.Collection = sub.collection
	}
	m.sink(ev)
}

func (m *Manager) setState(sub *Subscription, state State, err error) {
	sub.mu.Lock()
	if sub.state != state {
		sub.state = state
		sub.since = time.Now()
	}
	if err != nil {
		sub.lastErr = err
	}
	sub.mu.Unlock()

	m.mu.Lock()
	m.updateGauge()
	m.mu.Unlock()
}

// updateGauge requires m.mu.
func (m *Manager) updateGauge() {
	n := 0
	for _, s := range m.subs {
		if s.State() == StateActive {
			n++
		}
	}
	metrics.ActiveSubscriptions.Set(float64(n))
}

// Close stops the subscription for collection and waits for it to exit.
func (m *Manager) Close(collection string) {
	m.mu.Lock()
	sub, ok := m.subs[collection]
	delete(m.subs, collection)
	m.updateGauge()
	m.mu.Unlock()
	if !ok {
		return
	}
	sub.cancel()
	<-sub.done
}

// CloseAll stops every subscription and rejects further Opens. Safe to call repeatedly.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	m.closed = true
	subs := make([]*Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		subs = append(subs, s)
	}
	m.mu.Unlock()

	for _, s := range subs {
		s.cancel()
	}
	for _, s := range subs {
		<-s.done
	}
	if len(subs) > 0 {
		m.logger.Info("Closed change feeds", zap.Int("count", len(subs)))
	}
}

// ActiveCount returns the number of subscriptions in the Active state.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.subs {
		if s.State() == StateActive {
			n++
		}
	}
	return n
}

// Snapshot returns every subscription's status sorted by collection.
func (m *Manager) Snapshot() []Status {
	m.mu.Lock()
	out := make([]Status, 0, len(m.subs))
	for _, s := range m.subs {
		out = append(out, s.status())
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Collection < out[j].Collection })
	return out
}

// isTerminal reports errors that reopening the feed would only repeat.
func isTerminal(err error) bool {
	return errors.Is(err, domain.ErrDocumentTooLarge)
}

func closeStream(s Stream, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		log.Debug("Failed to close change feed", zap.Error(err))
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
