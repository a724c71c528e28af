package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline Prometheus metrics.
var (
	DocumentsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_processed_total",
			Help:      "Documents that reached processing, by outcome",
		},
		[]string{"collection", "outcome"}, // indexed / skipped_short / skipped_duplicate / failed
	)

	EmbeddingsGeneratedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embeddings_generated_total",
			Help:      "Embeddings successfully generated for vector records",
		},
	)

	PipelineErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_errors_total",
			Help:      "Pipeline errors by stage",
		},
		[]string{"stage"}, // embed / upsert / stamp / panic / subscription / discovery
	)

	DuplicateRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upsert_duplicate_retries_total",
			Help:      "Upsert retries caused by duplicate-key races",
		},
	)

	ProcessingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "document_processing_duration_seconds",
			Help:      "Time from debounce expiry to persisted vector record",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	DebounceEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "debounce_events_total",
			Help:      "Change notifications seen by the debouncer, by result",
		},
		[]string{"result"}, // scheduled / coalesced / fresh / no_id / stopped
	)

	PendingUpdates = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_updates",
			Help:      "Documents waiting for their quiet window to elapse",
		},
	)

	ActiveSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_subscriptions",
			Help:      "Change-feed subscriptions currently in the Active state",
		},
	)

	SubscriptionRestartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_restarts_total",
			Help:      "Change-feed reopen attempts after recoverable errors",
		},
		[]string{"collection"},
	)

	SubscriptionFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_failures_total",
			Help:      "Subscriptions that entered the PermanentlyFailed state",
		},
		[]string{"collection"},
	)

	DiscoveredTypes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "discovered_document_types",
			Help:      "Document types in the registry built at startup",
		},
	)
)

var registerPipelineOnce sync.Once

// RegisterPipelineMetrics registers pipeline metrics with the default registry. Safe to call repeatedly.
func RegisterPipelineMetrics() {
	registerPipelineOnce.Do(func() {
		prometheus.MustRegister(
			DocumentsProcessedTotal,
			EmbeddingsGeneratedTotal,
			PipelineErrorsTotal,
			DuplicateRetriesTotal,
			ProcessingDuration,
			DebounceEventsTotal,
			PendingUpdates,
			ActiveSubscriptions,
			SubscriptionRestartsTotal,
			SubscriptionFailuresTotal,
			DiscoveredTypes,
		)
	})
}
