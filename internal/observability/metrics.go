package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Global metrics instance for singleton pattern
	globalCollector *Collector
	collectorMutex  sync.Mutex
)

// Collector holds all Prometheus metrics for the Kartograph core.
type Collector struct {
	// Registry for this collector instance
	registry *prometheus.Registry

	// Outbox worker metrics
	OutboxClaimed        prometheus.Counter
	OutboxProcessed      prometheus.Counter
	OutboxFailed         prometheus.Counter
	OutboxDeadLettered   prometheus.Counter
	NotificationsDropped prometheus.Counter
	BatchDuration        prometheus.Histogram

	// Policy engine metrics
	EngineCalls *prometheus.CounterVec

	// Bulk loader metrics
	BulkOperations   *prometheus.CounterVec
	BulkPhaseSeconds *prometheus.HistogramVec
	BulkBatchErrors  prometheus.Counter
}

// NewCollector creates a new metrics collector with the given namespace.
func NewCollector(namespace string) *Collector {
	// Use singleton pattern to avoid duplicate registration in tests
	collectorMutex.Lock()
	defer collectorMutex.Unlock()

	if globalCollector != nil {
		return globalCollector
	}

	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		OutboxClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_rows_claimed_total",
			Help:      "Total number of outbox rows claimed by the worker",
		}),
		OutboxProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_rows_processed_total",
			Help:      "Total number of outbox rows processed successfully",
		}),
		OutboxFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_rows_failed_total",
			Help:      "Total number of outbox row processing failures",
		}),
		OutboxDeadLettered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_rows_dead_lettered_total",
			Help:      "Total number of outbox rows parked after exhausting retries",
		}),
		NotificationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_notifications_dropped_total",
			Help:      "Total number of malformed or unparseable notifications dropped",
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outbox_batch_duration_seconds",
			Help:      "Duration of one claim-translate-apply batch",
			Buckets:   prometheus.DefBuckets,
		}),
		EngineCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_engine_calls_total",
			Help:      "Total number of policy engine calls by operation and outcome",
		}, []string{"operation", "outcome"}),
		BulkOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bulk_operations_total",
			Help:      "Total number of bulk mutation operations applied",
		}, []string{"op", "kind"}),
		BulkPhaseSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bulk_phase_duration_seconds",
			Help:      "Duration of each bulk-load phase",
			Buckets:   prometheus.DefBuckets,
		}, []string{"phase"}),
		BulkBatchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bulk_batch_errors_total",
			Help:      "Total number of bulk batches rolled back",
		}),
	}

	registry.MustRegister(
		c.OutboxClaimed,
		c.OutboxProcessed,
		c.OutboxFailed,
		c.OutboxDeadLettered,
		c.NotificationsDropped,
		c.BatchDuration,
		c.EngineCalls,
		c.BulkOperations,
		c.BulkPhaseSeconds,
		c.BulkBatchErrors,
	)

	globalCollector = c
	return c
}

// Registry exposes the collector's registry for the metrics endpoint.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObservePhase records a bulk-load phase duration.
func (c *Collector) ObservePhase(phase string, start time.Time) {
	c.BulkPhaseSeconds.WithLabelValues(phase).Observe(time.Since(start).Seconds())
}
