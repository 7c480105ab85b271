// Package metrics holds the Prometheus instrumentation for the processing
// engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ItemsProcessed tracks successfully processed items.
	ItemsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snapper_items_processed_total",
			Help: "Total number of items processed successfully",
		},
	)

	// ItemsFailed tracks items whose user function returned an error.
	ItemsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snapper_items_failed_total",
			Help: "Total number of items that failed processing",
		},
	)

	// ItemDuration tracks per-item processing latency.
	ItemDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "snapper_item_duration_seconds",
			Help:    "Per-item processing duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// BatchesFlushed tracks batches handed to the durable-write worker.
	BatchesFlushed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snapper_batches_flushed_total",
			Help: "Total number of batches handed to the durable-write worker",
		},
	)

	// WriteRetries tracks retried durable-write attempts.
	WriteRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snapper_write_retries_total",
			Help: "Total number of retried durable-write attempts",
		},
	)

	// WriteFailures tracks write units that exhausted their retry budget.
	WriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snapper_write_failures_total",
			Help: "Total number of write units dropped after exhausting retries",
		},
	)

	// QueueDepth tracks the number of units waiting in the write queue.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "snapper_write_queue_depth",
			Help: "Number of units waiting in the durable-write queue",
		},
	)
)
