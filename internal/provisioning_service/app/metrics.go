package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	itemsProcessedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "provisioning",
			Name:      "items_processed_total",
			Help:      "Total queue items processed by the drain worker.",
		},
		[]string{"outcome"}, // "completed", "rescheduled", "failed", "partial", "max_attempts_reached", "error_bookkeeping"
	)

	numbersProvisionedCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "provisioning",
			Name:      "numbers_provisioned_total",
			Help:      "Total numbers successfully provisioned via the queue.",
		},
	)

	drainDurationHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "provisioning",
			Name:      "drain_duration_seconds",
			Help:      "Duration of queue drain passes.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	drainLeaseContentionCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "provisioning",
			Name:      "drain_lease_contention_total",
			Help:      "Drain passes skipped because another instance held the lease.",
		},
	)
)
