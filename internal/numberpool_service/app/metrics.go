package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reservationsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "numberpool",
			Name:      "reservations_total",
			Help:      "Total reservation attempts.",
		},
		[]string{"region", "outcome"}, // outcome: "success", "no_available", "exhausted", "error"
	)

	assignmentsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "numberpool",
			Name:      "assignments_total",
			Help:      "Total assignment attempts.",
		},
		[]string{"outcome"}, // outcome: "success", "already_assigned", "reserved_by_other", "gateway_error", "error"
	)

	releasesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "numberpool",
			Name:      "releases_total",
			Help:      "Total release and cancellation calls.",
		},
		[]string{"action", "outcome"}, // action: "release", "cancel"; outcome: "success", "noop", "error"
	)

	sweepTransitionsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "numberpool",
			Name:      "sweep_transitions_total",
			Help:      "Entries transitioned by maintenance sweeps.",
		},
		[]string{"sweep"}, // "expire", "recycle"
	)

	importGatewayDurationHist = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "numberpool",
			Name:      "import_gateway_request_duration_seconds",
			Help:      "Duration of telephony import gateway calls.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	availableEntriesGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "numberpool",
			Name:      "available_entries",
			Help:      "Available pool entries per region, updated on stats aggregation.",
		},
		[]string{"region"},
	)
)
