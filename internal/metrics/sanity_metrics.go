package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SanityQueriesTotal counts sanity-check queries by outcome ("self_found", "self_missing", "error")
	SanityQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vdbload_sanity_queries_total",
			Help: "Total number of search sanity-check queries by outcome",
		},
		[]string{"outcome"},
	)

	// SanityRecall reports mean recall@k of the last sanity check
	SanityRecall = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vdbload_sanity_recall",
			Help: "Mean recall@k of ANN results against brute force in the last sanity check",
		},
	)

	// BruteForceDurationSeconds measures exact top-k scans
	BruteForceDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vdbload_bruteforce_duration_seconds",
			Help:    "Duration of exact brute-force top-k scans",
			Buckets: prometheus.DefBuckets,
		},
	)
)
