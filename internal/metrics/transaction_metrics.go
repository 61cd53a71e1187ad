package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BatchesTotal counts batch upserts by outcome ("ok", "failed")
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vdbload_batches_total",
			Help: "Total number of batch upserts submitted",
		},
		[]string{"status"},
	)

	// BatchesInFlight tracks batches currently being submitted
	BatchesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vdbload_batches_in_flight",
			Help: "Number of batch upserts currently in flight",
		},
	)

	// VectorsUpsertedTotal counts vectors accepted by successful batch upserts
	VectorsUpsertedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vdbload_vectors_upserted_total",
			Help: "Total number of vectors in successful batch upserts",
		},
	)

	// TransactionsTotal counts transactions by outcome ("committed", "aborted", "create_failed", "source_failed", "abort_failed", "failed")
	TransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vdbload_transactions_total",
			Help: "Total number of transactions by outcome",
		},
		[]string{"outcome"},
	)

	// TransactionDurationSeconds measures wall-clock time from open to commit/abort
	TransactionDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vdbload_transaction_duration_seconds",
			Help:    "Wall-clock duration of a transaction from open to commit or abort",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	// GenerationDurationSeconds measures synthetic vector generation per transaction
	GenerationDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vdbload_generation_duration_seconds",
			Help:    "Time to produce the vectors of one transaction",
			Buckets: prometheus.DefBuckets,
		},
	)
)
