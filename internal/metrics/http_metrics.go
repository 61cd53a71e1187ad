package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Vector DB REST client metrics
// =============================================================================

var (
	// RequestsTotal counts REST calls by operation and outcome ("ok", "http_4xx", "http_5xx", "error")
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vdbload_requests_total",
			Help: "Total number of requests sent to the vector database",
		},
		[]string{"operation", "status"},
	)

	// RequestDurationSeconds measures request latency including body upload
	RequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vdbload_request_duration_seconds",
			Help:    "Latency of vector database requests",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)

	// RequestBytesTotal counts encoded request body bytes
	RequestBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vdbload_request_bytes_total",
			Help: "Total request body bytes sent to the vector database",
		},
		[]string{"operation"},
	)

	// RateLimitWaitSeconds measures time spent waiting on the client-side rate limiter
	RateLimitWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vdbload_rate_limit_wait_seconds",
			Help:    "Time requests spent waiting for a rate limiter token",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5},
		},
	)

	// BufferPoolOperations counts response buffer pool operations ("get", "put")
	BufferPoolOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vdbload_buffer_pool_operations_total",
			Help: "Total number of response buffer pool operations",
		},
		[]string{"operation"},
	)
)

// StatusLabel maps an HTTP status (0 = transport error) to a low-cardinality label.
func StatusLabel(code int) string {
	switch {
	case code == 0:
		return "error"
	case code >= 200 && code < 300:
		return "ok"
	case code >= 400 && code < 500:
		return "http_4xx"
	case code >= 500:
		return "http_5xx"
	default:
		return "http_other"
	}
}
