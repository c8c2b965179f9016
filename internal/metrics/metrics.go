package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	answerBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "answer_batches_total",
			Help: "Submitted answer batches by gold check outcome",
		},
		[]string{"outcome"},
	)

	answersStoredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "answers_stored_total",
			Help: "Persisted answers by gold standard status",
		},
		[]string{"status"},
	)

	locationsResolvedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "locations_resolved_total",
			Help: "Locations marked done by crowd consensus",
		},
	)

	locationSamplesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "location_samples_total",
			Help: "Location batch requests by result",
		},
		[]string{"result"},
	)

	importRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "import_rows_total",
			Help: "Imported CSV rows by resource and result",
		},
		[]string{"resource", "result"},
	)
)

// MetricsMiddleware collects Prometheus metrics for HTTP requests
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpRequestsInFlight.Inc()

		// Route pattern keeps label cardinality bounded
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}

		c.Next()

		httpRequestsInFlight.Dec()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		httpRequestsTotal.WithLabelValues(c.Request.Method, endpoint, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(duration)
	}
}

// RecordBatch records a reconciled answer batch.
// outcome is "passed", "failed" or "rejected".
func RecordBatch(outcome string, stored int, status string) {
	answerBatchesTotal.WithLabelValues(outcome).Inc()
	if stored > 0 {
		answersStoredTotal.WithLabelValues(status).Add(float64(stored))
	}
}

// RecordResolved records locations resolved by consensus
func RecordResolved(n int) {
	if n > 0 {
		locationsResolvedTotal.Add(float64(n))
	}
}

// RecordSample records the result of a location batch request
func RecordSample(result string) {
	locationSamplesTotal.WithLabelValues(result).Inc()
}

// RecordImport records imported row counts
func RecordImport(resource string, successful, skipped, failed int) {
	importRowsTotal.WithLabelValues(resource, "successful").Add(float64(successful))
	importRowsTotal.WithLabelValues(resource, "skipped").Add(float64(skipped))
	importRowsTotal.WithLabelValues(resource, "failed").Add(float64(failed))
}
