// Package metrics provides Prometheus metrics for the shipping rate service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Rate computation outcomes.
const (
	OutcomePriced      = "priced"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)

var (
	// HTTPRequestDuration tracks HTTP request duration by method, route, and status code.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status_code"},
	)

	// HTTPRequestTotal tracks total HTTP requests by method, route, and status code.
	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	// RateComputationsTotal tracks shipping rate computations by shipping method and outcome.
	RateComputationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shipping_rate_computations_total",
			Help: "Total number of shipping rate computations",
		},
		[]string{"method", "outcome"},
	)

	// CarrierLookupDuration tracks carrier rate lookup latency.
	CarrierLookupDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "carrier_rate_lookup_duration_seconds",
			Help:    "Carrier rate lookup duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"carrier", "outcome"},
	)

	// CacheOperationsTotal tracks rate cache operations.
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_cache_operations_total",
			Help: "Total number of rate cache operations",
		},
		[]string{"operation", "result"},
	)
)

// RecordRateComputation records the outcome of a single rate computation.
func RecordRateComputation(method, outcome string) {
	RateComputationsTotal.WithLabelValues(method, outcome).Inc()
}

// RecordCarrierLookup records a carrier rate lookup.
func RecordCarrierLookup(carrier string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = OutcomeError
	}
	CarrierLookupDuration.WithLabelValues(carrier, outcome).Observe(duration.Seconds())
}

// RecordCacheOperation records metrics for a cache operation.
func RecordCacheOperation(operation, result string) {
	CacheOperationsTotal.WithLabelValues(operation, result).Inc()
}

// Handler exposes the registered metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware collects HTTP metrics. It must wrap the ServeMux directly so the
// matched route pattern is available once the request has been served.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(rec.status)

		HTTPRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		HTTPRequestTotal.WithLabelValues(r.Method, route, status).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
