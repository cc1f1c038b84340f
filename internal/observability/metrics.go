package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "groo_http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groo_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "groo_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	AuthEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groo_auth_events_total",
			Help: "Authentication operations by outcome.",
		},
		[]string{"operation", "outcome"},
	)

	AdmissionDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groo_admission_decisions_total",
			Help: "Rate limiter decisions.",
		},
		[]string{"decision"},
	)

	RevocationStoreErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "groo_revocation_store_errors_total",
			Help: "Revocation cache operations that failed against the backing store.",
		},
		[]string{"operation"},
	)

	registerOnce sync.Once
)

// InitMetrics registers the collectors with the default registry.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight,
			httpRequestsTotal,
			httpRequestDuration,
			AuthEvents,
			AdmissionDecisions,
			RevocationStoreErrors,
		)
	})
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		defer httpInFlight.Dec()

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(recorder, r)

		// Pattern is filled in by ServeMux; raw paths would explode label cardinality.
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}

		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(recorder.statusCode)).Inc()
	})
}
