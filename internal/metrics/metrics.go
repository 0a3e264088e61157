// Package metrics provides Prometheus metrics for the AI manager API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aimanager",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path, and status code",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures HTTP request duration in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "aimanager",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// HTTPRequestsInFlight tracks current in-flight requests
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "aimanager",
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Current number of HTTP requests being processed",
		},
	)
)

var (
	// StreamsActive tracks generation streams currently open
	StreamsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "aimanager",
			Subsystem: "relay",
			Name:      "streams_active",
			Help:      "Number of generation streams currently being relayed",
		},
	)

	// ChunksRelayed counts text chunks relayed downstream
	ChunksRelayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "aimanager",
			Subsystem: "relay",
			Name:      "chunks_relayed_total",
			Help:      "Total number of text chunks relayed to clients",
		},
	)

	// UpstreamErrors counts streams terminated by an upstream failure
	UpstreamErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "aimanager",
			Subsystem: "relay",
			Name:      "upstream_errors_total",
			Help:      "Total number of streams terminated by an upstream error",
		},
	)

	// StreamDuration measures how long each stream stayed open
	StreamDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "aimanager",
			Subsystem: "relay",
			Name:      "stream_duration_seconds",
			Help:      "Duration of generation streams in seconds",
			Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	// RateLimitDenials counts rejected requests per scope
	RateLimitDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aimanager",
			Subsystem: "ratelimit",
			Name:      "denials_total",
			Help:      "Total number of requests denied by rate limiting, by scope",
		},
		[]string{"scope"},
	)
)

var (
	// ActivityEntriesRecorded counts activity entries written, by type
	ActivityEntriesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aimanager",
			Subsystem: "activity",
			Name:      "entries_recorded_total",
			Help:      "Total number of activity log entries recorded, by type",
		},
		[]string{"activity_type"},
	)

	// ActivityRecordFailures counts swallowed logging failures
	ActivityRecordFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "aimanager",
			Subsystem: "activity",
			Name:      "record_failures_total",
			Help:      "Total number of activity log writes that failed and were swallowed",
		},
	)
)

// Middleware instruments HTTP requests with the standard metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		path := routePattern(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// routePattern returns the chi route pattern to keep label cardinality
// bounded, falling back to the raw path when no pattern matched.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

// statusWriter captures the response status code while preserving the
// Flusher interface needed by the streaming endpoint.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.wroteHeader = true
	}
	return w.ResponseWriter.Write(b)
}

// Flush implements http.Flusher when the underlying writer supports it
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Handler returns the Prometheus metrics endpoint handler
func Handler() http.Handler {
	return promhttp.Handler()
}
