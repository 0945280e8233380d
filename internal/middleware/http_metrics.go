package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricHTTPRequestDuration   = "http_request_duration_seconds"
	MetricHTTPRequestsTotal     = "http_requests_total"
	MetricHTTPResponseSizeBytes = "http_response_size_bytes"
)

// staticRoutes are paths recorded as-is.
var staticRoutes = map[string]bool{
	"/":                 true,
	"/health":           true,
	"/ready":            true,
	"/metrics":          true,
	"/api/auth/login":   true,
	"/api/audit/export": true,
	"/api/audit/report": true,
	"/api/audit/verify": true,
	"/api/limits":       true,
}

// normalizePath maps dynamic path segments to route patterns so metric label
// cardinality stays bounded.
func normalizePath(path string) string {
	if staticRoutes[path] {
		return path
	}
	parts := strings.Split(path, "/")
	// /api/audit/events/{id}
	if len(parts) == 5 && parts[1] == "api" && parts[2] == "audit" && parts[3] == "events" {
		return "/api/audit/events/{id}"
	}
	// /api/limits/blocked/{ip}
	if len(parts) == 5 && parts[1] == "api" && parts[2] == "limits" && parts[3] == "blocked" {
		return "/api/limits/blocked/{ip}"
	}
	if len(parts) > 2 {
		return "/" + parts[1] + "/other"
	}
	return "/other"
}

// HTTPMetrics holds Prometheus collectors for request instrumentation.
type HTTPMetrics struct {
	duration     *prometheus.HistogramVec
	requests     *prometheus.CounterVec
	responseSize *prometheus.HistogramVec
}

// NewHTTPMetrics creates the collectors, unregistered.
func NewHTTPMetrics() *HTTPMetrics {
	return &HTTPMetrics{
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricHTTPRequestDuration,
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.01, 0.1, 0.5, 1.0, 2.0},
			},
			[]string{"method", "path", "status"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricHTTPRequestsTotal,
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		responseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricHTTPResponseSizeBytes,
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "path", "status"},
		),
	}
}

// Register registers all collectors with the given registry.
func (m *HTTPMetrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.duration, m.requests, m.responseSize} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Middleware records duration, count, and response size per request.
func (m *HTTPMetrics) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			labels := []string{r.Method, normalizePath(r.URL.Path), strconv.Itoa(rw.statusCode)}
			m.duration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
			m.requests.WithLabelValues(labels...).Inc()
			m.responseSize.WithLabelValues(labels...).Observe(float64(rw.size))
		})
	}
}
