package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricChecks      = "rate_limit_checks_total"
	MetricRejected    = "rate_limit_rejected_total"
	MetricViolations  = "rate_limit_violations_total"
	MetricStoreErrors = "rate_limit_store_errors_total"
)

// Metrics holds Prometheus collectors for limiter operations. All operations
// are thread-safe.
type Metrics struct {
	checks      *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	violations  prometheus.Counter
	storeErrors prometheus.Counter
}

// NewMetrics creates all collectors, unregistered; call Register to attach
// them to a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		checks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricChecks,
				Help: "Total number of rule evaluations by rule",
			},
			[]string{"rule"},
		),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRejected,
				Help: "Total number of rejected requests by rule (blocked-IP rejections use rule=\"blocked\")",
			},
			[]string{"rule"},
		),
		violations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricViolations,
				Help: "Total number of recorded rate limit violations",
			},
		),
		storeErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricStoreErrors,
				Help: "Total number of window store errors (fail-open events)",
			},
		),
	}
}

// Register registers all collectors with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.checks, m.rejected, m.violations, m.storeErrors} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) incCheck(rule string) {
	if m != nil {
		m.checks.WithLabelValues(rule).Inc()
	}
}

func (m *Metrics) incRejected(rule string) {
	if m != nil {
		m.rejected.WithLabelValues(rule).Inc()
	}
}

func (m *Metrics) incViolation() {
	if m != nil {
		m.violations.Inc()
	}
}

func (m *Metrics) incStoreError() {
	if m != nil {
		m.storeErrors.Inc()
	}
}
