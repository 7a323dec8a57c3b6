// Package observability holds the Prometheus metrics exported by the service.
//
// Metrics are registered once at startup through NewMetrics and exposed on /metrics.
// Every method is safe on a nil *Metrics so packages can run without instrumentation.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "slimcircle"

// Metrics groups the counters and histograms for alignment updates and call job sweeps.
type Metrics struct {
	// AlignmentUpdates counts alignment writes. Labels: result (saved, unchanged, error)
	AlignmentUpdates *prometheus.CounterVec

	// FullAlignments counts first transitions to a fully aligned day.
	FullAlignments prometheus.Counter

	// CallJobs counts sweep outcomes. Labels: kind (squad, coaching), outcome (processed, executed, skipped, error, abandoned)
	CallJobs *prometheus.CounterVec

	// CallJobsScheduled counts jobs written by schedule calls. Labels: kind
	CallJobsScheduled *prometheus.CounterVec

	// SweepDuration measures one full sweep across every kind.
	SweepDuration prometheus.Histogram

	// HTTPRequests counts API requests. Labels: method, route, status
	HTTPRequests *prometheus.CounterVec

	// HTTPDuration measures API latency. Labels: method, route
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		AlignmentUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "alignment",
			Name:      "updates_total",
			Help:      "Daily alignment updates by result.",
		}, []string{"result"}),
		FullAlignments: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "alignment",
			Name:      "full_alignments_total",
			Help:      "Days that became fully aligned.",
		}),
		CallJobs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "calljobs",
			Name:      "jobs_total",
			Help:      "Scheduled call jobs handled by the sweep, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		CallJobsScheduled: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "calljobs",
			Name:      "scheduled_total",
			Help:      "Scheduled call jobs written, by kind.",
		}, []string{"kind"}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "calljobs",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of a call job sweep.",
			Buckets:   prometheus.DefBuckets,
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "API requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "API request latency by method and route.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route"}),
	}
}

// AlignmentUpdate records one alignment update attempt.
func (m *Metrics) AlignmentUpdate(result string) {
	if m == nil {
		return
	}
	m.AlignmentUpdates.WithLabelValues(result).Inc()
}

// FullAlignment records a day becoming fully aligned.
func (m *Metrics) FullAlignment() {
	if m == nil {
		return
	}
	m.FullAlignments.Inc()
}

// CallJobOutcome adds n to the outcome counter of a job kind.
func (m *Metrics) CallJobOutcome(kind, outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.CallJobs.WithLabelValues(kind, outcome).Add(float64(n))
}

// CallJobsWritten records jobs created by a schedule call.
func (m *Metrics) CallJobsWritten(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.CallJobsScheduled.WithLabelValues(kind).Add(float64(n))
}

// ObserveSweep records the duration of a sweep that started at start.
func (m *Metrics) ObserveSweep(start time.Time) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(time.Since(start).Seconds())
}

// HTTPRequest records one served request.
func (m *Metrics) HTTPRequest(method, route, status string, took time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(took.Seconds())
}
