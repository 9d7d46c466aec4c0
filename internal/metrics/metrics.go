// Package metrics exposes Prometheus collectors for documentation runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "unifi_documenter"

// Metrics holds the collectors on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	runs            *prometheus.CounterVec
	runDuration     prometheus.Histogram
	controllerRuns  *prometheus.CounterVec
	lastSuccess     *prometheus.GaugeVec
	fetchFailures   *prometheus.CounterVec
	skippedTriggers *prometheus.CounterVec
	artifactSize    *prometheus.GaugeVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Documentation runs by result.",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a full documentation run.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		controllerRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "controller_runs_total",
			Help:      "Per-controller outcomes by result and error class.",
		}, []string{"controller", "result", "error_class"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "controller_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful documentation per controller.",
		}, []string{"controller"}),
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resource_fetch_failures_total",
			Help:      "Resource fetches that failed and were recorded as empty.",
		}, []string{"controller", "resource"}),
		skippedTriggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_skipped_total",
			Help:      "Scheduled or manual runs that were skipped, by reason.",
		}, []string{"reason"}),
		artifactSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "artifact_bytes",
			Help:      "Size of the most recent artifact per controller.",
		}, []string{"controller"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.runs,
		m.runDuration,
		m.controllerRuns,
		m.lastSuccess,
		m.fetchFailures,
		m.skippedTriggers,
		m.artifactSize,
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RunFinished records a completed run.
func (m *Metrics) RunFinished(ok bool, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(result(ok)).Inc()
	m.runDuration.Observe(d.Seconds())
}

// ControllerFinished records one controller outcome.
func (m *Metrics) ControllerFinished(controller string, ok bool, errorClass string, at time.Time, artifactBytes int) {
	if m == nil {
		return
	}
	m.controllerRuns.WithLabelValues(controller, result(ok), errorClass).Inc()
	if ok {
		m.lastSuccess.WithLabelValues(controller).Set(float64(at.Unix()))
		m.artifactSize.WithLabelValues(controller).Set(float64(artifactBytes))
	}
}

// FetchFailed records a resource fetch that was absorbed as empty.
func (m *Metrics) FetchFailed(controller, resource string) {
	if m == nil {
		return
	}
	m.fetchFailures.WithLabelValues(controller, resource).Inc()
}

// Skipped records a run that the scheduler did not start.
func (m *Metrics) Skipped(reason string) {
	if m == nil {
		return
	}
	m.skippedTriggers.WithLabelValues(reason).Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
