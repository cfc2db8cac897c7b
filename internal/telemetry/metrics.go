// Package telemetry exposes the agent's Prometheus metrics.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kube_medic"

// Metrics holds the agent's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// cycles counts completed pipeline runs.
	// Labels: status (success, error), action (remediate, analyze_code, no_action, manual_intervention, none)
	cycles *prometheus.CounterVec

	// cycleDuration measures wall time of a pipeline run.
	cycleDuration prometheus.Histogram

	// issues counts threshold breaches found by analysis.
	// Labels: type (cpu, memory), severity
	issues *prometheus.CounterVec

	// gatewayErrors counts failed collaborator calls.
	// Labels: gateway, timeout (true, false)
	gatewayErrors *prometheus.CounterVec

	// restartsBlocked counts restarts refused by the circuit breaker.
	restartsBlocked prometheus.Counter
}

// New registers the agent's collectors plus the Go and process collectors on a
// fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Total agent pipeline runs by outcome",
		}, []string{"status", "action"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Agent pipeline run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		issues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issues_detected_total",
			Help:      "Total threshold breaches detected",
		}, []string{"type", "severity"}),
		gatewayErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_errors_total",
			Help:      "Total failed calls to external collaborators",
		}, []string{"gateway", "timeout"}),
		restartsBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restarts_blocked_total",
			Help:      "Total restarts refused by the circuit breaker",
		}),
	}
	m.registry.MustRegister(
		m.cycles,
		m.cycleDuration,
		m.issues,
		m.gatewayErrors,
		m.restartsBlocked,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveCycle records a finished run. An empty action is reported as "none".
func (m *Metrics) ObserveCycle(status, action string, d time.Duration) {
	if m == nil {
		return
	}
	if action == "" {
		action = "none"
	}
	m.cycles.WithLabelValues(status, action).Inc()
	m.cycleDuration.Observe(d.Seconds())
}

// IssueDetected counts one breach.
func (m *Metrics) IssueDetected(issueType, severity string) {
	if m == nil {
		return
	}
	m.issues.WithLabelValues(issueType, severity).Inc()
}

// GatewayError counts one failed collaborator call.
func (m *Metrics) GatewayError(gateway string, timeout bool) {
	if m == nil {
		return
	}
	m.gatewayErrors.WithLabelValues(gateway, strconv.FormatBool(timeout)).Inc()
}

// RestartBlocked counts one restart refused by the circuit breaker.
func (m *Metrics) RestartBlocked() {
	if m == nil {
		return
	}
	m.restartsBlocked.Inc()
}
