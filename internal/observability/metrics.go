// Package observability exports agent turn metrics to Prometheus.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Execution paths.
const (
	PathPrimary  = "primary"
	PathFallback = "fallback"
)

type moduleMetrics struct {
	registry *prometheus.Registry

	turnTotal        *prometheus.CounterVec
	runTotal         *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	runIterations    prometheus.Histogram
	fallbackTotal    *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	toolCallsTotal   *prometheus.CounterVec
	retryTotal       prometheus.Counter
	contextCompacted *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			registry: prometheus.NewRegistry(),
			turnTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "fitcoach_turn_total",
					Help: "Completed coaching turns by outcome (primary, degraded, failed).",
				},
				[]string{"outcome"},
			),
			runTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "fitcoach_agent_run_total",
					Help: "Agent runs by execution path and status.",
				},
				[]string{"path", "status"},
			),
			runDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "fitcoach_agent_run_duration_seconds",
					Help:    "Agent run duration in seconds by execution path.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"path"},
			),
			runIterations: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "fitcoach_agent_iterations",
					Help:    "Model calls per primary agent run.",
					Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
				},
			),
			fallbackTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "fitcoach_fallback_total",
					Help: "Fallback invocations by the error kind that triggered them.",
				},
				[]string{"kind"},
			),
			errorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "fitcoach_errors_total",
					Help: "Classified execution errors by path and kind.",
				},
				[]string{"path", "kind"},
			),
			toolCallsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "fitcoach_tool_calls_total",
					Help: "Tool invocations by tool and status.",
				},
				[]string{"tool", "status"},
			),
			retryTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "fitcoach_retry_total",
					Help: "Primary path retries.",
				},
			),
			contextCompacted: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "fitcoach_context_compressed_total",
					Help: "Context blocks truncated to fit their budget.",
				},
				[]string{"block"},
			),
		}

		m.registry.MustRegister(
			m.turnTotal,
			m.runTotal,
			m.runDuration,
			m.runIterations,
			m.fallbackTotal,
			m.errorsTotal,
			m.toolCallsTotal,
			m.retryTotal,
			m.contextCompacted,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

// Registry returns the registry holding fitcoach metrics.
func Registry() *prometheus.Registry {
	return getMetrics().registry
}

// MetricsHandler serves the fitcoach registry in the Prometheus text format.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(getMetrics().registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordAgentRun records one primary or fallback run.
func RecordAgentRun(path string, duration time.Duration, success bool) {
	m := getMetrics()
	m.runTotal.WithLabelValues(path, status(success)).Inc()
	m.runDuration.WithLabelValues(path).Observe(duration.Seconds())
}

// RecordIterations records how many model calls a primary run made.
func RecordIterations(n int) {
	getMetrics().runIterations.Observe(float64(n))
}

// RecordToolCall records one tool invocation.
func RecordToolCall(tool string, success bool) {
	getMetrics().toolCallsTotal.WithLabelValues(tool, status(success)).Inc()
}

// RecordError records a classified error on the given path.
func RecordError(path, kind string) {
	getMetrics().errorsTotal.WithLabelValues(path, kind).Inc()
}

// RecordFallback records a fallback triggered by an error of the given kind.
func RecordFallback(kind string) {
	getMetrics().fallbackTotal.WithLabelValues(kind).Inc()
}

// RecordRetry records one retry of the primary path.
func RecordRetry() {
	getMetrics().retryTotal.Inc()
}

// RecordCompression records a context block that had to be truncated.
func RecordCompression(block string) {
	getMetrics().contextCompacted.WithLabelValues(block).Inc()
}

// RecordTurn records the final outcome of a turn.
func RecordTurn(outcome string) {
	getMetrics().turnTotal.WithLabelValues(outcome).Inc()
}
