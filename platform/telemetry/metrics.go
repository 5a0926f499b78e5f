// Package telemetry holds the Prometheus metrics and OpenTelemetry helpers shared by the
// container, runner and pipeline.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics records interpreter lifecycle and script execution metrics on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	scriptRuns     *prometheus.CounterVec
	scriptDuration *prometheus.HistogramVec
	compilations   *prometheus.CounterVec
	builds         *prometheus.CounterVec
	terminations   *prometheus.CounterVec
	liveInterps    prometheus.Gauge
}

// NewMetrics creates and registers every collector under namespace.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		scriptRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "script_runs_total",
				Help:      "Script evaluations by lifecycle phase, language and outcome",
			},
			[]string{"phase", "language", "outcome"},
		),
		scriptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "script_run_duration_seconds",
				Help:      "Duration of script evaluations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"phase", "language"},
		),
		compilations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "script_compilations_total",
				Help:      "Script compilations by language and whether the program cache was hit",
			},
			[]string{"language", "cache"},
		),
		builds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "interpreter_builds_total",
				Help:      "Interpreter constructions by outcome",
			},
			[]string{"outcome"},
		),
		terminations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "interpreter_terminations_total",
				Help:      "Interpreter shutdowns by outcome",
			},
			[]string{"outcome"},
		),
		liveInterps: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "interpreters_live",
				Help:      "Interpreters built and not yet terminated",
			},
		),
	}

	registry.MustRegister(
		m.scriptRuns,
		m.scriptDuration,
		m.compilations,
		m.builds,
		m.terminations,
		m.liveInterps,
	)
	return m
}

// Registry exposes the underlying registry, for tests and custom exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRun records one script evaluation.
func (m *Metrics) RecordRun(phase, language string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.scriptRuns.WithLabelValues(phase, language, outcome(err)).Inc()
	m.scriptDuration.WithLabelValues(phase, language).Observe(duration.Seconds())
}

// RecordCompile records a program lookup; cacheHit is false when the source was compiled.
func (m *Metrics) RecordCompile(language string, cacheHit bool) {
	if m == nil {
		return
	}
	cache := "miss"
	if cacheHit {
		cache = "hit"
	}
	m.compilations.WithLabelValues(language, cache).Inc()
}

// RecordBuild records an interpreter construction attempt.
func (m *Metrics) RecordBuild(err error) {
	if m == nil {
		return
	}
	m.builds.WithLabelValues(outcome(err)).Inc()
	if err == nil {
		m.liveInterps.Inc()
	}
}

// RecordTerminate records an interpreter shutdown. The interpreter counts as gone either way.
func (m *Metrics) RecordTerminate(err error) {
	if m == nil {
		return
	}
	m.terminations.WithLabelValues(outcome(err)).Inc()
	m.liveInterps.Dec()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}
