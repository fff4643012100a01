package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the orchestrator.
type Metrics struct {
	registry *prometheus.Registry

	// Turn metrics
	TurnsTotal   *prometheus.CounterVec
	TurnDuration *prometheus.HistogramVec

	// Intent metrics
	ClassificationsTotal *prometheus.CounterVec
	ClarificationsTotal  prometheus.Counter

	// Coordinator metrics
	LoopIterations prometheus.Histogram

	// Agent metrics
	AgentExecutionDuration    *prometheus.HistogramVec
	AgentExecutionErrorsTotal *prometheus.CounterVec

	// Session metrics
	SessionsActive prometheus.Gauge
}

// NewMetrics creates and registers all metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		TurnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchid_turns_total",
				Help: "Total number of turns processed",
			},
			[]string{"mode", "outcome"},
		),
		TurnDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orchid_turn_duration_seconds",
				Help:    "Duration of turns in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),

		ClassificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchid_classifications_total",
				Help: "Total number of intent classifications",
			},
			[]string{"label"},
		),
		ClarificationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "orchid_clarifications_total",
				Help: "Total number of clarification questions asked",
			},
		),

		LoopIterations: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "orchid_loop_iterations",
				Help:    "Iterations per coordinator loop run",
				Buckets: []float64{1, 2, 3, 5, 8, 10, 15, 20},
			},
		),

		AgentExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orchid_agent_execution_duration_seconds",
				Help:    "Duration of agent executions in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"agent"},
		),
		AgentExecutionErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchid_agent_execution_errors_total",
				Help: "Total number of agent execution errors",
			},
			[]string{"agent"},
		),

		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "orchid_sessions_active",
				Help: "Number of currently active sessions",
			},
		),
	}

	m.registerMetrics()

	return m
}

func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.TurnsTotal)
	m.registry.MustRegister(m.TurnDuration)
	m.registry.MustRegister(m.ClassificationsTotal)
	m.registry.MustRegister(m.ClarificationsTotal)
	m.registry.MustRegister(m.LoopIterations)
	m.registry.MustRegister(m.AgentExecutionDuration)
	m.registry.MustRegister(m.AgentExecutionErrorsTotal)
	m.registry.MustRegister(m.SessionsActive)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
