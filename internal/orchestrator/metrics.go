package orchestrator

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the workflow orchestrator.
// All metrics use the busara_orchestrator_ namespace.
type Metrics struct {
	RunsTotal    *prometheus.CounterVec
	RunDuration  *prometheus.HistogramVec
	PlansTotal   *prometheus.CounterVec
	StepsTotal   *prometheus.CounterVec
	StepDuration *prometheus.HistogramVec
	ReplansTotal *prometheus.CounterVec
	ActiveRuns   prometheus.Gauge
	ActiveSteps  prometheus.Gauge
}

// NewMetrics creates and registers orchestrator metrics on the given
// registry. Returns nil if reg is nil; all call sites are nil-safe.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		return nil
	}

	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "busara",
			Subsystem: "orchestrator",
			Name:      "runs_total",
			Help:      "Total orchestrator runs by terminal status.",
		}, []string{"status"}),

		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "busara",
			Subsystem: "orchestrator",
			Name:      "run_duration_seconds",
			Help:      "Orchestrator run duration in seconds.",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"status"}),

		PlansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "busara",
			Subsystem: "orchestrator",
			Name:      "plans_total",
			Help:      "Total generated plans by outcome (simple, complex, rejected).",
		}, []string{"outcome"}),

		StepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "busara",
			Subsystem: "orchestrator",
			Name:      "steps_total",
			Help:      "Total executed steps by agent type and outcome.",
		}, []string{"agent_type", "status"}),

		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "busara",
			Subsystem: "orchestrator",
			Name:      "step_duration_seconds",
			Help:      "Step duration in seconds by agent type.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"agent_type"}),

		ReplansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "busara",
			Subsystem: "orchestrator",
			Name:      "replans_total",
			Help:      "Total re-planning events by outcome (applied, abandoned).",
		}, []string{"outcome"}),

		ActiveRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "busara",
			Subsystem: "orchestrator",
			Name:      "active_runs",
			Help:      "Number of currently running orchestrations.",
		}),

		ActiveSteps: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "busara",
			Subsystem: "orchestrator",
			Name:      "active_steps",
			Help:      "Number of currently executing steps.",
		}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.PlansTotal,
		m.StepsTotal,
		m.StepDuration,
		m.ReplansTotal,
		m.ActiveRuns,
		m.ActiveSteps,
	)

	return m
}
