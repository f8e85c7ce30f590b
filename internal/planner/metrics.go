package planner

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the planner's Prometheus collectors.
type Metrics struct {
	Runs       *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
	Exclusions *prometheus.CounterVec
	CacheHits  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planner_runs_total",
				Help: "Planning runs by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "planner_run_duration_seconds",
				Help:    "Duration of planning runs",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"operation"},
		),
		Exclusions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planner_excluded_topics_total",
				Help: "Topics left out of a plan, by reason",
			},
			[]string{"reason"},
		),
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "planner_cache_lookups_total",
				Help: "Schedule preview cache lookups by result",
			},
			[]string{"result"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Runs, m.Duration, m.Exclusions, m.CacheHits)
	}
	return m
}

func (m *Metrics) observeRun(operation string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Runs.WithLabelValues(operation, outcome).Inc()
	m.Duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) observeExclusions(excluded []Exclusion) {
	for _, e := range excluded {
		m.Exclusions.WithLabelValues(string(e.Reason)).Inc()
	}
}

func (m *Metrics) observeCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheHits.WithLabelValues(result).Inc()
}
