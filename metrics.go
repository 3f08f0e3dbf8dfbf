package main

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grid-replanner/planner"
)

// Metrics records planning outcomes on a private registry.
type Metrics struct {
	registry   *prometheus.Registry
	plans      *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	pathLength *prometheus.HistogramVec
	encounters prometheus.Counter
	detours    prometheus.Counter
	covered    prometheus.Histogram
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		plans: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gridplan_plans_total",
			Help: "Planning calls by planner and outcome",
		}, []string{"planner", "result"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gridplan_plan_duration_seconds",
			Help:    "Planning call duration",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5},
		}, []string{"planner"}),
		pathLength: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gridplan_path_points",
			Help:    "Points in returned paths",
			Buckets: prometheus.ExponentialBuckets(10, 2, 9),
		}, []string{"planner"}),
		encounters: factory.NewCounter(prometheus.CounterOpts{
			Name: "gridplan_replan_encounters_total",
			Help: "Blocked path cells met while replanning",
		}),
		detours: factory.NewCounter(prometheus.CounterOpts{
			Name: "gridplan_replan_detours_total",
			Help: "Tree detours spliced into repaired paths",
		}),
		covered: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gridplan_covered_path_cells",
			Help:    "Path cells blocked per obstacle injection",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
		}),
	}
}

// ObserveSearch records a grid search ("search" or "fallback").
func (m *Metrics) ObserveSearch(name string, d time.Duration, path planner.Path) {
	if m == nil {
		return
	}
	result := "found"
	if path.Empty() {
		result = "empty"
	}
	m.observe(name, result, d, path)
}

// ObserveReplan records a Replan call.
func (m *Metrics) ObserveReplan(res planner.ReplanResult) {
	if m == nil {
		return
	}
	m.observe("replan", res.State.String(), res.Duration, res.Path)
	m.encounters.Add(float64(res.Encounters))
	m.detours.Add(float64(res.Detours))
}

// ObserveCovered records how many path cells an obstacle injection blocked.
func (m *Metrics) ObserveCovered(n int) {
	if m == nil {
		return
	}
	m.covered.Observe(float64(n))
}

func (m *Metrics) observe(name, result string, d time.Duration, path planner.Path) {
	m.plans.WithLabelValues(name, result).Inc()
	m.duration.WithLabelValues(name).Observe(d.Seconds())
	if !path.Empty() {
		m.pathLength.WithLabelValues(name).Observe(float64(len(path)))
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
