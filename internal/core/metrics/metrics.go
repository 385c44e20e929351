// Package metrics exposes network activity as prometheus collectors.
//
// A Metrics value implements network.Observer and may be shared by the
// networks of several move threads; the collectors are safe for concurrent use.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/solatis/scorekeeper/internal/network"
)

// Metrics holds the collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	// FactMutations counts insert/update/retract calls by op.
	FactMutations *prometheus.CounterVec

	// ScoreCalculations counts Score calls.
	ScoreCalculations prometheus.Counter

	// MoveDuration records do/score/undo latency per evaluated move.
	MoveDuration prometheus.Histogram

	// LiveMatches is the number of live constraint matches at the last sample.
	LiveMatches prometheus.Gauge
}

var _ network.Observer = (*Metrics)(nil)

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		FactMutations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scorekeeper_fact_mutations_total",
			Help: "Fact mutations by operation",
		}, []string{"op"}),
		ScoreCalculations: factory.NewCounter(prometheus.CounterOpts{
			Name: "scorekeeper_score_calculations_total",
			Help: "Score calculations",
		}),
		MoveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "scorekeeper_move_duration_seconds",
			Help:    "Move evaluation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.000001, 4, 10), // 1µs to ~260ms
		}),
		LiveMatches: factory.NewGauge(prometheus.GaugeOpts{
			Name: "scorekeeper_live_matches",
			Help: "Live constraint matches",
		}),
	}
}

// FactMutated implements network.Observer.
func (m *Metrics) FactMutated(op string) {
	m.FactMutations.WithLabelValues(op).Inc()
}

// ScoreCalculated implements network.Observer.
func (m *Metrics) ScoreCalculated() {
	m.ScoreCalculations.Inc()
}

// ObserveMove records one move evaluation that started at start.
func (m *Metrics) ObserveMove(start time.Time) {
	m.MoveDuration.Observe(time.Since(start).Seconds())
}

// SampleMatches sets LiveMatches from per-constraint totals.
func (m *Metrics) SampleMatches(totals []network.ConstraintMatchTotal) {
	n := 0
	for _, t := range totals {
		n += t.Count
	}
	m.LiveMatches.Set(float64(n))
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
