// Package metrics exposes Prometheus collectors for the settlement engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "settlewise"

// Settle outcomes recorded by ObserveSettle.
const (
	OutcomeSettled  = "settled"
	OutcomeConflict = "conflict"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Metrics groups the engine's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	recomputations *prometheus.CounterVec
	settles        *prometheus.CounterVec
	settleRetries  prometheus.Counter
	computeSeconds prometheus.Histogram
	diagnostics    *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		recomputations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recomputations_total",
			Help:      "Balance and settlement recomputations, by trigger.",
		}, []string{"trigger"}),
		settles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mark_settled_total",
			Help:      "MarkSettled calls, by outcome.",
		}, []string{"outcome"}),
		settleRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mark_settled_retries_total",
			Help:      "MarkSettled attempts repeated after a write conflict.",
		}),
		computeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compute_duration_seconds",
			Help:      "Time to aggregate balances and simplify settlements for a group.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		diagnostics: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnostics_total",
			Help:      "Recoverable input problems found while aggregating, by kind.",
		}, []string{"kind"}),
	}

	for _, c := range []prometheus.Collector{m.recomputations, m.settles, m.settleRetries, m.computeSeconds, m.diagnostics} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveCompute records one recomputation and how long it took.
func (m *Metrics) ObserveCompute(trigger string, d time.Duration) {
	if m == nil {
		return
	}
	m.recomputations.WithLabelValues(trigger).Inc()
	m.computeSeconds.Observe(d.Seconds())
}

// ObserveSettle records the final outcome of a MarkSettled call.
func (m *Metrics) ObserveSettle(outcome string) {
	if m == nil {
		return
	}
	m.settles.WithLabelValues(outcome).Inc()
}

// ObserveRetry records a MarkSettled attempt repeated after a conflict.
func (m *Metrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.settleRetries.Inc()
}

// ObserveDiagnostic records a diagnostic of the given kind.
func (m *Metrics) ObserveDiagnostic(kind string) {
	if m == nil {
		return
	}
	m.diagnostics.WithLabelValues(kind).Inc()
}
