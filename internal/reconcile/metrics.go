package reconcile

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/abhisek/lessonsync/internal/lesson"
)

// Metrics are the reconciler's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	remoteOps   *prometheus.CounterVec
	transitions *prometheus.CounterVec
	conflicts   prometheus.Counter
	pending     prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		remoteOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lessonsync",
			Name:      "remote_ops_total",
			Help:      "Calendar operations issued by the reconciler, by outcome.",
		}, []string{"op", "result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lessonsync",
			Name:      "sync_transitions_total",
			Help:      "Lesson sync state transitions.",
		}, []string{"from", "to"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lessonsync",
			Name:      "conflicts_total",
			Help:      "Remote edits that diverged from the lesson.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lessonsync",
			Name:      "pending_sync",
			Help:      "Lessons queued for the background sync pass.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.remoteOps, m.transitions, m.conflicts, m.pending)
	}
	return m
}

func (m *Metrics) remoteOp(op, result string) {
	if m != nil {
		m.remoteOps.WithLabelValues(op, result).Inc()
	}
}

func (m *Metrics) transition(from, to lesson.SyncState) {
	if m != nil && from != to {
		m.transitions.WithLabelValues(string(from), string(to)).Inc()
	}
}

func (m *Metrics) conflict() {
	if m != nil {
		m.conflicts.Inc()
	}
}

func (m *Metrics) setPending(n int) {
	if m != nil {
		m.pending.Set(float64(n))
	}
}
