package reuse

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/outofforest/reuse/types"
)

// Metrics holds Prometheus metrics updated by sessions.
type Metrics struct {
	Events      *prometheus.CounterVec
	ColdMisses  prometheus.Counter
	Reuses      prometheus.Counter
	ScopeErrors prometheus.Counter
	Bypasses    *prometheus.CounterVec
	Sessions    prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reuse_events_total",
		Help: "Total events processed by type",
	}, []string{"type"})

	coldMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reuse_cold_misses_total",
		Help: "Total first accesses to memory blocks",
	})

	reuses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reuse_reuses_total",
		Help: "Total repeated accesses to memory blocks",
	})

	scopeErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reuse_scope_errors_total",
		Help: "Total inconsistencies detected between scope events and the scope stack",
	})

	bypasses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reuse_call_bypasses_total",
		Help: "Total call bypass events by outcome",
	}, []string{"outcome"})

	sessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reuse_sessions_active",
		Help: "Number of open sessions",
	})

	reg.MustRegister(events, coldMisses, reuses, scopeErrors, bypasses, sessions)

	return &Metrics{
		Events:      events,
		ColdMisses:  coldMisses,
		Reuses:      reuses,
		ScopeErrors: scopeErrors,
		Bypasses:    bypasses,
		Sessions:    sessions,
	}
}

// Bypass outcomes.
const (
	bypassPaired    = "paired"
	bypassConfirmed = "confirmed"
	bypassDiscarded = "discarded"
)

// report adds the difference between current and previously reported statistics.
func (m *Metrics) report(current, previous Stats) {
	for t := types.EventType(0); t < types.NumOfEventTypes; t++ {
		if delta := current.Events[t] - previous.Events[t]; delta > 0 {
			m.Events.WithLabelValues(t.String()).Add(float64(delta))
		}
	}
	if delta := current.InvalidEvents - previous.InvalidEvents; delta > 0 {
		m.Events.WithLabelValues("bad").Add(float64(delta))
	}
	m.ColdMisses.Add(float64(current.ColdMisses - previous.ColdMisses))
	m.Reuses.Add(float64(current.Reuses - previous.Reuses))
	m.ScopeErrors.Add(float64(current.ScopeErrors - previous.ScopeErrors))
	m.Bypasses.WithLabelValues(bypassPaired).Add(float64(current.BypassPaired - previous.BypassPaired))
	m.Bypasses.WithLabelValues(bypassConfirmed).Add(float64(current.BypassConfirmed - previous.BypassConfirmed))
	m.Bypasses.WithLabelValues(bypassDiscarded).Add(float64(current.BypassDiscarded - previous.BypassDiscarded))
}
