package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service collectors. Build one per registry; tests use a
// fresh prometheus.NewRegistry() to avoid duplicate registration.
type Metrics struct {
	// LedgerOps counts ledger operations by op and result (ok or an error kind).
	LedgerOps *prometheus.CounterVec
	// RewardsMinted counts successful mints.
	RewardsMinted prometheus.Counter
	// EventsDropped counts notifications a sink failed to deliver.
	EventsDropped *prometheus.CounterVec
	// ActiveSessions counts sessions started on this instance minus those
	// finished or abandoned. Each started session is closed exactly once,
	// including sessions the store has already expired.
	ActiveSessions prometheus.Gauge
	// RequestDuration observes HTTP handler latency.
	RequestDuration *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LedgerOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_ledger_operations_total",
				Help: "Total number of ledger operations",
			},
			[]string{"op", "result"},
		),
		RewardsMinted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quiz_ledger_rewards_minted_total",
				Help: "Total number of rewards minted",
			},
		),
		EventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quiz_ledger_events_dropped_total",
				Help: "Notifications that could not be delivered",
			},
			[]string{"type"},
		),
		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "quiz_sessions_active",
				Help: "Quiz sessions started on this instance and not yet finished or abandoned",
			},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "quiz_http_request_duration_seconds",
				Help:    "Time spent serving HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "status"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.LedgerOps, m.RewardsMinted, m.EventsDropped, m.ActiveSessions, m.RequestDuration)
	}
	return m
}
