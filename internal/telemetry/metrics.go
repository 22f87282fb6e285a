// Package telemetry holds the Prometheus metrics the agent updates during
// operation:
//
//	agent_orders_total{mode,result}            - orders by mode (paper|live) and outcome
//	agent_protection_pending_total{mode}       - filled positions left without TP/SL
//	agent_reconciliation_corrections_total{kind} - drift corrections by kind
//	agent_open_positions{mode}                 - currently open positions (gauge)
//	agent_execution_seconds                    - end to end Execute latency
//
// They are served at /metrics in Prometheus text exposition format.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every collector behind one registry so tests can use
// isolated instances.
type Metrics struct {
	Registry *prometheus.Registry

	Orders            *prometheus.CounterVec
	ProtectionPending *prometheus.CounterVec
	ReconCorrections  *prometheus.CounterVec
	OpenPositions     *prometheus.GaugeVec
	ExecuteSeconds    prometheus.Histogram
}

// NewMetrics creates and registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		Orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_orders_total",
				Help: "Orders placed, by mode and outcome",
			},
			[]string{"mode", "result"}, // result: filled|rejected|failed
		),

		ProtectionPending: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_protection_pending_total",
				Help: "Positions left unprotected after protective placement failed",
			},
			[]string{"mode"},
		),

		ReconCorrections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_reconciliation_corrections_total",
				Help: "State corrections applied by reconciliation, by kind",
			},
			[]string{"kind"}, // position_closed|position_adopted|order_status
		),

		OpenPositions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "agent_open_positions",
				Help: "Open positions currently tracked",
			},
			[]string{"mode"},
		),

		ExecuteSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agent_execution_seconds",
				Help:    "End to end execution latency",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
		),
	}

	m.Registry.MustRegister(
		m.Orders,
		m.ProtectionPending,
		m.ReconCorrections,
		m.OpenPositions,
		m.ExecuteSeconds,
	)
	return m
}

// Mode returns the metric label for an execution mode flag.
func Mode(isPaper bool) string {
	if isPaper {
		return "paper"
	}
	return "live"
}
