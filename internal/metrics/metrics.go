// Package metrics registers the counters the operations endpoints feed.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RegisterClaims = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_register_claims_total",
		Help: "Register claim attempts by outcome.",
	}, []string{"outcome"})

	SessionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_sessions_opened_total",
		Help: "Drawer sessions opened.",
	})

	SessionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_sessions_closed_total",
		Help: "Drawer sessions closed by close status.",
	}, []string{"close_status"})

	SessionAccruals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_session_accruals_total",
		Help: "Session accrual applications by kind.",
	}, []string{"kind"})

	InventoryMovements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_inventory_movements_total",
		Help: "Inventory movements recorded by movement type.",
	}, []string{"movement_type"})

	ReceivingEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_receiving_events_total",
		Help: "Purchase order receiving events recorded.",
	})

	LastCloseVariance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pos_last_close_cash_difference",
		Help: "Cash difference reported by the most recent session close.",
	})
)
