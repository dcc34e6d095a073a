// Package metrics provides Prometheus instrumentation for the trade
// engine and the venue gateway.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrdersOpened counts successfully opened orders, by side.
	OrdersOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goldtrade_orders_opened_total",
		Help: "Orders opened successfully",
	}, []string{"side"})

	// OrdersClosed counts closed orders, by side.
	OrdersClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goldtrade_orders_closed_total",
		Help: "Orders closed successfully",
	}, []string{"side"})

	// OrdersFailed counts orders that ended in FAILED status.
	OrdersFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "goldtrade_orders_failed_total",
		Help: "Orders that failed at the venue",
	})

	// RecoveredCloses counts closes settled after the venue reported the
	// position as already gone.
	RecoveredCloses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "goldtrade_recovered_closes_total",
		Help: "Orders closed locally after the venue lost the position",
	})

	// LedgerEntries counts appended ledger entries, by entry type.
	LedgerEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goldtrade_ledger_entries_total",
		Help: "Ledger entries appended",
	}, []string{"type"})

	// ReconcileMatches counts orders promoted or failed by the sweep.
	ReconcileMatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goldtrade_reconcile_orders_total",
		Help: "Processing orders resolved by the reconciliation sweep",
	}, []string{"result"})

	venueCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goldtrade_venue_calls_total",
		Help: "Bridge calls by endpoint and outcome",
	}, []string{"endpoint", "outcome"})

	venueLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "goldtrade_venue_call_seconds",
		Help:    "Bridge call latency in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"endpoint"})
)

// ObserveVenueCall records one bridge round trip.
func ObserveVenueCall(endpoint string, d time.Duration, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	venueCalls.WithLabelValues(endpoint, outcome).Inc()
	venueLatency.WithLabelValues(endpoint).Observe(d.Seconds())
}
