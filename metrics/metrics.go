// Package metrics holds the Prometheus collectors of the ledger.
package metrics

import (
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

const namespace = "crowdfund"

// Operations counts ledger operations by name and outcome.
var Operations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "operations_total",
	Help:      "Total ledger operations by name and result (committed, rejected).",
}, []string{"op", "result"})

// OperationDuration tracks how long an operation holds the ledger.
var OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "operation_duration_seconds",
	Help:      "Ledger operation latency in seconds, settlement included.",
	Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
}, []string{"op"})

// Custody is the native value held by the ledger, in ether.
var Custody = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "custody_ether",
	Help:      "Value currently held by the ledger, in ether.",
})

// JournalWrites counts receipts persisted by the event journal.
var JournalWrites = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "journal",
	Name:      "writes_total",
	Help:      "Receipts written to the event journal by result (ok, error).",
}, []string{"result"})

func ObserveOperation(op string, err error) {
	result := "committed"
	if err != nil {
		result = "rejected"
	}
	Operations.WithLabelValues(op, result).Inc()
}

// SetCustody publishes a wei amount as ether.
func SetCustody(wei *uint256.Int) {
	Custody.Set(decimal.NewFromBigInt(wei.ToBig(), -18).InexactFloat64())
}
