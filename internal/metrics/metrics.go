package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operations - итог каждой операции по коду результата ("ok" или код ошибки)
var Operations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ledger",
	Name:      "operations_total",
	Help:      "Ledger operations by name and result code.",
}, []string{"op", "result"})

var Transactions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ledger",
	Name:      "transactions_written_total",
	Help:      "Ledger transactions written, by type and category.",
}, []string{"type", "category"})

var PayoutAmount = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ledger",
	Subsystem: "payout",
	Name:      "amount_total",
	Help:      "Money paid out to employees through automatic payouts.",
})

var PayoutChunkFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ledger",
	Subsystem: "payout",
	Name:      "chunk_failures_total",
	Help:      "Per-notification payout chunks that rolled back.",
})

var Sends = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ledger",
	Subsystem: "notifications",
	Name:      "sends_total",
	Help:      "Recorded notification sends by result.",
}, []string{"result"})

var Archived = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ledger",
	Subsystem: "notifications",
	Name:      "archived_total",
	Help:      "Notifications archived, by reason.",
}, []string{"reason"})

func ObserveOperation(op, code string) {
	if code == "" {
		code = "ok"
	}
	Operations.WithLabelValues(op, code).Inc()
}
