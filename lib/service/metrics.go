package service

import "github.com/prometheus/client_golang/prometheus"

var (
	settlementsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "innopay",
		Name:      "settlements_total",
		Help:      "Settlement calls by outcome.",
	}, []string{"outcome"})

	settlementLegsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "innopay",
		Name:      "settlement_legs_total",
		Help:      "Ledger transfers attempted by the settlement engine.",
	}, []string{"leg", "asset", "outcome"})

	debtsRecordedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "innopay",
		Name:      "debts_recorded_total",
		Help:      "Debt records written, by asset.",
	}, []string{"asset"})

	debtWriteFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "innopay",
		Name:      "debt_write_failures_total",
		Help:      "Debt records that could not be written.",
	})

	reconciliationDebtsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "innopay",
		Name:      "reconciliation_debts_total",
		Help:      "Debts retried by reconciliation passes, by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		settlementsTotal,
		settlementLegsTotal,
		debtsRecordedTotal,
		debtWriteFailuresTotal,
		reconciliationDebtsTotal,
	)
}

func outcomeLabel(err error) string {
	if err != nil {
		return "failed"
	}
	return "ok"
}
