package service

import "github.com/prometheus/client_golang/prometheus"

// Metrics agrupa os coletores do ledger. Sem registerer os coletores funcionam,
// apenas não são expostos (usado nos testes).
type Metrics struct {
	BetsPlaced     *prometheus.CounterVec
	BetsChanged    prometheus.Counter
	PenaltyAmount  prometheus.Counter
	Rejections     *prometheus.CounterVec
	GoalsProcessed *prometheus.CounterVec
	BetsSettled    *prometheus.CounterVec
	SettleFailures prometheus.Counter
	Conflicts      prometheus.Counter
	OpDuration     *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BetsPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_bets_placed_total", Help: "apostas criadas por tipo",
		}, []string{"kind"}),
		BetsChanged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_bets_changed_total", Help: "trocas de seleção aplicadas",
		}),
		PenaltyAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_penalty_amount_total", Help: "soma das penalidades retidas",
		}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_rejections_total", Help: "operações recusadas por motivo",
		}, []string{"op", "reason"}),
		GoalsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_goals_processed_total", Help: "eventos de gol por resultado",
		}, []string{"result"}),
		BetsSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_bets_settled_total", Help: "apostas liquidadas por resultado",
		}, []string{"outcome"}),
		SettleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_settle_failures_total", Help: "apostas que falharam após todos os retries",
		}),
		Conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_cas_conflicts_total", Help: "conflitos de compare-and-swap",
		}),
		OpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_op_duration_seconds",
			Help:    "latência das operações do ledger",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}
	if reg != nil {
		reg.MustRegister(m.BetsPlaced, m.BetsChanged, m.PenaltyAmount, m.Rejections,
			m.GoalsProcessed, m.BetsSettled, m.SettleFailures, m.Conflicts, m.OpDuration)
	}
	return m
}
