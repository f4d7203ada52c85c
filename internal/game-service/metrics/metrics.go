package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/radieske/dice-round-platform/internal/game-service/betting"
	"github.com/radieske/dice-round-platform/internal/game-service/round"
	"github.com/radieske/dice-round-platform/internal/game-service/scheduler"
	"github.com/radieske/dice-round-platform/internal/game-service/settlement"
	"github.com/radieske/dice-round-platform/internal/wallet-service/ledger"
)

// Game agrupa as métricas Prometheus do game-service
type Game struct {
	BetsPlaced       *prometheus.CounterVec
	BetsRejected     *prometheus.CounterVec
	BetsSettled      *prometheus.CounterVec
	PayoutCents      prometheus.Counter
	SettleFailures   prometheus.Counter
	RoundsCompleted  *prometheus.CounterVec
	Phase            *prometheus.GaugeVec
	LedgerMutations  *prometheus.CounterVec
	LedgerRejections *prometheus.CounterVec
	WSClients        prometheus.Gauge
	BroadcastErrors  prometheus.Counter
}

func New(reg prometheus.Registerer) *Game {
	m := &Game{
		BetsPlaced:       prometheus.NewCounterVec(prometheus.CounterOpts{Name: "game_bets_placed_total", Help: "apostas aceitas por opção"}, []string{"option"}),
		BetsRejected:     prometheus.NewCounterVec(prometheus.CounterOpts{Name: "game_bets_rejected_total", Help: "apostas rejeitadas por motivo"}, []string{"reason"}),
		BetsSettled:      prometheus.NewCounterVec(prometheus.CounterOpts{Name: "game_bets_settled_total", Help: "apostas liquidadas por resultado"}, []string{"result"}),
		PayoutCents:      prometheus.NewCounter(prometheus.CounterOpts{Name: "game_payout_cents_total", Help: "prêmios pagos (centavos)"}),
		SettleFailures:   prometheus.NewCounter(prometheus.CounterOpts{Name: "game_settlement_failures_total", Help: "apostas que falharam na liquidação"}),
		RoundsCompleted:  prometheus.NewCounterVec(prometheus.CounterOpts{Name: "game_rounds_completed_total", Help: "rodadas levadas a settled"}, []string{"reconciliation"}),
		Phase:            prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "game_round_phase", Help: "fase corrente (1 = ativa)"}, []string{"phase"}),
		LedgerMutations:  prometheus.NewCounterVec(prometheus.CounterOpts{Name: "wallet_ledger_entries_total", Help: "lançamentos por tipo"}, []string{"kind"}),
		LedgerRejections: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "wallet_ledger_rejections_total", Help: "mutações rejeitadas por motivo"}, []string{"reason"}),
		WSClients:        prometheus.NewGauge(prometheus.GaugeOpts{Name: "game_ws_clients", Help: "conexões websocket ativas"}),
		BroadcastErrors:  prometheus.NewCounter(prometheus.CounterOpts{Name: "game_broadcast_errors_total", Help: "falhas ao publicar broadcast"}),
	}
	reg.MustRegister(m.BetsPlaced, m.BetsRejected, m.BetsSettled, m.PayoutCents, m.SettleFailures,
		m.RoundsCompleted, m.Phase, m.LedgerMutations, m.LedgerRejections, m.WSClients, m.BroadcastErrors)
	return m
}

// WireLedger conecta os callbacks do ledger (também usado pelo wallet-service)
func (m *Game) WireLedger(l *ledger.Ledger) {
	l.OnApplied = func(k ledger.Kind) { m.LedgerMutations.WithLabelValues(string(k)).Inc() }
	l.OnRejected = func(reason string) { m.LedgerRejections.WithLabelValues(reason).Inc() }
}

func (m *Game) WireBetting(s *betting.Service) {
	s.OnPlaced = func(o round.Option) { m.BetsPlaced.WithLabelValues(string(o)).Inc() }
	s.OnRejected = func(reason string) { m.BetsRejected.WithLabelValues(reason).Inc() }
}

func (m *Game) WireSettlement(e *settlement.Engine) {
	e.OnBetSettled = func(win bool, payout int64) {
		if win {
			m.BetsSettled.WithLabelValues("win").Inc()
			m.PayoutCents.Add(float64(payout))
			return
		}
		m.BetsSettled.WithLabelValues("loss").Inc()
	}
	e.OnBetFailed = func() { m.SettleFailures.Inc() }
}

func (m *Game) WireScheduler(s *scheduler.Scheduler) {
	states := []scheduler.State{scheduler.StateBetting, scheduler.StateRolling, scheduler.StateRevealing}
	s.OnState = func(cur scheduler.State) {
		for _, st := range states {
			v := 0.0
			if st == cur {
				v = 1
			}
			m.Phase.WithLabelValues(string(st)).Set(v)
		}
	}
	s.OnRoundCompleted = func(needs bool) {
		label := "none"
		if needs {
			label = "pending"
		}
		m.RoundsCompleted.WithLabelValues(label).Inc()
	}
}
