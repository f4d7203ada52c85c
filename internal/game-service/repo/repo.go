package repo

import (
	"context"
	"sort"
	"time"

	"github.com/radieske/dice-round-platform/internal/game-service/round"
	"github.com/radieske/dice-round-platform/internal/wallet-service/ledger"
)

// Repository é o armazenamento de rodadas, apostas e histórico.
// Implementado por Postgres e Memory.
type Repository interface {
	CreateRound(ctx context.Context, r round.Round) error
	UpdatePhase(ctx context.Context, roundID string, phase round.Phase) error
	GetRound(ctx context.Context, id string) (round.Round, error)
	UnsettledRounds(ctx context.Context) ([]round.Round, error)
	RecentRounds(ctx context.Context, limit int) ([]round.Round, error)

	SaveResolution(ctx context.Context, roundID string, o round.Outcome, overridden bool) (round.Outcome, error)
	Resolution(ctx context.Context, roundID string) (*round.Outcome, error)
	CompleteRound(ctx context.Context, roundID string, o *round.Outcome, needsReconciliation bool, at time.Time) error

	InsertBet(ctx context.Context, tx ledger.Tx, b round.Bet) error
	UnsettledBets(ctx context.Context, roundID string) ([]round.Bet, error)

	InsertHistory(ctx context.Context, tx ledger.Tx, h round.History) error
	HistoryByBettor(ctx context.Context, bettorID string, limit int) ([]round.History, error)
	BettorStats(ctx context.Context, bettorID string) (round.BettorStats, error)
	TopWinners(ctx context.Context, since time.Time, limit int) ([]round.Winner, error)
}

// statsFrom soma o histórico de um apostador
func statsFrom(hs []round.History) round.BettorStats {
	var st round.BettorStats
	for _, h := range hs {
		st.TotalGames++
		st.TotalBet += h.Amount
		st.TotalWin += h.WinAmount
		if h.IsWin {
			st.Wins++
		} else {
			st.Losses++
		}
	}
	st.NetProfit = st.TotalWin - st.TotalBet
	return st
}

// rankWinners agrega por apostador e ordena por lucro líquido (desc), id como desempate
func rankWinners(hs []round.History, limit int) []round.Winner {
	byBettor := make(map[string]*round.Winner)
	for _, h := range hs {
		w, ok := byBettor[h.BettorID]
		net := h.WinAmount - h.Amount
		if !ok {
			w = &round.Winner{BettorID: h.BettorID, BiggestWin: net}
			byBettor[h.BettorID] = w
		}
		w.TotalGames++
		if h.IsWin {
			w.Wins++
		}
		w.NetProfit += net
		if net > w.BiggestWin {
			w.BiggestWin = net
		}
	}

	out := make([]round.Winner, 0, len(byBettor))
	for _, w := range byBettor {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NetProfit != out[j].NetProfit {
			return out[i].NetProfit > out[j].NetProfit
		}
		return out[i].BettorID < out[j].BettorID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
