package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/dice-round-platform/internal/game-service/round"
	"github.com/radieske/dice-round-platform/internal/wallet-service/ledger"
)

// Wallet credita prêmios
type Wallet interface {
	ApplyDelta(ctx context.Context, m ledger.Mutation) (ledger.Entry, error)
}

// Store guarda o histórico de liquidação; InsertHistory é idempotente por bet_id
type Store interface {
	InsertHistory(ctx context.Context, tx ledger.Tx, h round.History) error
	UnsettledBets(ctx context.Context, roundID string) ([]round.Bet, error)
}

// Failure é uma aposta que não pôde ser liquidada
type Failure struct {
	BetID    string
	BettorID string
	Err      error
}

// Report resume uma passada de liquidação
type Report struct {
	RoundID  string
	Outcome  round.Outcome
	Bets     int
	Winners  int
	PaidOut  int64
	Skipped  int // já liquidadas antes (replay)
	Failures []Failure
}

func (r Report) Failed() int { return len(r.Failures) }

// Engine liquida apostas de uma rodada. Cada aposta é independente:
// falha em uma não impede as demais.
type Engine struct {
	wallet Wallet
	store  Store
	log    *zap.Logger
	now    func() time.Time

	OnBetSettled func(win bool, payout int64)
	OnBetFailed  func()
}

func NewEngine(wallet Wallet, store Store, log *zap.Logger) *Engine {
	return &Engine{wallet: wallet, store: store, log: log, now: time.Now}
}

// PayoutRef é a chave de idempotência do crédito de prêmio
func PayoutRef(betID string) string { return "payout:" + betID }

// Settle liquida o conjunto fechado de apostas. Reexecutar com as mesmas apostas não paga duas vezes.
func (e *Engine) Settle(ctx context.Context, rnd round.Round, outcome round.Outcome, bets []round.Bet) Report {
	rep := Report{RoundID: rnd.ID, Outcome: outcome, Bets: len(bets)}
	for _, b := range bets {
		paid, dup, err := e.settleOne(ctx, rnd, outcome, b)
		switch {
		case err != nil:
			rep.Failures = append(rep.Failures, Failure{BetID: b.ID, BettorID: b.BettorID, Err: err})
			if e.OnBetFailed != nil {
				e.OnBetFailed()
			}
			e.log.Error("bet settlement failed",
				zap.String("roundId", rnd.ID),
				zap.String("betId", b.ID),
				zap.String("bettorId", b.BettorID),
				zap.Error(err))
			continue
		case dup:
			rep.Skipped++
			continue
		}

		win := paid > 0
		if win {
			rep.Winners++
			rep.PaidOut += paid
		}
		if e.OnBetSettled != nil {
			e.OnBetSettled(win, paid)
		}
	}

	e.log.Info("round settled",
		zap.String("roundId", rnd.ID),
		zap.Int("bets", rep.Bets),
		zap.Int("winners", rep.Winners),
		zap.Int("failed", rep.Failed()),
		zap.Int64("paidOut", rep.PaidOut))
	return rep
}

// Replay liquida o que ainda não tem histórico, lendo as apostas do banco
func (e *Engine) Replay(ctx context.Context, rnd round.Round, outcome round.Outcome) (Report, error) {
	bets, err := e.store.UnsettledBets(ctx, rnd.ID)
	if err != nil {
		return Report{RoundID: rnd.ID, Outcome: outcome}, fmt.Errorf("load unsettled bets: %w", err)
	}
	return e.Settle(ctx, rnd, outcome, bets), nil
}

// settleOne paga (se ganhou) e grava o histórico na mesma transação do crédito
func (e *Engine) settleOne(ctx context.Context, rnd round.Round, outcome round.Outcome, b round.Bet) (int64, bool, error) {
	h := round.History{
		BetID:     b.ID,
		RoundID:   rnd.ID,
		BettorID:  b.BettorID,
		Outcome:   outcome,
		Option:    b.Option,
		Amount:    b.Amount,
		IsWin:     outcome.Wins(b.Option),
		CreatedAt: e.now().UTC(),
	}

	if !h.IsWin {
		return 0, false, e.store.InsertHistory(ctx, nil, h)
	}

	h.WinAmount = round.Payout(b.Amount, rnd.PayoutMultiplier)
	_, err := e.wallet.ApplyDelta(ctx, ledger.Mutation{
		AccountID: b.BettorID,
		Amount:    h.WinAmount,
		Kind:      ledger.KindCreditWin,
		Note:      fmt.Sprintf("win %s on %s", b.Option, rnd.ID),
		Ref:       PayoutRef(b.ID),
		Attach: func(ctx context.Context, tx ledger.Tx) error {
			return e.store.InsertHistory(ctx, tx, h)
		},
	})
	if errors.Is(err, ledger.ErrDuplicateRef) {
		// crédito já aplicado numa passada anterior
		return 0, true, nil
	}
	if err != nil {
		return 0, false, err
	}
	return h.WinAmount, false, nil
}
