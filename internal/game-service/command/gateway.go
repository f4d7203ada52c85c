package command

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/dice-round-platform/internal/game-service/betting"
	"github.com/radieske/dice-round-platform/internal/game-service/round"
	"github.com/radieske/dice-round-platform/internal/game-service/scheduler"
	"github.com/radieske/dice-round-platform/internal/game-service/settlement"
	"github.com/radieske/dice-round-platform/internal/wallet-service/ledger"
	"github.com/radieske/dice-round-platform/pkg/contracts/events"
)

var (
	ErrForbidden       = errors.New("operation not allowed for caller")
	ErrUnauthenticated = errors.New("caller identity required")
)

// Role vem do colaborador de autenticação junto com o id
type Role string

const (
	RoleBettor Role = "bettor"
	RoleAdmin  Role = "admin"
)

// Caller é a identidade autenticada de quem invoca um comando
type Caller struct {
	ID   string
	Role Role
}

func (c Caller) IsAdmin() bool { return c.Role == RoleAdmin }

type Bets interface {
	PlaceBet(ctx context.Context, bettorID string, opt round.Option, amount int64) (betting.Placed, error)
	Stats() round.Stats
}

type Rounds interface {
	Current() scheduler.Snapshot
	Settings() scheduler.Settings
	UpdateSettings(u scheduler.SettingsUpdate) (scheduler.Settings, error)
}

type Stager interface {
	Stage(d [3]int) error
}

type Wallet interface {
	ApplyDelta(ctx context.Context, m ledger.Mutation) (ledger.Entry, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, roundID string) (settlement.Report, error)
}

type HistoryReader interface {
	HistoryByBettor(ctx context.Context, bettorID string, limit int) ([]round.History, error)
	BettorStats(ctx context.Context, bettorID string) (round.BettorStats, error)
	RecentRounds(ctx context.Context, limit int) ([]round.Round, error)
	TopWinners(ctx context.Context, since time.Time, limit int) ([]round.Winner, error)
}

// BetEvents publica a aposta aceita (Kafka)
type BetEvents interface {
	BetPlaced(ctx context.Context, ev events.BetPlaced) error
}

// Broadcaster envia eventos avulsos aos observadores (stats ao vivo)
type Broadcaster interface {
	Publish(ctx context.Context, env events.Envelope) error
}

// Gateway é a única porta para operações sensíveis: aposta, override,
// ajuste de saldo e replay de liquidação. Checagem de papel acontece aqui.
type Gateway struct {
	bets       Bets
	rounds     Rounds
	stager     Stager
	wallet     Wallet
	reconciler Reconciler
	history    HistoryReader
	log        *zap.Logger
	now        func() time.Time

	BetEvents   BetEvents
	Broadcaster Broadcaster
}

func NewGateway(bets Bets, rounds Rounds, stager Stager, wallet Wallet, reconciler Reconciler, history HistoryReader, log *zap.Logger) *Gateway {
	return &Gateway{
		bets:       bets,
		rounds:     rounds,
		stager:     stager,
		wallet:     wallet,
		reconciler: reconciler,
		history:    history,
		log:        log,
		now:        time.Now,
	}
}

// BetAccepted é a resposta de placeBet
type BetAccepted struct {
	BetID           string       `json:"betId"`
	AcceptedRoundID string       `json:"acceptedRoundId"`
	Option          round.Option `json:"option"`
	Amount          int64        `json:"amount_cents"`
	BalanceAfter    int64        `json:"balance_cents"`
}

// PlaceBet aposta em nome do próprio caller
func (g *Gateway) PlaceBet(ctx context.Context, c Caller, option string, amount int64) (BetAccepted, error) {
	if c.ID == "" {
		return BetAccepted{}, ErrUnauthenticated
	}
	opt, err := round.ParseOption(option)
	if err != nil {
		return BetAccepted{}, err
	}

	p, err := g.bets.PlaceBet(ctx, c.ID, opt, amount)
	if err != nil {
		return BetAccepted{}, err
	}

	g.afterBet(ctx, p)
	return BetAccepted{
		BetID:           p.Bet.ID,
		AcceptedRoundID: p.Bet.RoundID,
		Option:          p.Bet.Option,
		Amount:          p.Bet.Amount,
		BalanceAfter:    p.BalanceAfter,
	}, nil
}

// afterBet publica a aposta e as estatísticas; falhas aqui não desfazem a aposta
func (g *Gateway) afterBet(ctx context.Context, p betting.Placed) {
	if g.BetEvents != nil {
		ev := events.BetPlaced{
			BetID:        p.Bet.ID,
			RoundID:      p.Bet.RoundID,
			BettorID:     p.Bet.BettorID,
			Option:       string(p.Bet.Option),
			AmountCents:  p.Bet.Amount,
			BalanceAfter: p.BalanceAfter,
			TsUnixMs:     p.Bet.CreatedAt.UnixMilli(),
		}
		if err := g.BetEvents.BetPlaced(ctx, ev); err != nil {
			g.log.Warn("publish bet placed failed", zap.String("betId", p.Bet.ID), zap.Error(err))
		}
	}
	if g.Broadcaster != nil {
		env, err := events.NewEnvelope(events.TypeBettingStats, p.Bet.RoundID, g.bets.Stats().Event())
		if err == nil {
			err = g.Broadcaster.Publish(ctx, env)
		}
		if err != nil {
			g.log.Warn("broadcast stats failed", zap.String("roundId", p.Bet.RoundID), zap.Error(err))
		}
	}
}

func (g *Gateway) CurrentRound() scheduler.Snapshot { return g.rounds.Current() }

func (g *Gateway) AggregateStats() round.Stats { return g.bets.Stats() }

// StageOverride registra os dados da próxima rodada (uso único)
func (g *Gateway) StageOverride(c Caller, d [3]int) error {
	if !c.IsAdmin() {
		return ErrForbidden
	}
	if err := g.stager.Stage(d); err != nil {
		return err
	}
	g.log.Info("dice override staged", zap.String("adminId", c.ID), zap.Ints("dice", d[:]))
	return nil
}

// AdjustBalance aplica um ajuste com sinal via ledger (kind=admin_adjust)
func (g *Gateway) AdjustBalance(ctx context.Context, c Caller, accountID string, signedAmount int64, note string) (int64, error) {
	if !c.IsAdmin() {
		return 0, ErrForbidden
	}
	if note == "" {
		note = "admin adjust by " + c.ID
	}
	e, err := g.wallet.ApplyDelta(ctx, ledger.Mutation{
		AccountID: accountID,
		Amount:    signedAmount,
		Kind:      ledger.KindAdminAdjust,
		Note:      note,
	})
	if err != nil {
		return 0, err
	}
	g.log.Info("balance adjusted",
		zap.String("adminId", c.ID),
		zap.String("accountId", accountID),
		zap.Int64("delta", e.Delta),
		zap.Int64("balanceAfter", e.BalanceAfter))
	return e.BalanceAfter, nil
}

// UpdateConfig altera janela de apostas e multiplicador das próximas rodadas
func (g *Gateway) UpdateConfig(c Caller, u scheduler.SettingsUpdate) (scheduler.Settings, error) {
	if !c.IsAdmin() {
		return scheduler.Settings{}, ErrForbidden
	}
	st, err := g.rounds.UpdateSettings(u)
	if err != nil {
		return st, err
	}
	g.log.Info("round settings updated",
		zap.String("adminId", c.ID),
		zap.Duration("bettingWindow", st.BettingWindow),
		zap.String("payoutMultiplier", st.PayoutMultiplier.String()))
	return st, nil
}

func (g *Gateway) Settings() scheduler.Settings { return g.rounds.Settings() }

// ReplaySettlement reexecuta a liquidação pendente de uma rodada
func (g *Gateway) ReplaySettlement(ctx context.Context, c Caller, roundID string) (settlement.Report, error) {
	if !c.IsAdmin() {
		return settlement.Report{}, ErrForbidden
	}
	if cur := g.rounds.Current(); cur.Round.ID == roundID && cur.Round.Phase != round.PhaseSettled {
		// rodada ainda em andamento pertence ao scheduler
		return settlement.Report{}, round.ErrInvalidPhase
	}
	return g.reconciler.Reconcile(context.WithoutCancel(ctx), roundID)
}

// History: apostador só vê o próprio histórico; admin vê qualquer um
func (g *Gateway) History(ctx context.Context, c Caller, bettorID string, limit int) ([]round.History, error) {
	if err := canRead(c, bettorID); err != nil {
		return nil, err
	}
	return g.history.HistoryByBettor(ctx, bettorID, limit)
}

func (g *Gateway) BettorStats(ctx context.Context, c Caller, bettorID string) (round.BettorStats, error) {
	if err := canRead(c, bettorID); err != nil {
		return round.BettorStats{}, err
	}
	return g.history.BettorStats(ctx, bettorID)
}

// RoundSummary é uma rodada já liquidada
type RoundSummary struct {
	ID          string         `json:"id"`
	Outcome     *round.Outcome `json:"outcome,omitempty"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

func (g *Gateway) RecentRounds(ctx context.Context, limit int) ([]RoundSummary, error) {
	rs, err := g.history.RecentRounds(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]RoundSummary, 0, len(rs))
	for _, r := range rs {
		out = append(out, RoundSummary{ID: r.ID, Outcome: r.Outcome, CompletedAt: r.CompletedAt})
	}
	return out, nil
}

// TopWinners é o ranking do dia corrente (UTC) por lucro líquido
func (g *Gateway) TopWinners(ctx context.Context, limit int) ([]round.Winner, error) {
	now := g.now().UTC()
	since := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return g.history.TopWinners(ctx, since, limit)
}

func canRead(c Caller, bettorID string) error {
	if c.ID == "" {
		return ErrUnauthenticated
	}
	if c.ID != bettorID && !c.IsAdmin() {
		return ErrForbidden
	}
	return nil
}
