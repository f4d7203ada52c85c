package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/dice-round-platform/internal/game-service/round"
)

var ErrIncomplete = errors.New("round still has unsettled bets")

// RoundStore é o que a reconciliação precisa da rodada
type RoundStore interface {
	GetRound(ctx context.Context, id string) (round.Round, error)
	Resolution(ctx context.Context, roundID string) (*round.Outcome, error)
	SaveResolution(ctx context.Context, roundID string, o round.Outcome, overridden bool) (round.Outcome, error)
	CompleteRound(ctx context.Context, roundID string, o *round.Outcome, needsReconciliation bool, at time.Time) error
}

// Roller resolve dados para rodadas que nunca chegaram a ser resolvidas
type Roller interface {
	Roll() (round.Outcome, bool)
}

// Reconciler reexecuta a liquidação de uma rodada a partir do que está persistido
type Reconciler struct {
	rounds RoundStore
	engine *Engine
	roller Roller
	log    *zap.Logger
	now    func() time.Time
}

func NewReconciler(rounds RoundStore, engine *Engine, roller Roller, log *zap.Logger) *Reconciler {
	return &Reconciler{rounds: rounds, engine: engine, roller: roller, log: log, now: time.Now}
}

// Reconcile liquida as apostas pendentes da rodada e marca a rodada como settled.
// Usa sempre os dados já gravados; só rola de novo se a rodada nunca foi resolvida.
func (r *Reconciler) Reconcile(ctx context.Context, roundID string) (Report, error) {
	rnd, err := r.rounds.GetRound(ctx, roundID)
	if err != nil {
		return Report{RoundID: roundID}, err
	}

	outcome, err := r.outcomeFor(ctx, rnd)
	if err != nil {
		return Report{RoundID: roundID}, err
	}

	rep, err := r.engine.Replay(ctx, rnd, outcome)
	if err != nil {
		return rep, err
	}

	needs := rep.Failed() > 0
	if err := r.rounds.CompleteRound(ctx, rnd.ID, &outcome, needs, r.now().UTC()); err != nil {
		return rep, fmt.Errorf("complete round: %w", err)
	}
	if needs {
		return rep, fmt.Errorf("%w: %d failed", ErrIncomplete, rep.Failed())
	}

	r.log.Info("round reconciled",
		zap.String("roundId", rnd.ID),
		zap.Int("bets", rep.Bets),
		zap.Int("skipped", rep.Skipped),
		zap.Int64("paidOut", rep.PaidOut))
	return rep, nil
}

func (r *Reconciler) outcomeFor(ctx context.Context, rnd round.Round) (round.Outcome, error) {
	if rnd.Outcome != nil {
		return *rnd.Outcome, nil
	}
	stored, err := r.rounds.Resolution(ctx, rnd.ID)
	if err != nil {
		return round.Outcome{}, fmt.Errorf("load resolution: %w", err)
	}
	if stored != nil {
		return *stored, nil
	}

	o, overridden := r.roller.Roll()
	saved, err := r.rounds.SaveResolution(ctx, rnd.ID, o, overridden)
	if err != nil {
		return round.Outcome{}, fmt.Errorf("save resolution: %w", err)
	}
	r.log.Warn("round resolved during reconciliation",
		zap.String("roundId", rnd.ID),
		zap.Ints("dice", saved.Dice[:]))
	return saved, nil
}
