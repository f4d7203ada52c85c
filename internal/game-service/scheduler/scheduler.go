package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/dice-round-platform/internal/game-service/round"
	"github.com/radieske/dice-round-platform/internal/game-service/settlement"
	"github.com/radieske/dice-round-platform/pkg/contracts/events"
)

// State é a fase do ciclo visível aos observadores
type State string

const (
	StateIdle      State = "idle"
	StateBetting   State = "betting"
	StateRolling   State = "rolling"
	StateRevealing State = "revealing"
)

type Config struct {
	BettingWindow    time.Duration
	RollingDelay     time.Duration
	RevealWindow     time.Duration
	Tick             time.Duration
	PayoutMultiplier decimal.Decimal
}

var ErrInvalidSettings = errors.New("invalid round settings")

var maxMultiplier = decimal.NewFromInt(10)

// Settings são os parâmetros ajustáveis em execução; valem a partir da próxima rodada
type Settings struct {
	BettingWindow    time.Duration
	PayoutMultiplier decimal.Decimal
}

// SettingsUpdate: campos nil ficam como estão
type SettingsUpdate struct {
	BettingWindow    *time.Duration
	PayoutMultiplier *decimal.Decimal
}

// Store persiste as transições da rodada
type Store interface {
	CreateRound(ctx context.Context, r round.Round) error
	UpdatePhase(ctx context.Context, roundID string, phase round.Phase) error
	SaveResolution(ctx context.Context, roundID string, o round.Outcome, overridden bool) (round.Outcome, error)
	CompleteRound(ctx context.Context, roundID string, o *round.Outcome, needsReconciliation bool, at time.Time) error
	UnsettledRounds(ctx context.Context) ([]round.Round, error)
}

// Book é o ledger de apostas da rodada
type Book interface {
	Open(roundID string)
	Close(roundID string) []round.Bet
	Retire(roundID string)
	Stats() round.Stats
}

type Roller interface {
	Roll() (round.Outcome, bool)
}

type Settler interface {
	Settle(ctx context.Context, rnd round.Round, outcome round.Outcome, bets []round.Bet) settlement.Report
}

type Reconciler interface {
	Reconcile(ctx context.Context, roundID string) (settlement.Report, error)
}

// Notifier publica fatos duráveis da rodada (Kafka)
type Notifier interface {
	RoundSettled(ctx context.Context, ev events.RoundSettled) error
	SettlementFailed(ctx context.Context, ev events.SettlementFailed) error
}

// Snapshot é a visão pública da rodada corrente
type Snapshot struct {
	Round         round.Round `json:"round"`
	State         State       `json:"state"`
	RemainingTime int         `json:"remainingTime"`
}

// Scheduler é a única goroutine que avança as fases.
// Transições saem pelo canal Events; nada do lado de fora altera o estado.
type Scheduler struct {
	cfg        Config
	store      Store
	book       Book
	roller     Roller
	settler    Settler
	reconciler Reconciler
	notifier   Notifier
	log        *zap.Logger
	now        func() time.Time

	out chan events.Envelope

	mu       sync.RWMutex
	snap     Snapshot
	settings Settings

	OnState          func(s State)
	OnRoundCompleted func(needsReconciliation bool)
}

func New(cfg Config, store Store, book Book, roller Roller, settler Settler, reconciler Reconciler, notifier Notifier, log *zap.Logger) *Scheduler {
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	return &Scheduler{
		cfg:        cfg,
		store:      store,
		book:       book,
		roller:     roller,
		settler:    settler,
		reconciler: reconciler,
		notifier:   notifier,
		log:        log,
		now:        time.Now,
		out:        make(chan events.Envelope, 256),
		snap:       Snapshot{State: StateIdle},
		settings:   Settings{BettingWindow: cfg.BettingWindow, PayoutMultiplier: cfg.PayoutMultiplier},
	}
}

// Settings devolve os parâmetros que a próxima rodada vai usar
func (s *Scheduler) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// UpdateSettings troca os parâmetros das próximas rodadas; a rodada corrente não muda.
// Janela mínima de um tick; multiplicador em (1, 10].
func (s *Scheduler) UpdateSettings(u SettingsUpdate) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings
	if u.BettingWindow != nil {
		if *u.BettingWindow < s.cfg.Tick {
			return s.settings, ErrInvalidSettings
		}
		next.BettingWindow = *u.BettingWindow
	}
	if u.PayoutMultiplier != nil {
		m := *u.PayoutMultiplier
		if !m.GreaterThan(decimal.NewFromInt(1)) || m.GreaterThan(maxMultiplier) {
			return s.settings, ErrInvalidSettings
		}
		next.PayoutMultiplier = m
	}
	s.settings = next
	return next, nil
}

// Events entrega as transições para o broadcast; fechado quando Run termina
func (s *Scheduler) Events() <-chan events.Envelope { return s.out }

// Current devolve uma cópia do estado corrente
func (s *Scheduler) Current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Run recupera rodadas pendentes e roda o ciclo até o ctx ser cancelado
func (s *Scheduler) Run(ctx context.Context) error {
	defer close(s.out)
	s.recoverPending(ctx)

	for {
		if err := s.runRound(ctx); err != nil {
			return err
		}
	}
}

func (s *Scheduler) runRound(ctx context.Context) error {
	st := s.Settings()
	rnd := round.Round{
		ID:                   uuid.NewString(),
		Phase:                round.PhaseBetting,
		BettingWindowSeconds: seconds(st.BettingWindow),
		PayoutMultiplier:     st.PayoutMultiplier,
		CreatedAt:            s.now().UTC(),
	}
	if err := s.store.CreateRound(ctx, rnd); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// sem rodada persistida não dá para aceitar aposta; tenta de novo no próximo tick
		s.log.Error("create round failed", zap.Error(err))
		return s.sleep(ctx, s.cfg.Tick)
	}

	// betting
	s.book.Open(rnd.ID)
	remaining := s.ticks(st.BettingWindow)
	s.set(rnd, StateBetting, remaining)
	s.emit(events.TypeSessionStart, rnd.ID, events.SessionStart{
		RoundID:     rnd.ID,
		BettingTime: seconds(st.BettingWindow),
		TotalTime:   seconds(st.BettingWindow + s.cfg.RollingDelay + s.cfg.RevealWindow),
	})
	s.log.Info("round opened", zap.String("roundId", rnd.ID))

	err := s.countdown(ctx, remaining, func(left int) {
		s.setRemaining(left)
		s.emit(events.TypeCountdown, rnd.ID, events.Countdown{
			RemainingTime: left,
			Phase:         string(StateBetting),
			BettingStats:  s.book.Stats().Event(),
		})
	})
	// fecha mesmo no shutdown: a rodada fica pendente e é recuperada no próximo start
	bets := s.book.Close(rnd.ID)
	if err != nil {
		return err
	}
	s.emit(events.TypeBettingClosed, rnd.ID, events.BettingClosed{RoundID: rnd.ID})

	// rolling
	rnd.Phase = round.PhaseRolling
	s.set(rnd, StateRolling, 0)
	if err := s.store.UpdatePhase(ctx, rnd.ID, round.PhaseRolling); err != nil {
		s.log.Warn("update phase failed", zap.String("roundId", rnd.ID), zap.Error(err))
	}
	if err := s.sleep(ctx, s.cfg.RollingDelay); err != nil {
		return err
	}

	// liquidação não é cancelável
	settled := s.resolveAndSettle(context.WithoutCancel(ctx), rnd, bets)
	s.book.Retire(rnd.ID)
	if settled.Outcome != nil {
		s.emit(events.TypeDiceRolled, rnd.ID, settled.Outcome.DiceRolled(rnd.ID))
	}

	// revealing
	remaining = s.ticks(s.cfg.RevealWindow)
	s.set(settled, StateRevealing, remaining)
	return s.countdown(ctx, remaining, func(left int) {
		s.setRemaining(left)
		s.emit(events.TypeCountdown, rnd.ID, events.Countdown{
			RemainingTime: left,
			Phase:         string(StateRevealing),
		})
	})
}

// resolveAndSettle sempre leva a rodada a settled; falhas vão para a DLQ
func (s *Scheduler) resolveAndSettle(ctx context.Context, rnd round.Round, bets []round.Bet) round.Round {
	completedAt := s.now().UTC()
	rnd.Phase = round.PhaseSettled
	rnd.CompletedAt = &completedAt

	rolled, overridden := s.roller.Roll()
	outcome, err := s.store.SaveResolution(ctx, rnd.ID, rolled, overridden)
	if err != nil {
		// sem resultado gravado nada é pago; o reconciler resolve depois
		s.log.Error("save resolution failed", zap.String("roundId", rnd.ID), zap.Error(err))
		rnd.NeedsReconciliation = true
		s.complete(ctx, rnd, nil)
		s.failed(ctx, events.SettlementFailed{RoundID: rnd.ID, Reason: "resolution: " + err.Error()})
		return rnd
	}
	if overridden {
		s.log.Info("override consumed", zap.String("roundId", rnd.ID), zap.Ints("dice", outcome.Dice[:]))
	}

	rep := s.settler.Settle(ctx, rnd, outcome, bets)

	rnd.Outcome = &outcome
	rnd.NeedsReconciliation = rep.Failed() > 0
	completed := s.complete(ctx, rnd, &outcome)

	// falhas por aposta só saem com a rodada já marcada
	for _, f := range rep.Failures {
		s.failed(ctx, events.SettlementFailed{
			RoundID:  rnd.ID,
			BetID:    f.BetID,
			BettorID: f.BettorID,
			Reason:   f.Err.Error(),
		})
	}
	if !completed {
		rnd.NeedsReconciliation = true
		s.failed(ctx, events.SettlementFailed{RoundID: rnd.ID, Reason: "complete round failed"})
	}

	if s.notifier != nil {
		ev := events.RoundSettled{
			RoundID:      rnd.ID,
			Dice:         outcome.Dice,
			Total:        outcome.Total,
			BigSmall:     string(outcome.BigSmall),
			EvenOdd:      string(outcome.EvenOdd),
			Bets:         rep.Bets,
			Winners:      rep.Winners,
			Failed:       rep.Failed(),
			PaidOutCents: rep.PaidOut,
			Ts:           completedAt,
		}
		if err := s.notifier.RoundSettled(ctx, ev); err != nil {
			s.log.Warn("publish round settled failed", zap.String("roundId", rnd.ID), zap.Error(err))
		}
	}
	return rnd
}

func (s *Scheduler) complete(ctx context.Context, rnd round.Round, outcome *round.Outcome) bool {
	if err := s.store.CompleteRound(ctx, rnd.ID, outcome, rnd.NeedsReconciliation, *rnd.CompletedAt); err != nil {
		s.log.Error("complete round failed", zap.String("roundId", rnd.ID), zap.Error(err))
		return false
	}
	if s.OnRoundCompleted != nil {
		s.OnRoundCompleted(rnd.NeedsReconciliation)
	}
	return true
}

func (s *Scheduler) failed(ctx context.Context, ev events.SettlementFailed) {
	ev.Attempt = 1
	ev.Ts = s.now().UTC()
	if s.notifier == nil {
		return
	}
	if err := s.notifier.SettlementFailed(ctx, ev); err != nil {
		s.log.Error("publish settlement failure failed",
			zap.String("roundId", ev.RoundID),
			zap.String("betId", ev.BetID),
			zap.Error(err))
	}
}

// recoverPending reexecuta rodadas deixadas sem liquidação por um crash
func (s *Scheduler) recoverPending(ctx context.Context) {
	if s.reconciler == nil {
		return
	}
	pending, err := s.store.UnsettledRounds(ctx)
	if err != nil {
		s.log.Error("list unsettled rounds failed", zap.Error(err))
		return
	}
	for _, r := range pending {
		rep, err := s.reconciler.Reconcile(context.WithoutCancel(ctx), r.ID)
		if err != nil {
			s.log.Warn("recovery incomplete", zap.String("roundId", r.ID), zap.Error(err))
			s.failed(ctx, events.SettlementFailed{RoundID: r.ID, Reason: "recovery: " + err.Error()})
			continue
		}
		s.log.Info("round recovered",
			zap.String("roundId", r.ID),
			zap.Int("bets", rep.Bets),
			zap.Int64("paidOut", rep.PaidOut))
	}
}

// countdown chama fn a cada tick com o tempo restante, até zero
func (s *Scheduler) countdown(ctx context.Context, remaining int, fn func(left int)) error {
	t := time.NewTicker(s.cfg.Tick)
	defer t.Stop()
	for remaining > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			remaining--
			fn(remaining)
		}
	}
	return nil
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// emit nunca bloqueia o ciclo; se o consumidor atrasar, o evento é descartado
func (s *Scheduler) emit(typ, roundID string, payload any) {
	env, err := events.NewEnvelope(typ, roundID, payload)
	if err != nil {
		s.log.Error("encode broadcast", zap.String("type", typ), zap.Error(err))
		return
	}
	select {
	case s.out <- env:
	default:
		s.log.Warn("broadcast dropped", zap.String("type", typ), zap.String("roundId", roundID))
	}
}

func (s *Scheduler) set(r round.Round, st State, remaining int) {
	s.mu.Lock()
	s.snap = Snapshot{Round: r, State: st, RemainingTime: remaining}
	s.mu.Unlock()
	if s.OnState != nil {
		s.OnState(st)
	}
}

func (s *Scheduler) setRemaining(left int) {
	s.mu.Lock()
	s.snap.RemainingTime = left
	s.mu.Unlock()
}

func (s *Scheduler) ticks(d time.Duration) int {
	n := int(d / s.cfg.Tick)
	if n < 1 {
		n = 1
	}
	return n
}

func seconds(d time.Duration) int {
	return int((d + time.Second/2) / time.Second)
}
