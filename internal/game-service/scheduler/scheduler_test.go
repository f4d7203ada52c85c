package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/dice-round-platform/internal/game-service/betting"
	"github.com/radieske/dice-round-platform/internal/game-service/dice"
	"github.com/radieske/dice-round-platform/internal/game-service/repo"
	"github.com/radieske/dice-round-platform/internal/game-service/round"
	"github.com/radieske/dice-round-platform/internal/game-service/settlement"
	"github.com/radieske/dice-round-platform/internal/wallet-service/ledger"
	"github.com/radieske/dice-round-platform/pkg/contracts/events"
)

type recordingNotifier struct {
	mu      sync.Mutex
	settled []events.RoundSettled
	failed  []events.SettlementFailed
}

func (n *recordingNotifier) RoundSettled(_ context.Context, ev events.RoundSettled) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.settled = append(n.settled, ev)
	return nil
}

func (n *recordingNotifier) SettlementFailed(_ context.Context, ev events.SettlementFailed) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, ev)
	return nil
}

func (n *recordingNotifier) failures() []events.SettlementFailed {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]events.SettlementFailed(nil), n.failed...)
}

// failingResolutions derruba a gravação do resultado
type failingResolutions struct{ *repo.Memory }

func (failingResolutions) SaveResolution(context.Context, string, round.Outcome, bool) (round.Outcome, error) {
	return round.Outcome{}, errors.New("db down")
}

type harness struct {
	ctx      context.Context
	cancel   context.CancelFunc
	ledger   *ledger.Ledger
	repo     *repo.Memory
	bets     *betting.Service
	resolver *dice.Resolver
	notifier *recordingNotifier
	sched    *Scheduler
	done     chan error
}

func newHarness(t *testing.T, store Store, mem *repo.Memory) *harness {
	t.Helper()
	log := zap.NewNop()
	h := &harness{
		ledger:   ledger.New(ledger.NewMemoryStore(), log),
		repo:     mem,
		resolver: dice.NewResolver(func() int { return 1 }),
		notifier: &recordingNotifier{},
		done:     make(chan error, 1),
	}
	h.bets = betting.NewService(betting.NewArena(), h.ledger, mem, log)
	engine := settlement.NewEngine(h.ledger, mem, log)
	rec := settlement.NewReconciler(mem, engine, h.resolver, log)
	cfg := Config{
		BettingWindow:    100 * time.Millisecond,
		RollingDelay:     10 * time.Millisecond,
		RevealWindow:     30 * time.Millisecond,
		Tick:             10 * time.Millisecond,
		PayoutMultiplier: decimal.RequireFromString("1.95"),
	}
	if store == nil {
		store = mem
	}
	h.sched = New(cfg, store, h.bets, h.resolver, engine, rec, h.notifier, log)
	h.ctx, h.cancel = context.WithCancel(context.Background())
	t.Cleanup(h.cancel)
	return h
}

func (h *harness) start() {
	go func() { h.done <- h.sched.Run(h.ctx) }()
}

func (h *harness) deposit(t *testing.T, id string, amount int64) {
	t.Helper()
	_, err := h.ledger.OpenAccount(h.ctx, id)
	require.NoError(t, err)
	_, err = h.ledger.ApplyDelta(h.ctx, ledger.Mutation{AccountID: id, Amount: amount, Kind: ledger.KindDeposit})
	require.NoError(t, err)
}

// next lê eventos até achar o tipo pedido
func (h *harness) next(t *testing.T, typ string) events.Envelope {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case env, ok := <-h.sched.Events():
			require.True(t, ok, "events channel closed")
			if env.Type == typ {
				return env
			}
		case <-timeout:
			t.Fatalf("timeout waiting for %s", typ)
		}
	}
}

func TestScheduler_PhaseOrder(t *testing.T) {
	h := newHarness(t, nil, repo.NewMemory())
	h.start()

	var seq []string
	timeout := time.After(2 * time.Second)
	starts := 0
loop:
	for {
		select {
		case env := <-h.sched.Events():
			if env.Type == events.TypeSessionStart {
				starts++
				if starts == 2 {
					break loop
				}
			}
			seq = append(seq, env.Type)
		case <-timeout:
			t.Fatal("timeout")
		}
	}

	// sessionStart, 10 countdowns, bettingClosed, diceRolled, 3 countdowns
	require.Len(t, seq, 16)
	assert.Equal(t, events.TypeSessionStart, seq[0])
	for i := 1; i <= 10; i++ {
		assert.Equal(t, events.TypeCountdown, seq[i])
	}
	assert.Equal(t, events.TypeBettingClosed, seq[11])
	assert.Equal(t, events.TypeDiceRolled, seq[12])
	for i := 13; i < 16; i++ {
		assert.Equal(t, events.TypeCountdown, seq[i])
	}
}

func TestScheduler_EndToEndSettlementBeforeBroadcast(t *testing.T) {
	h := newHarness(t, nil, repo.NewMemory())
	h.deposit(t, "alice", 500)
	require.NoError(t, h.resolver.Stage([3]int{6, 6, 6}))
	h.start()

	start := h.next(t, events.TypeSessionStart)
	placed, err := h.bets.PlaceBet(h.ctx, "alice", round.OptionBig, 100)
	require.NoError(t, err)
	assert.Equal(t, start.RoundID, placed.Bet.RoundID)
	assert.Equal(t, int64(400), placed.BalanceAfter)

	h.next(t, events.TypeBettingClosed)
	_, err = h.bets.PlaceBet(h.ctx, "alice", round.OptionBig, 100)
	assert.ErrorIs(t, err, round.ErrInvalidPhase)

	env := h.next(t, events.TypeDiceRolled)
	var rolled events.DiceRolled
	require.NoError(t, json.Unmarshal(env.Payload, &rolled))
	assert.Equal(t, 18, rolled.Total)
	assert.Equal(t, "big", rolled.Results.BigSmall)

	// quando o resultado sai, o pagamento já está gravado
	bal, _ := h.ledger.GetBalance(h.ctx, "alice")
	assert.Equal(t, int64(595), bal)
	entries, _ := h.ledger.Entries(h.ctx, "alice", 0)
	assert.Len(t, entries, 3) // deposit, debit_bet, credit_win

	hs, _ := h.repo.HistoryByBettor(h.ctx, "alice", 0)
	require.Len(t, hs, 1)
	assert.True(t, hs[0].IsWin)
	assert.Equal(t, int64(195), hs[0].WinAmount)

	r, err := h.repo.GetRound(h.ctx, start.RoundID)
	require.NoError(t, err)
	assert.Equal(t, round.PhaseSettled, r.Phase)
	assert.Equal(t, 18, r.Outcome.Total)

	snap := h.sched.Current()
	assert.Equal(t, StateRevealing, snap.State)
	assert.Equal(t, start.RoundID, snap.Round.ID)
}

func TestScheduler_WideFailureStillAdvances(t *testing.T) {
	mem := repo.NewMemory()
	h := newHarness(t, failingResolutions{mem}, mem)
	h.deposit(t, "alice", 500)
	h.start()

	start := h.next(t, events.TypeSessionStart)
	_, err := h.bets.PlaceBet(h.ctx, "alice", round.OptionBig, 100)
	require.NoError(t, err)

	h.next(t, events.TypeBettingClosed)
	h.next(t, events.TypeSessionStart) // a próxima rodada abriu

	r, err := mem.GetRound(h.ctx, start.RoundID)
	require.NoError(t, err)
	assert.Equal(t, round.PhaseSettled, r.Phase)
	assert.True(t, r.NeedsReconciliation)
	assert.Nil(t, r.Outcome)

	fails := h.notifier.failures()
	require.NotEmpty(t, fails)
	assert.Equal(t, start.RoundID, fails[0].RoundID)
	assert.Empty(t, fails[0].BetID)

	bal, _ := h.ledger.GetBalance(h.ctx, "alice")
	assert.Equal(t, int64(400), bal)
}

func TestScheduler_RecoversInterruptedRound(t *testing.T) {
	mem := repo.NewMemory()
	h := newHarness(t, nil, mem)
	h.deposit(t, "bob", 500)

	// rodada interrompida no meio do betting, com aposta já debitada
	stale := round.Round{ID: "stale", Phase: round.PhaseBetting, PayoutMultiplier: decimal.RequireFromString("1.95"), CreatedAt: time.Now().UTC()}
	require.NoError(t, mem.CreateRound(h.ctx, stale))
	bet := round.Bet{ID: "b1", RoundID: "stale", BettorID: "bob", Option: round.OptionSmall, Amount: 100, CreatedAt: time.Now().UTC()}
	_, err := h.ledger.ApplyDelta(h.ctx, ledger.Mutation{
		AccountID: "bob", Amount: 100, Kind: ledger.KindDebitBet, Ref: "bet:b1",
		Attach: func(ctx context.Context, tx ledger.Tx) error { return mem.InsertBet(ctx, tx, bet) },
	})
	require.NoError(t, err)

	h.start()
	h.next(t, events.TypeSessionStart)

	r, err := mem.GetRound(h.ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, round.PhaseSettled, r.Phase)
	assert.False(t, r.NeedsReconciliation)
	assert.Equal(t, 3, r.Outcome.Total) // fonte fixa: 1,1,1 -> SMALL

	bal, _ := h.ledger.GetBalance(h.ctx, "bob")
	assert.Equal(t, int64(595), bal)
}

func TestScheduler_StopsOnCancel(t *testing.T) {
	h := newHarness(t, nil, repo.NewMemory())
	h.start()
	h.next(t, events.TypeSessionStart)
	h.cancel()

	select {
	case err := <-h.done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_SettingsApplyFromNextRound(t *testing.T) {
	h := newHarness(t, nil, repo.NewMemory())
	h.start()

	first := h.next(t, events.TypeSessionStart)
	window := 50 * time.Millisecond
	mult := decimal.RequireFromString("2.5")
	st, err := h.sched.UpdateSettings(SettingsUpdate{BettingWindow: &window, PayoutMultiplier: &mult})
	require.NoError(t, err)
	assert.Equal(t, window, st.BettingWindow)

	second := h.next(t, events.TypeSessionStart)

	// a janela nova vale só para a segunda rodada: 5 ticks de 10ms
	countdowns := 0
	timeout := time.After(2 * time.Second)
loop:
	for {
		select {
		case env := <-h.sched.Events():
			if env.Type == events.TypeBettingClosed {
				break loop
			}
			var c events.Countdown
			if env.Type == events.TypeCountdown && json.Unmarshal(env.Payload, &c) == nil && c.Phase == string(StateBetting) {
				countdowns++
			}
		case <-timeout:
			t.Fatal("timeout")
		}
	}
	assert.Equal(t, 5, countdowns)

	r1, err := h.repo.GetRound(h.ctx, first.RoundID)
	require.NoError(t, err)
	assert.True(t, r1.PayoutMultiplier.Equal(decimal.RequireFromString("1.95")))
	r2, err := h.repo.GetRound(h.ctx, second.RoundID)
	require.NoError(t, err)
	assert.True(t, r2.PayoutMultiplier.Equal(mult))
}

func TestScheduler_UpdateSettingsValidation(t *testing.T) {
	h := newHarness(t, nil, repo.NewMemory())
	before := h.sched.Settings()

	tooShort := 5 * time.Millisecond
	one := decimal.NewFromInt(1)
	eleven := decimal.NewFromInt(11)
	for name, u := range map[string]SettingsUpdate{
		"window below tick":   {BettingWindow: &tooShort},
		"multiplier of one":   {PayoutMultiplier: &one},
		"multiplier above 10": {PayoutMultiplier: &eleven},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := h.sched.UpdateSettings(u)
			assert.ErrorIs(t, err, ErrInvalidSettings)
		})
	}
	assert.Equal(t, before, h.sched.Settings())
}

// stateAtPublish guarda como a rodada estava no momento em que a falha foi publicada
type stateAtPublish struct {
	mem  *repo.Memory
	mu   sync.Mutex
	seen []round.Round
}

func (n *stateAtPublish) RoundSettled(context.Context, events.RoundSettled) error { return nil }

func (n *stateAtPublish) SettlementFailed(ctx context.Context, ev events.SettlementFailed) error {
	r, err := n.mem.GetRound(ctx, ev.RoundID)
	if err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seen = append(n.seen, r)
	return nil
}

func (n *stateAtPublish) rounds() []round.Round {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]round.Round(nil), n.seen...)
}

// betFailingSettler reporta uma aposta não liquidada em toda rodada
type betFailingSettler struct{}

func (betFailingSettler) Settle(_ context.Context, rnd round.Round, o round.Outcome, bets []round.Bet) settlement.Report {
	return settlement.Report{
		RoundID:  rnd.ID,
		Outcome:  o,
		Bets:     1,
		Failures: []settlement.Failure{{BetID: "b-stuck", BettorID: "alice", Err: errors.New("wallet down")}},
	}
}

func TestScheduler_FailuresPublishedAfterRoundIsFlagged(t *testing.T) {
	mem := repo.NewMemory()
	h := newHarness(t, nil, mem)
	notifier := &stateAtPublish{mem: mem}
	cfg := h.sched.cfg
	h.sched = New(cfg, mem, h.bets, h.resolver, betFailingSettler{}, nil, notifier, zap.NewNop())
	h.start()

	start := h.next(t, events.TypeSessionStart)
	h.next(t, events.TypeDiceRolled)

	seen := notifier.rounds()
	require.NotEmpty(t, seen)
	assert.Equal(t, start.RoundID, seen[0].ID)
	// o reconciler que consome o evento já encontra a rodada settled e marcada
	assert.Equal(t, round.PhaseSettled, seen[0].Phase)
	assert.True(t, seen[0].NeedsReconciliation)
}
