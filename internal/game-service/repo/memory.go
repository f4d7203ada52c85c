package repo

import (
	"context"
	"sync"
	"time"

	"github.com/radieske/dice-round-platform/internal/game-service/round"
	"github.com/radieske/dice-round-platform/internal/wallet-service/ledger"
)

// Memory é o Repository em memória (STORE_DRIVER=memory e testes)
type Memory struct {
	mu          sync.Mutex
	rounds      map[string]round.Round
	order       []string // ids em ordem de criação
	resolutions map[string]round.Outcome
	bets        map[string][]round.Bet
	history     map[string]round.History // betId -> histórico
	byBettor    map[string][]string      // bettorId -> betIds em ordem de liquidação
}

func NewMemory() *Memory {
	return &Memory{
		rounds:      make(map[string]round.Round),
		resolutions: make(map[string]round.Outcome),
		bets:        make(map[string][]round.Bet),
		history:     make(map[string]round.History),
		byBettor:    make(map[string][]string),
	}
}

func (m *Memory) CreateRound(_ context.Context, r round.Round) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rounds[r.ID] = r
	m.order = append(m.order, r.ID)
	return nil
}

func (m *Memory) UpdatePhase(_ context.Context, roundID string, phase round.Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rounds[roundID]
	if !ok {
		return round.ErrNotFound
	}
	if r.Phase == round.PhaseSettled {
		return nil
	}
	r.Phase = phase
	m.rounds[roundID] = r
	return nil
}

func (m *Memory) GetRound(_ context.Context, id string) (round.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rounds[id]
	if !ok {
		return round.Round{}, round.ErrNotFound
	}
	return r, nil
}

func (m *Memory) UnsettledRounds(_ context.Context) ([]round.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []round.Round
	for _, id := range m.order {
		r := m.rounds[id]
		if r.Phase != round.PhaseSettled || r.NeedsReconciliation {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) RecentRounds(_ context.Context, limit int) ([]round.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []round.Round
	for i := len(m.order) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		if r := m.rounds[m.order[i]]; r.Phase == round.PhaseSettled {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) SaveResolution(_ context.Context, roundID string, o round.Outcome, _ bool) (round.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rounds[roundID]; !ok {
		return round.Outcome{}, round.ErrNotFound
	}
	if prev, ok := m.resolutions[roundID]; ok {
		return prev, nil
	}
	m.resolutions[roundID] = o
	return o, nil
}

func (m *Memory) Resolution(_ context.Context, roundID string) (*round.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.resolutions[roundID]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (m *Memory) CompleteRound(_ context.Context, roundID string, o *round.Outcome, needs bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rounds[roundID]
	if !ok {
		return round.ErrNotFound
	}
	r.Phase = round.PhaseSettled
	if r.Outcome == nil && o != nil {
		cp := *o
		r.Outcome = &cp
	}
	if r.CompletedAt == nil {
		r.CompletedAt = &at
	}
	r.NeedsReconciliation = needs
	m.rounds[roundID] = r
	return nil
}

func (m *Memory) InsertBet(_ context.Context, _ ledger.Tx, b round.Bet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rounds[b.RoundID]; !ok {
		return round.ErrNotFound
	}
	m.bets[b.RoundID] = append(m.bets[b.RoundID], b)
	return nil
}

func (m *Memory) UnsettledBets(_ context.Context, roundID string) ([]round.Bet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []round.Bet
	for _, b := range m.bets[roundID] {
		if _, done := m.history[b.ID]; !done {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *Memory) InsertHistory(_ context.Context, _ ledger.Tx, h round.History) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.history[h.BetID]; dup {
		return nil
	}
	m.history[h.BetID] = h
	m.byBettor[h.BettorID] = append(m.byBettor[h.BettorID], h.BetID)
	return nil
}

func (m *Memory) HistoryByBettor(_ context.Context, bettorID string, limit int) ([]round.History, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.byBettor[bettorID]
	out := make([]round.History, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, m.history[ids[i]])
	}
	return out, nil
}

func (m *Memory) BettorStats(ctx context.Context, bettorID string) (round.BettorStats, error) {
	hs, err := m.HistoryByBettor(ctx, bettorID, 0)
	if err != nil {
		return round.BettorStats{}, err
	}
	return statsFrom(hs), nil
}

func (m *Memory) TopWinners(_ context.Context, since time.Time, limit int) ([]round.Winner, error) {
	m.mu.Lock()
	var hs []round.History
	for _, h := range m.history {
		if !h.CreatedAt.Before(since) {
			hs = append(hs, h)
		}
	}
	m.mu.Unlock()
	return rankWinners(hs, limit), nil
}
