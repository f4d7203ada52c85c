package betting

import (
	"sync"

	"github.com/radieske/dice-round-platform/internal/game-service/round"
	"github.com/radieske/dice-round-platform/internal/shared/concurrency"
)

// Book acumula as apostas aceitas de uma rodada.
// Cada aposta segura gate (leitura) do início ao fim; Close pega a escrita,
// então toda aposta em andamento termina antes do fechamento.
type Book struct {
	roundID string

	gate sync.RWMutex
	open bool

	bettors *concurrency.LockManager // checagem de conflito + débito atômicos por apostador

	mu       sync.Mutex
	bets     []round.Bet
	byBettor map[string]map[round.Option]struct{}
}

func newBook(roundID string) *Book {
	return &Book{
		roundID:  roundID,
		open:     true,
		bettors:  concurrency.NewLockManager(),
		byBettor: make(map[string]map[round.Option]struct{}),
	}
}

func (b *Book) RoundID() string { return b.roundID }

// conflicts diz se o apostador já tem a opção oposta nesta rodada
func (b *Book) conflicts(bettorID string, opt round.Option) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.byBettor[bettorID][opt.Counterpart()]
	return ok
}

func (b *Book) add(bet round.Bet) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bets = append(b.bets, bet)
	opts, ok := b.byBettor[bet.BettorID]
	if !ok {
		opts = make(map[round.Option]struct{}, 2)
		b.byBettor[bet.BettorID] = opts
	}
	opts[bet.Option] = struct{}{}
}

// Bets retorna uma cópia das apostas em ordem de aceitação
func (b *Book) Bets() []round.Bet {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]round.Bet, len(b.bets))
	copy(out, b.bets)
	return out
}

// Stats agrega por opção: apostadores distintos e soma apostada
func (b *Book) Stats() round.Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := round.EmptyStats()
	seen := make(map[round.Option]map[string]struct{}, len(round.Options))
	for _, bet := range b.bets {
		s := st[bet.Option]
		s.TotalAmount += bet.Amount
		if seen[bet.Option] == nil {
			seen[bet.Option] = make(map[string]struct{})
		}
		if _, dup := seen[bet.Option][bet.BettorID]; !dup {
			seen[bet.Option][bet.BettorID] = struct{}{}
			s.Count++
		}
		st[bet.Option] = s
	}
	return st
}

// close espera apostas em andamento e devolve o conjunto final
func (b *Book) close() []round.Bet {
	b.gate.Lock()
	b.open = false
	b.gate.Unlock()
	return b.Bets()
}
