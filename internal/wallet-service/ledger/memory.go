package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore guarda contas e lançamentos em memória (modo local e testes)
type MemoryStore struct {
	mu       sync.Mutex
	balances map[string]int64
	entries  map[string][]Entry // accountId -> lançamentos em ordem de commit
	refs     map[string]Entry   // accountId + "|" + ref
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances: make(map[string]int64),
		entries:  make(map[string][]Entry),
		refs:     make(map[string]Entry),
	}
}

// Apply não serializa a conta: quem chama (Ledger) já segura o lock dela.
// O mutex global cobre só o acesso aos mapas, nunca o Attach.
func (s *MemoryStore) Apply(ctx context.Context, m Mutation, delta int64) (Entry, error) {
	refKey := m.AccountID + "|" + m.Ref

	s.mu.Lock()
	before, ok := s.balances[m.AccountID]
	prev, dup := s.refs[refKey]
	s.mu.Unlock()

	if !ok {
		return Entry{}, ErrNotFound
	}
	if m.Ref != "" && dup {
		return prev, ErrDuplicateRef
	}

	after, err := NextBalance(before, delta)
	if err != nil {
		return Entry{}, err
	}

	e := Entry{
		ID:            uuid.NewString(),
		AccountID:     m.AccountID,
		Kind:          m.Kind,
		Delta:         delta,
		BalanceBefore: before,
		BalanceAfter:  after,
		Note:          m.Note,
		Ref:           m.Ref,
		CreatedAt:     time.Now().UTC(),
	}

	// sem transação real: o attach roda antes de qualquer escrita, falhou -> nada muda
	if m.Attach != nil {
		if err := m.Attach(ctx, nil); err != nil {
			return Entry{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[m.AccountID] = after
	s.entries[m.AccountID] = append(s.entries[m.AccountID], e)
	if m.Ref != "" {
		s.refs[refKey] = e
	}
	return e, nil
}

func (s *MemoryStore) Balance(_ context.Context, accountID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.balances[accountID]
	if !ok {
		return 0, ErrNotFound
	}
	return b, nil
}

func (s *MemoryStore) Entries(_ context.Context, accountID string, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.balances[accountID]; !ok {
		return nil, ErrNotFound
	}
	all := s.entries[accountID]
	out := make([]Entry, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, all[i])
	}
	return out, nil
}

func (s *MemoryStore) OpenAccount(_ context.Context, accountID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.balances[accountID]
	if !ok {
		s.balances[accountID] = 0
	}
	return b, nil
}
