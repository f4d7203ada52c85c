package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/dice-round-platform/internal/shared/concurrency"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotFound          = errors.New("account not found")
	ErrDuplicateRef      = errors.New("ledger ref already applied")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidKind       = errors.New("invalid ledger entry kind")
)

// Kind identifica a origem de um lançamento
type Kind string

const (
	KindDebitBet    Kind = "debit_bet"
	KindCreditWin   Kind = "credit_win"
	KindDeposit     Kind = "deposit"
	KindWithdraw    Kind = "withdraw"
	KindAdminAdjust Kind = "admin_adjust"
)

// Delta converte o valor informado no delta com sinal do lançamento.
// admin_adjust já chega com sinal; os demais tipos exigem amount > 0.
func (k Kind) Delta(amount int64) (int64, error) {
	switch k {
	case KindDeposit, KindCreditWin:
		if amount <= 0 {
			return 0, ErrInvalidAmount
		}
		return amount, nil
	case KindWithdraw, KindDebitBet:
		if amount <= 0 {
			return 0, ErrInvalidAmount
		}
		return -amount, nil
	case KindAdminAdjust:
		if amount == 0 {
			return 0, ErrInvalidAmount
		}
		return amount, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidKind, k)
	}
}

// NextBalance aplica o delta ao saldo. Crédito que estoura int64 é valor inválido;
// saldo negativo é saldo insuficiente.
func NextBalance(before, delta int64) (int64, error) {
	if delta > 0 && before > math.MaxInt64-delta {
		return 0, ErrInvalidAmount
	}
	after := before + delta
	if after < 0 {
		return 0, ErrInsufficientFunds
	}
	return after, nil
}

// Entry é um lançamento imutável do ledger
// BalanceAfter = BalanceBefore + Delta
type Entry struct {
	ID            string    `json:"id"`
	AccountID     string    `json:"accountId"`
	Kind          Kind      `json:"kind"`
	Delta         int64     `json:"delta_cents"`
	BalanceBefore int64     `json:"balance_before_cents"`
	BalanceAfter  int64     `json:"balance_after_cents"`
	Note          string    `json:"note,omitempty"`
	Ref           string    `json:"ref,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Tx é a transação do lançamento em curso; o que for escrito nela confirma junto com ele
type Tx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Mutation descreve uma chamada a ApplyDelta
type Mutation struct {
	AccountID string
	Amount    int64
	Kind      Kind
	Note      string

	// Ref opcional; (AccountID, Ref) é único, reaplicar devolve ErrDuplicateRef
	Ref string

	// Attach roda dentro da mesma transação, depois do lançamento e antes do commit.
	// Se retornar erro, nada é persistido.
	Attach func(ctx context.Context, tx Tx) error
}

// Store persiste contas e lançamentos
// Apply deve gravar saldo e lançamento atomicamente (nunca um sem o outro)
type Store interface {
	Apply(ctx context.Context, m Mutation, delta int64) (Entry, error)
	Balance(ctx context.Context, accountID string) (int64, error)
	Entries(ctx context.Context, accountID string, limit int) ([]Entry, error)
	OpenAccount(ctx context.Context, accountID string) (int64, error)
}

// Ledger é o único ponto de mutação de saldo.
// Serializa mutações da mesma conta e nunca bloqueia contas diferentes.
type Ledger struct {
	store Store
	locks *concurrency.LockManager
	log   *zap.Logger

	OnApplied  func(kind Kind)    // métricas (counter++)
	OnRejected func(reason string) // métricas por motivo
}

func New(store Store, log *zap.Logger) *Ledger {
	return &Ledger{store: store, locks: concurrency.NewLockManager(), log: log}
}

// ApplyDelta aplica o lançamento e retorna a entrada criada (BalanceAfter = novo saldo)
func (l *Ledger) ApplyDelta(ctx context.Context, m Mutation) (Entry, error) {
	delta, err := m.Kind.Delta(m.Amount)
	if err != nil {
		l.rejected("invalid")
		return Entry{}, err
	}
	if m.AccountID == "" {
		l.rejected("not_found")
		return Entry{}, ErrNotFound
	}

	var e Entry
	err = l.locks.With(m.AccountID, func() error {
		var aerr error
		e, aerr = l.store.Apply(ctx, m, delta)
		return aerr
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrInsufficientFunds):
		l.rejected("insufficient_funds")
		return Entry{}, err
	case errors.Is(err, ErrInvalidAmount):
		l.rejected("invalid")
		return Entry{}, err
	case errors.Is(err, ErrNotFound):
		l.rejected("not_found")
		return Entry{}, err
	case errors.Is(err, ErrDuplicateRef):
		l.rejected("duplicate_ref")
		return e, err
	default:
		l.log.Error("ledger apply failed",
			zap.String("accountId", m.AccountID),
			zap.String("kind", string(m.Kind)),
			zap.Error(err))
		return Entry{}, fmt.Errorf("apply %s: %w", m.Kind, err)
	}

	if l.OnApplied != nil {
		l.OnApplied(m.Kind)
	}
	l.log.Debug("ledger entry applied",
		zap.String("accountId", e.AccountID),
		zap.String("kind", string(e.Kind)),
		zap.Int64("delta", e.Delta),
		zap.Int64("balanceAfter", e.BalanceAfter))
	return e, nil
}

// GetBalance é uma leitura pontual, consistente até o último lançamento confirmado
func (l *Ledger) GetBalance(ctx context.Context, accountID string) (int64, error) {
	return l.store.Balance(ctx, accountID)
}

// Entries retorna os lançamentos mais recentes primeiro; limit <= 0 retorna todos
func (l *Ledger) Entries(ctx context.Context, accountID string, limit int) ([]Entry, error) {
	return l.store.Entries(ctx, accountID, limit)
}

// OpenAccount retorna o saldo da conta, criando-a com saldo zero se não existir
func (l *Ledger) OpenAccount(ctx context.Context, accountID string) (int64, error) {
	if accountID == "" {
		return 0, ErrNotFound
	}
	return l.store.OpenAccount(ctx, accountID)
}

func (l *Ledger) rejected(reason string) {
	if l.OnRejected != nil {
		l.OnRejected(reason)
	}
}
