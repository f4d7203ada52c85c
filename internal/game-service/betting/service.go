package betting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/dice-round-platform/internal/game-service/round"
	"github.com/radieske/dice-round-platform/internal/wallet-service/ledger"
)

type Bet = round.Bet

// Wallet é o ledger de saldo
type Wallet interface {
	ApplyDelta(ctx context.Context, m ledger.Mutation) (ledger.Entry, error)
}

// Store grava a aposta na mesma transação do débito
type Store interface {
	InsertBet(ctx context.Context, tx ledger.Tx, b round.Bet) error
}

// Placed é o resultado de uma aposta aceita
type Placed struct {
	Bet          round.Bet
	BalanceAfter int64
}

// Service aceita apostas contra a rodada corrente
type Service struct {
	arena  *Arena
	wallet Wallet
	store  Store
	log    *zap.Logger
	now    func() time.Time

	OnPlaced   func(opt round.Option)
	OnRejected func(reason string)
}

func NewService(arena *Arena, wallet Wallet, store Store, log *zap.Logger) *Service {
	return &Service{arena: arena, wallet: wallet, store: store, log: log, now: time.Now}
}

// PlaceBet valida fase e conflito, debita a carteira e registra a aposta.
// Débito e aposta são atômicos: ou ambos persistem ou nenhum.
func (s *Service) PlaceBet(ctx context.Context, bettorID string, opt round.Option, amount int64) (Placed, error) {
	if !opt.Valid() {
		s.rejected("invalid_option")
		return Placed{}, round.ErrInvalidOption
	}
	if amount <= 0 {
		s.rejected("invalid_amount")
		return Placed{}, round.ErrInvalidAmount
	}

	book, ok := s.arena.Current()
	if !ok {
		s.rejected("phase")
		return Placed{}, round.ErrInvalidPhase
	}

	book.gate.RLock()
	defer book.gate.RUnlock()
	if !book.open {
		s.rejected("phase")
		return Placed{}, round.ErrInvalidPhase
	}

	var placed Placed
	err := book.bettors.With(bettorID, func() error {
		if book.conflicts(bettorID, opt) {
			return round.ErrConflictingOption
		}

		bet := round.Bet{
			ID:        uuid.NewString(),
			RoundID:   book.roundID,
			BettorID:  bettorID,
			Option:    opt,
			Amount:    amount,
			CreatedAt: s.now().UTC(),
		}
		e, err := s.wallet.ApplyDelta(ctx, ledger.Mutation{
			AccountID: bettorID,
			Amount:    amount,
			Kind:      ledger.KindDebitBet,
			Note:      fmt.Sprintf("bet %s on %s", bet.Option, bet.RoundID),
			Ref:       "bet:" + bet.ID,
			Attach: func(ctx context.Context, tx ledger.Tx) error {
				return s.store.InsertBet(ctx, tx, bet)
			},
		})
		if err != nil {
			return err
		}

		book.add(bet)
		placed = Placed{Bet: bet, BalanceAfter: e.BalanceAfter}
		return nil
	})
	if err != nil {
		s.rejected(rejectReason(err))
		return Placed{}, err
	}

	if s.OnPlaced != nil {
		s.OnPlaced(opt)
	}
	s.log.Info("bet placed",
		zap.String("betId", placed.Bet.ID),
		zap.String("roundId", placed.Bet.RoundID),
		zap.String("bettorId", bettorID),
		zap.String("option", string(opt)),
		zap.Int64("amount", amount))
	return placed, nil
}

// Stats agrega as apostas da rodada corrente; sem rodada aberta devolve zeros
func (s *Service) Stats() round.Stats {
	book, ok := s.arena.Current()
	if !ok {
		return round.EmptyStats()
	}
	return book.Stats()
}

func (s *Service) Open(roundID string) { s.arena.Open(roundID) }

// Close fecha a rodada para apostas e devolve o conjunto final, já com as apostas em andamento
func (s *Service) Close(roundID string) []round.Bet { return s.arena.Close(roundID) }

func (s *Service) Retire(roundID string) { s.arena.Retire(roundID) }

func (s *Service) rejected(reason string) {
	if s.OnRejected != nil {
		s.OnRejected(reason)
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, round.ErrConflictingOption):
		return "conflict"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ledger.ErrNotFound):
		return "unknown_bettor"
	default:
		return "error"
	}
}
