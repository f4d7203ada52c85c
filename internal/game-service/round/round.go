package round

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidPhase      = errors.New("betting is closed for this round")
	ErrConflictingOption = errors.New("cannot bet on opposite options in the same round")
	ErrInvalidOption     = errors.New("invalid bet option")
	ErrInvalidAmount     = errors.New("bet amount must be positive")
	ErrNotFound          = errors.New("round not found")
)

// Phase é a fase persistida da rodada: betting -> rolling -> settled
type Phase string

const (
	PhaseBetting Phase = "betting"
	PhaseRolling Phase = "rolling"
	PhaseSettled Phase = "settled"
)

// Round é um ciclo de apostas. O resultado é gravado uma única vez, na transição para settled.
type Round struct {
	ID                   string          `json:"id"`
	Phase                Phase           `json:"phase"`
	Outcome              *Outcome        `json:"outcome,omitempty"`
	BettingWindowSeconds int             `json:"bettingWindowSeconds"`
	PayoutMultiplier     decimal.Decimal `json:"payoutMultiplier"`
	NeedsReconciliation  bool            `json:"needsReconciliation,omitempty"`
	CreatedAt            time.Time       `json:"createdAt"`
	CompletedAt          *time.Time      `json:"completedAt,omitempty"`
}

// Bet é criada na aceitação e nunca alterada
type Bet struct {
	ID        string    `json:"id"`
	RoundID   string    `json:"roundId"`
	BettorID  string    `json:"bettorId"`
	Option    Option    `json:"option"`
	Amount    int64     `json:"amount_cents"`
	CreatedAt time.Time `json:"createdAt"`
}

// History é o registro imutável da liquidação de uma aposta (ganha ou perdida)
type History struct {
	BetID     string    `json:"betId"`
	RoundID   string    `json:"roundId"`
	BettorID  string    `json:"bettorId"`
	Outcome   Outcome   `json:"outcome"`
	Option    Option    `json:"option"`
	Amount    int64     `json:"amount_cents"`
	WinAmount int64     `json:"win_amount_cents"`
	IsWin     bool      `json:"isWin"`
	CreatedAt time.Time `json:"createdAt"`
}

// BettorStats resume o histórico de um apostador
type BettorStats struct {
	TotalGames int   `json:"totalGames"`
	Wins       int   `json:"wins"`
	Losses     int   `json:"losses"`
	TotalBet   int64 `json:"totalBet_cents"`
	TotalWin   int64 `json:"totalWin_cents"`
	NetProfit  int64 `json:"netProfit_cents"`
}

// Winner é uma linha do ranking por lucro líquido (win - aposta) num período
type Winner struct {
	BettorID   string `json:"bettorId"`
	TotalGames int    `json:"totalGames"`
	Wins       int    `json:"wins"`
	NetProfit  int64  `json:"netProfit_cents"`
	BiggestWin int64  `json:"biggestWin_cents"`
}

type OptionStats struct {
	Count       int   `json:"count"` // apostadores distintos
	TotalAmount int64 `json:"totalAmount"`
}

// Stats agrega as apostas da rodada por opção; informativo, a liquidação não usa
type Stats map[Option]OptionStats

func EmptyStats() Stats {
	s := make(Stats, len(Options))
	for _, o := range Options {
		s[o] = OptionStats{}
	}
	return s
}

// Payout calcula o prêmio (amount × multiplicador), truncado para baixo em centavos
func Payout(amount int64, multiplier decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(multiplier).Floor().IntPart()
}

// ParseMultiplier valida o multiplicador configurado (> 1)
func ParseMultiplier(s string) (decimal.Decimal, error) {
	m, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("payout multiplier: %w", err)
	}
	if !m.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Decimal{}, fmt.Errorf("payout multiplier must be > 1, got %s", s)
	}
	return m, nil
}
