package dto

import (
	"github.com/shopspring/decimal"

	"github.com/radieske/dice-round-platform/internal/game-service/round"
	"github.com/radieske/dice-round-platform/internal/game-service/scheduler"
)

type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

type CurrentRoundResponse struct {
	scheduler.Snapshot
	BettingStats round.Stats `json:"bettingStats"`
}

type BalanceResponse struct {
	AccountID    string `json:"accountId"`
	BalanceCents int64  `json:"balance_cents"`
}

type ReplayResponse struct {
	RoundID      string `json:"roundId"`
	Bets         int    `json:"bets"`
	Winners      int    `json:"winners"`
	Skipped      int    `json:"skipped"`
	Failed       int    `json:"failed"`
	PaidOutCents int64  `json:"paidOutCents"`
}

type HistoryResponse struct {
	BettorID string          `json:"bettorId"`
	Items    []round.History `json:"items"`
}

// ConfigResponse são os parâmetros que a próxima rodada vai usar
type ConfigResponse struct {
	BettingTimeSeconds int             `json:"bettingTimeSeconds"`
	PayoutMultiplier   decimal.Decimal `json:"payoutMultiplier"`
}
