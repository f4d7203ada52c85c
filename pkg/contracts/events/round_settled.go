package events

import "time"

// Evento emitido pelo scheduler após a liquidação de uma rodada ser persistida.
type RoundSettled struct {
	RoundID      string    `json:"roundId"`
	Dice         [3]int    `json:"dice"`
	Total        int       `json:"total"`
	BigSmall     string    `json:"bigSmall"`
	EvenOdd      string    `json:"evenOdd"`
	Bets         int       `json:"bets"`
	Winners      int       `json:"winners"`
	Failed       int       `json:"failed"`
	PaidOutCents int64     `json:"paidOutCents"`
	Ts           time.Time `json:"ts"`
}

// SettlementFailed vai para a DLQ; o reconciler reprocessa a rodada inteira.
// BetID vazio indica falha geral da rodada (resolução ou liquidação).
type SettlementFailed struct {
	RoundID  string    `json:"roundId"`
	BetID    string    `json:"betId,omitempty"`
	BettorID string    `json:"bettorId,omitempty"`
	Reason   string    `json:"reason"`
	Attempt  int       `json:"attempt"`
	Ts       time.Time `json:"ts"`
}
