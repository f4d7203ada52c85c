package events

// Evento publicado no tópico "bet_placed" após o débito da aposta ser confirmado.
type BetPlaced struct {
	BetID        string `json:"bet_id"`
	RoundID      string `json:"round_id"`
	BettorID     string `json:"bettor_id"`
	Option       string `json:"option"` // big | small | even | odd
	AmountCents  int64  `json:"amount_cents"`
	BalanceAfter int64  `json:"balance_after_cents"`
	TsUnixMs     int64  `json:"ts_unix_ms"`
}
