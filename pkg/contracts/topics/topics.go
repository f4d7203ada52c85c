package topics

const (
	// Apostas
	BetPlaced = "bet_placed"

	// Rodadas
	RoundSettled = "round_settled"

	// DLQs (fila de reconciliação manual)
	SettlementFailedDLQ = "settlement_failed_dlq"
)
