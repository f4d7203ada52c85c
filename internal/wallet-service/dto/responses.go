package dto

import "github.com/radieske/dice-round-platform/internal/wallet-service/ledger"

type WalletResponse struct {
	AccountID    string `json:"accountId"`
	BalanceCents int64  `json:"balance_cents"`
}

type TransactionsResponse struct {
	AccountID    string         `json:"accountId"`
	Transactions []ledger.Entry `json:"transactions"`
}
