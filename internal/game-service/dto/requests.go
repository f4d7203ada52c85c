package dto

import "github.com/shopspring/decimal"

type PlaceBetRequest struct {
	Option      string `json:"option" validate:"required,oneof=big small even odd"`
	AmountCents int64  `json:"amount_cents" validate:"gt=0"`
}

// OverrideRequest: a faixa 1..6 é validada pelo resolver (override_out_of_range)
type OverrideRequest struct {
	Dice [3]int `json:"dice"`
}

type AdjustBalanceRequest struct {
	AmountCents int64  `json:"amount_cents" validate:"ne=0"` // com sinal
	Note        string `json:"note,omitempty" validate:"max=255"`
}

// UpdateConfigRequest: campos ausentes ficam como estão; o multiplicador é validado no scheduler
type UpdateConfigRequest struct {
	BettingTimeSeconds *int             `json:"bettingTimeSeconds,omitempty" validate:"omitempty,min=10,max=120"`
	PayoutMultiplier   *decimal.Decimal `json:"payoutMultiplier,omitempty"`
}
