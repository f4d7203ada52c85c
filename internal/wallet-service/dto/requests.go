package dto

// MovementRequest é usado por depósito e saque (chamados pelo fluxo de pagamentos)
type MovementRequest struct {
	AccountID   string `json:"accountId" validate:"required,max=64"`
	AmountCents int64  `json:"amount_cents" validate:"gt=0"`
	ExternalRef string `json:"external_ref,omitempty" validate:"max=128"` // opcional p/ idempotência
	Note        string `json:"note,omitempty" validate:"max=255"`
}
