package ws

import "github.com/radieske/dice-round-platform/internal/game-service/command"

// ClientMsg é uma mensagem recebida do cliente WebSocket
// Type: placeBet | ping
type ClientMsg struct {
	Type        string `json:"type"`
	Option      string `json:"option,omitempty"`       // placeBet
	AmountCents int64  `json:"amount_cents,omitempty"` // placeBet
}

// Reply é a resposta direta a um cliente (não é broadcast)
type Reply struct {
	Type    string               `json:"type"` // betPlaced | error | pong
	Payload *command.BetAccepted `json:"payload,omitempty"`
	Error   string               `json:"error,omitempty"`
}
