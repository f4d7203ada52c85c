package events

import "encoding/json"

// Tipos de mensagem enviados aos observadores (Redis Pub/Sub -> WebSocket)
const (
	TypeSessionStart  = "sessionStart"
	TypeCountdown     = "countdown"
	TypeBettingClosed = "bettingClosed"
	TypeDiceRolled    = "diceRolled"
	TypeBettingStats  = "bettingStats"
)

// Envelope é o formato único trafegado no canal de broadcast
type Envelope struct {
	Type    string          `json:"type"`
	RoundID string          `json:"roundId"`
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope serializa o payload dentro de um Envelope
func NewEnvelope(typ, roundID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: typ, RoundID: roundID, Payload: b}, nil
}

type OptionStats struct {
	Count       int   `json:"count"`
	TotalAmount int64 `json:"totalAmount"`
}

// Stats agrega apostas por opção (big, small, even, odd)
type Stats map[string]OptionStats

type SessionStart struct {
	RoundID     string `json:"roundId"`
	BettingTime int    `json:"bettingTime"`
	TotalTime   int    `json:"totalTime"`
}

type Countdown struct {
	RemainingTime int    `json:"remainingTime"`
	Phase         string `json:"phase"` // betting | revealing
	BettingStats  Stats  `json:"bettingStats,omitempty"`
}

type BettingClosed struct {
	RoundID string `json:"roundId"`
}

type DiceResults struct {
	BigSmall string `json:"bigSmall"`
	EvenOdd  string `json:"evenOdd"`
}

type DiceRolled struct {
	RoundID string      `json:"roundId"`
	Dice    [3]int      `json:"dice"`
	Total   int         `json:"total"`
	Results DiceResults `json:"results"`
}
