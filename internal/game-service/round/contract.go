package round

import "github.com/radieske/dice-round-platform/pkg/contracts/events"

// Event converte as estatísticas para o formato do broadcast
func (s Stats) Event() events.Stats {
	out := make(events.Stats, len(s))
	for opt, st := range s {
		out[string(opt)] = events.OptionStats{Count: st.Count, TotalAmount: st.TotalAmount}
	}
	return out
}

// DiceRolled monta o evento de resultado da rodada
func (o Outcome) DiceRolled(roundID string) events.DiceRolled {
	return events.DiceRolled{
		RoundID: roundID,
		Dice:    o.Dice,
		Total:   o.Total,
		Results: events.DiceResults{BigSmall: string(o.BigSmall), EvenOdd: string(o.EvenOdd)},
	}
}
