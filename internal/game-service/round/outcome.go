package round

// BigThreshold: soma >= 11 é BIG
const BigThreshold = 11

// Outcome é o resultado de três dados
type Outcome struct {
	Dice     [3]int `json:"dice"`
	Total    int    `json:"total"`
	BigSmall Option `json:"bigSmall"`
	EvenOdd  Option `json:"evenOdd"`
}

// NewOutcome deriva soma e os dois resultados binários a partir dos dados
func NewOutcome(dice [3]int) Outcome {
	total := dice[0] + dice[1] + dice[2]
	o := Outcome{Dice: dice, Total: total, BigSmall: OptionSmall, EvenOdd: OptionOdd}
	if total >= BigThreshold {
		o.BigSmall = OptionBig
	}
	if total%2 == 0 {
		o.EvenOdd = OptionEven
	}
	return o
}

// Wins compara a opção com o resultado do seu eixo
func (o Outcome) Wins(opt Option) bool {
	if opt.Axis() == AxisBigSmall {
		return o.BigSmall == opt
	}
	return o.EvenOdd == opt
}
