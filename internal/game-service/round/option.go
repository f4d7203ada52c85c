package round

import "strings"

// Option é uma das quatro apostas possíveis
type Option string

const (
	OptionBig   Option = "big"
	OptionSmall Option = "small"
	OptionEven  Option = "even"
	OptionOdd   Option = "odd"
)

var Options = []Option{OptionBig, OptionSmall, OptionEven, OptionOdd}

// Axis agrupa opções mutuamente exclusivas
type Axis string

const (
	AxisBigSmall Axis = "big_small"
	AxisEvenOdd  Axis = "even_odd"
)

func ParseOption(s string) (Option, error) {
	o := Option(strings.ToLower(strings.TrimSpace(s)))
	if !o.Valid() {
		return "", ErrInvalidOption
	}
	return o, nil
}

func (o Option) Valid() bool {
	switch o {
	case OptionBig, OptionSmall, OptionEven, OptionOdd:
		return true
	}
	return false
}

func (o Option) Axis() Axis {
	if o == OptionBig || o == OptionSmall {
		return AxisBigSmall
	}
	return AxisEvenOdd
}

// Counterpart retorna a opção oposta no mesmo eixo
func (o Option) Counterpart() Option {
	switch o {
	case OptionBig:
		return OptionSmall
	case OptionSmall:
		return OptionBig
	case OptionEven:
		return OptionOdd
	case OptionOdd:
		return OptionEven
	}
	return ""
}
