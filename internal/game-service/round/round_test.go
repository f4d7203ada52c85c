package round

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOutcome(t *testing.T) {
	tests := []struct {
		dice     [3]int
		total    int
		bigSmall Option
		evenOdd  Option
	}{
		{[3]int{4, 3, 4}, 11, OptionBig, OptionOdd},
		{[3]int{2, 2, 2}, 6, OptionSmall, OptionEven},
		{[3]int{6, 6, 6}, 18, OptionBig, OptionEven},
		{[3]int{1, 1, 1}, 3, OptionSmall, OptionOdd},
		{[3]int{5, 4, 1}, 10, OptionSmall, OptionEven},
	}
	for _, tt := range tests {
		o := NewOutcome(tt.dice)
		assert.Equal(t, tt.total, o.Total)
		assert.Equal(t, tt.bigSmall, o.BigSmall)
		assert.Equal(t, tt.evenOdd, o.EvenOdd)
	}
}

func TestOutcome_WinsPerAxis(t *testing.T) {
	o := NewOutcome([3]int{4, 3, 4}) // BIG, ODD
	assert.True(t, o.Wins(OptionBig))
	assert.False(t, o.Wins(OptionSmall))
	assert.True(t, o.Wins(OptionOdd))
	assert.False(t, o.Wins(OptionEven))
}

func TestOption_CounterpartAndAxis(t *testing.T) {
	assert.Equal(t, OptionSmall, OptionBig.Counterpart())
	assert.Equal(t, OptionOdd, OptionEven.Counterpart())
	assert.Equal(t, AxisBigSmall, OptionSmall.Axis())
	assert.Equal(t, AxisEvenOdd, OptionOdd.Axis())

	opt, err := ParseOption(" BIG ")
	require.NoError(t, err)
	assert.Equal(t, OptionBig, opt)

	_, err = ParseOption("tai")
	assert.ErrorIs(t, err, ErrInvalidOption)
}

func TestPayout(t *testing.T) {
	m := decimal.RequireFromString("1.95")
	assert.Equal(t, int64(195), Payout(100, m))
	assert.Equal(t, int64(19500), Payout(10000, m))
	assert.Equal(t, int64(1), Payout(1, m)) // 1.95 -> 1
}

func TestParseMultiplier(t *testing.T) {
	m, err := ParseMultiplier("1.95")
	require.NoError(t, err)
	assert.True(t, m.Equal(decimal.RequireFromString("1.95")))

	_, err = ParseMultiplier("0.9")
	assert.Error(t, err)
	_, err = ParseMultiplier("abc")
	assert.Error(t, err)
}
