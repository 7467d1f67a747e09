package gridtools

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPriceEqualWithinEpsilon(t *testing.T) {
	a := decimal.NewFromFloat(1420.00005)
	b := decimal.NewFromFloat(1420.0)
	assert.True(t, PriceEqual(a, b))
}

func TestPriceEqualBeyondEpsilon(t *testing.T) {
	a := decimal.NewFromFloat(1420.01)
	b := decimal.NewFromFloat(1420.0)
	assert.False(t, PriceEqual(a, b))
}

func TestContainsPrice(t *testing.T) {
	prices := []decimal.Decimal{decimal.NewFromInt(1400), decimal.NewFromInt(1420)}
	assert.True(t, ContainsPrice(prices, decimal.NewFromInt(1420)))
	assert.False(t, ContainsPrice(prices, decimal.NewFromInt(1440)))
}

func TestSplitMarket(t *testing.T) {
	quote, base, ok := SplitMarket("KRW-USDT")
	assert.True(t, ok)
	assert.Equal(t, "KRW", quote)
	assert.Equal(t, "USDT", base)

	_, _, ok = SplitMarket("malformed")
	assert.False(t, ok)

	_, _, ok = SplitMarket("-USDT")
	assert.False(t, ok)
}
