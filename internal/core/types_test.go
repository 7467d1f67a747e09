package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridConfigValidate(t *testing.T) {
	valid := GridConfig{
		Market:         "KRW-USDT",
		MinPrice:       decimal.NewFromInt(1400),
		MaxPrice:       decimal.NewFromInt(1500),
		GridInterval:   decimal.NewFromInt(20),
		AmountPerGrid:  decimal.NewFromInt(5),
		ProfitInterval: decimal.NewFromInt(5),
	}
	assert.NoError(t, valid.Validate())

	invalid := valid
	invalid.MaxPrice = decimal.NewFromInt(1300)
	assert.Error(t, invalid.Validate())

	invalid2 := valid
	invalid2.Market = ""
	assert.Error(t, invalid2.Validate())
}

func TestGridLines(t *testing.T) {
	cfg := GridConfig{
		MinPrice:     decimal.NewFromInt(1400),
		MaxPrice:     decimal.NewFromInt(1500),
		GridInterval: decimal.NewFromInt(20),
	}
	lines := cfg.GridLines()
	require.Len(t, lines, 6)
	want := []string{"1400", "1420", "1440", "1460", "1480", "1500"}
	for i, w := range want {
		assert.True(t, lines[i].Equal(decimal.RequireFromString(w)), "line %d: got %s want %s", i, lines[i], w)
	}
}

func TestHasLiveSellOrder(t *testing.T) {
	c := &Contract{Status: ContractActive, CurrentOrderID: "abc"}
	assert.True(t, c.HasLiveSellOrder())

	c.CurrentOrderID = ""
	assert.False(t, c.HasLiveSellOrder())

	c.CurrentOrderID = "abc"
	c.Status = ContractClosed
	assert.False(t, c.HasLiveSellOrder())
}
