package ledger

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridtrader/internal/core"
)

func TestMemoryLedgerCreateAndClose(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	id, err := mem.CreateContract(ctx, &core.Contract{
		Market: "KRW-USDT", BuyPrice: decimal.NewFromInt(1420), BuyAmount: decimal.NewFromInt(5),
		TargetPrice: decimal.NewFromInt(1425), BuyOrderID: "buy-1", CurrentOrderID: "buy-1",
	})
	require.NoError(t, err)

	exists, err := mem.ExistsByBuyOrderID(ctx, "buy-1")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, mem.CloseContract(ctx, id, decimal.NewFromInt(1425), decimal.NewFromInt(25), decimal.NewFromFloat(0.0035), 1))

	active, err := mem.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	closed, err := mem.RecentClosed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.True(t, closed[0].Profit.Equal(decimal.NewFromInt(25)))
}

func TestMemoryLedgerReadsAreIsolatedCopies(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	id, err := mem.CreateContract(ctx, &core.Contract{
		Market: "KRW-USDT", BuyPrice: decimal.NewFromInt(1420), BuyAmount: decimal.NewFromInt(5),
		TargetPrice: decimal.NewFromInt(1425), BuyOrderID: "buy-1", CurrentOrderID: "buy-1",
	})
	require.NoError(t, err)

	c, err := mem.FindByID(ctx, id)
	require.NoError(t, err)
	c.BuyPrice = decimal.NewFromInt(9999)

	c2, err := mem.FindByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, c2.BuyPrice.Equal(decimal.NewFromInt(1420)))
}
