package ledger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridtrader/internal/core"
)

func openTestLedger(t *testing.T) *SQLiteLedger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gridbot.db")
	l, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestCreateAndListActiveContract(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	id, err := l.CreateContract(ctx, &core.Contract{
		Market:         "KRW-USDT",
		BuyPrice:       decimal.NewFromInt(1420),
		BuyAmount:      decimal.NewFromInt(5),
		TargetPrice:    decimal.NewFromInt(1425),
		BuyOrderID:     "buy-1",
		CurrentOrderID: "sell-1",
	})
	require.NoError(t, err)
	assert.NotZero(t, id)

	active, err := l.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "buy-1", active[0].BuyOrderID)
	assert.True(t, active[0].BuyPrice.Equal(decimal.NewFromInt(1420)))
	assert.Equal(t, core.ContractActive, active[0].Status)
}

func TestExistsByBuyOrderIDGuardsDuplicates(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	exists, err := l.ExistsByBuyOrderID(ctx, "buy-1")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = l.CreateContract(ctx, &core.Contract{
		Market: "KRW-USDT", BuyPrice: decimal.NewFromInt(1420), BuyAmount: decimal.NewFromInt(5),
		TargetPrice: decimal.NewFromInt(1425), BuyOrderID: "buy-1", CurrentOrderID: "sell-1",
	})
	require.NoError(t, err)

	exists, err = l.ExistsByBuyOrderID(ctx, "buy-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCloseContractClearsCurrentOrderID(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	id, err := l.CreateContract(ctx, &core.Contract{
		Market: "KRW-USDT", BuyPrice: decimal.NewFromInt(1420), BuyAmount: decimal.NewFromInt(5),
		TargetPrice: decimal.NewFromInt(1425), BuyOrderID: "buy-1", CurrentOrderID: "sell-1",
	})
	require.NoError(t, err)

	err = l.CloseContract(ctx, id, decimal.NewFromInt(1425), decimal.NewFromInt(25), decimal.NewFromFloat(5.0/1420.0), 1000)
	require.NoError(t, err)

	c, err := l.FindByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, core.ContractClosed, c.Status)
	assert.Equal(t, "", c.CurrentOrderID)
	assert.True(t, c.Profit.Equal(decimal.NewFromInt(25)))

	active, err := l.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestUpdateCurrentOrderIDToEmptyOnPlacementFailure(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	id, err := l.CreateContract(ctx, &core.Contract{
		Market: "KRW-USDT", BuyPrice: decimal.NewFromInt(1420), BuyAmount: decimal.NewFromInt(5),
		TargetPrice: decimal.NewFromInt(1425), BuyOrderID: "buy-1", CurrentOrderID: "buy-1",
	})
	require.NoError(t, err)

	require.NoError(t, l.UpdateCurrentOrderID(ctx, id, ""))

	c, err := l.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "", c.CurrentOrderID)
	assert.False(t, c.HasLiveSellOrder())
}

func TestAppendTradeAndConfigRoundTrip(t *testing.T) {
	l := openTestLedger(t)
	ctx := context.Background()

	id, err := l.CreateContract(ctx, &core.Contract{
		Market: "KRW-USDT", BuyPrice: decimal.NewFromInt(1420), BuyAmount: decimal.NewFromInt(5),
		TargetPrice: decimal.NewFromInt(1425), BuyOrderID: "buy-1", CurrentOrderID: "sell-1",
	})
	require.NoError(t, err)

	require.NoError(t, l.AppendTrade(ctx, &core.Trade{
		ContractID: id, Type: core.TradeBuy, Price: decimal.NewFromInt(1420), Amount: decimal.NewFromInt(5),
	}))

	require.NoError(t, l.SetConfig(ctx, "last_grid_config", `{"market":"KRW-USDT"}`))
	value, found, err := l.GetConfig(ctx, "last_grid_config")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"market":"KRW-USDT"}`, value)

	require.NoError(t, l.SetConfig(ctx, "last_grid_config", `{"market":"USDT-BTC"}`))
	value, _, err = l.GetConfig(ctx, "last_grid_config")
	require.NoError(t, err)
	assert.Equal(t, `{"market":"USDT-BTC"}`, value)

	_, found, err = l.GetConfig(ctx, "missing_key")
	require.NoError(t, err)
	assert.False(t, found)
}
