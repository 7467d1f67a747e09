package console

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridtrader/internal/alert"
	"gridtrader/internal/core"
	"gridtrader/internal/exchange/fake"
	"gridtrader/internal/gridengine"
	"gridtrader/internal/ledger"
	"gridtrader/pkg/logging"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func testConfig() core.GridConfig {
	return core.GridConfig{
		Market:         "KRW-USDT",
		MinPrice:       d("1400"),
		MaxPrice:       d("1500"),
		GridInterval:   d("20"),
		AmountPerGrid:  d("5"),
		ProfitInterval: d("5"),
	}
}

func newTestConsole(t *testing.T, startPrice decimal.Decimal, tickInterval time.Duration) (*Console, *gridengine.Engine, *fake.Exchange) {
	t.Helper()
	exch := fake.New(startPrice)
	mem := ledger.NewMemory()
	logger := logging.New("ERROR")
	notifier := alert.NewManager(logger)
	eng := gridengine.New(exch, mem, logger, notifier, nil, tickInterval, 0)
	require.NoError(t, eng.Recover(context.Background()))
	return New(eng, notifier, logger), eng, exch
}

func TestStartRejectsInsufficientFunds(t *testing.T) {
	csl, eng, exch := newTestConsole(t, d("1450"), 0)
	exch.SetBalance("KRW", d("1"))

	err := csl.Start(context.Background(), testConfig())
	require.Error(t, err)
	assert.Equal(t, gridengine.StateIdle, eng.State())
}

func TestStartSucceedsWithSufficientFunds(t *testing.T) {
	csl, eng, exch := newTestConsole(t, d("1450"), 0)
	// required ~= ((1400+1500)/2) * 5 * 6 = 43500
	exch.SetBalance("KRW", d("100000"))

	require.NoError(t, csl.Start(context.Background(), testConfig()))
	defer csl.Stop(context.Background())

	assert.Equal(t, gridengine.StateRunning, eng.State())
}

func TestStatusAndReportDelegateToEngine(t *testing.T) {
	csl, _, exch := newTestConsole(t, d("1450"), 0)
	exch.SetBalance("KRW", d("100000"))
	require.NoError(t, csl.Start(context.Background(), testConfig()))
	defer csl.Stop(context.Background())

	snap, err := csl.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Running)
	assert.Equal(t, "KRW-USDT", snap.Market)

	rows, err := csl.Report(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestNotifyReceivesEngineNotifications(t *testing.T) {
	csl, _, exch := newTestConsole(t, d("1450"), 5*time.Millisecond)
	exch.SetBalance("KRW", d("100000"))

	var mu sync.Mutex
	var received []core.Notification
	csl.Notify(func(n core.Notification) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, n)
	})

	require.NoError(t, csl.Start(context.Background(), testConfig()))
	defer csl.Stop(context.Background())

	open, err := exch.OpenOrders(context.Background(), "KRW-USDT")
	require.NoError(t, err)
	require.NotEmpty(t, open)
	exch.Fill(open[0].ID)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, n := range received {
			if n.Kind == core.NotifyBuyFill {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}
