package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"gridtrader/internal/core"
)

// MemoryLedger implements core.ILedger entirely in memory, for engine and
// console tests that don't need to exercise the SQLite schema itself.
type MemoryLedger struct {
	mu        sync.Mutex
	nextID    int64
	contracts map[int64]*core.Contract
	trades    []*core.Trade
	config    map[string]string
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *MemoryLedger {
	return &MemoryLedger{
		contracts: make(map[int64]*core.Contract),
		config:    make(map[string]string),
	}
}

func (l *MemoryLedger) CreateContract(_ context.Context, c *core.Contract) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	cp := *c
	cp.ID = l.nextID
	cp.Status = core.ContractActive
	l.contracts[cp.ID] = &cp
	return cp.ID, nil
}

func (l *MemoryLedger) ExistsByBuyOrderID(_ context.Context, buyOrderID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.contracts {
		if c.BuyOrderID == buyOrderID {
			return true, nil
		}
	}
	return false, nil
}

func (l *MemoryLedger) ListActive(_ context.Context) ([]*core.Contract, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*core.Contract
	for _, c := range l.contracts {
		if c.Status == core.ContractActive {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (l *MemoryLedger) FindByCurrentOrderID(_ context.Context, orderID string) (*core.Contract, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.contracts {
		if c.CurrentOrderID == orderID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (l *MemoryLedger) FindByID(_ context.Context, id int64) (*core.Contract, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.contracts[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (l *MemoryLedger) UpdateCurrentOrderID(_ context.Context, id int64, newOrderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.contracts[id]; ok {
		c.CurrentOrderID = newOrderID
	}
	return nil
}

func (l *MemoryLedger) CloseContract(_ context.Context, id int64, sellPrice, profit, profitRate decimal.Decimal, finishedAt int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.contracts[id]
	if !ok {
		return nil
	}
	c.Status = core.ContractClosed
	c.CurrentOrderID = ""
	c.SellPrice = sellPrice
	c.Profit = profit
	c.ProfitRate = profitRate
	c.FinishedAt = time.Unix(0, finishedAt)
	return nil
}

func (l *MemoryLedger) AppendTrade(_ context.Context, t *core.Trade) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *t
	l.trades = append(l.trades, &cp)
	return nil
}

func (l *MemoryLedger) SetConfig(_ context.Context, key, value string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.config[key] = value
	return nil
}

func (l *MemoryLedger) GetConfig(_ context.Context, key string) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.config[key]
	return v, ok, nil
}

func (l *MemoryLedger) RecentClosed(_ context.Context, limit int) ([]*core.Contract, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*core.Contract
	for _, c := range l.contracts {
		if c.Status == core.ContractClosed {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FinishedAt.After(out[j].FinishedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Trades exposes the append-only trade log for test assertions.
func (l *MemoryLedger) Trades() []*core.Trade {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*core.Trade, len(l.trades))
	copy(out, l.trades)
	return out
}
