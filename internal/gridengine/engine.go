// Package gridengine is the stateful core: it owns the active grid
// configuration, the in-memory pending-buy set, and the monitor loop that
// detects fills and keeps the grid's orders in sync with the ledger.
package gridengine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"gridtrader/internal/core"
	"gridtrader/internal/gridtools"
	"gridtrader/pkg/concurrency"
)

const lastGridConfigKey = "last_grid_config"

// State is the engine's lifecycle state.
type State string

const (
	StateIdle     State = "IDLE"
	StateStarting State = "STARTING"
	StateRunning  State = "RUNNING"
	StateStopping State = "STOPPING"
)

// Engine is the grid trading core. Exactly one Engine runs per process.
type Engine struct {
	exchange core.IExchange
	ledger   core.ILedger
	logger   core.ILogger
	notifier core.INotifier
	pool     *concurrency.WorkerPool

	tickInterval        time.Duration
	reconcileEveryTicks int64

	mu            sync.Mutex
	state         State
	recovered     bool
	config        core.GridConfig
	pendingBuys   map[string]decimal.Decimal
	cancelMonitor context.CancelFunc
	tickCount     int64

	wg sync.WaitGroup
}

// New constructs an Engine. tickInterval and reconcileEveryTicks default
// to 2s/30 ticks (~60s) when zero.
func New(exchange core.IExchange, led core.ILedger, logger core.ILogger, notifier core.INotifier, pool *concurrency.WorkerPool, tickInterval time.Duration, reconcileEveryTicks int64) *Engine {
	if tickInterval <= 0 {
		tickInterval = 2 * time.Second
	}
	if reconcileEveryTicks <= 0 {
		reconcileEveryTicks = 30
	}
	return &Engine{
		exchange:            exchange,
		ledger:              led,
		logger:              logger.WithField("component", "gridengine"),
		notifier:            notifier,
		pool:                pool,
		tickInterval:        tickInterval,
		reconcileEveryTicks: reconcileEveryTicks,
		state:               StateIdle,
		pendingBuys:         make(map[string]decimal.Decimal),
	}
}

// State reports the engine's current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// FreeBalance passes through to the underlying exchange, used by the
// operator console's pre-start funds check.
func (e *Engine) FreeBalance(ctx context.Context, currency string) (decimal.Decimal, error) {
	return e.exchange.FreeBalance(ctx, currency)
}

// Recover runs once before Start is accepted: it resolves any contract
// whose sell order already settled while the process was down, and
// restores the pending-buy set from the exchange's open-order book and
// the last persisted grid configuration.
func (e *Engine) Recover(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	// The pending-buy set is rebuilt entirely from the ledger and the
	// exchange's open-order book below, so recovery converges on the same
	// result regardless of whatever was left in memory before this call.
	e.pendingBuys = make(map[string]decimal.Decimal)

	active, err := e.ledger.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("recover: list active contracts: %w", err)
	}

	for _, c := range active {
		if c.CurrentOrderID == "" {
			continue
		}
		status, err := e.exchange.OrderStatus(ctx, c.CurrentOrderID)
		if err != nil {
			e.logger.Warn("recover: order status query failed", "contract", c.ID, "order", c.CurrentOrderID, "error", err)
			continue
		}
		switch status.State {
		case core.OrderWait:
		case core.OrderDone:
			e.handleSellFillLocked(ctx, c, status.Price)
		case core.OrderCancel:
			e.replaceSellLocked(ctx, c)
		}
	}

	raw, found, err := e.ledger.GetConfig(ctx, lastGridConfigKey)
	if err != nil {
		return fmt.Errorf("recover: read last_grid_config: %w", err)
	}
	if found {
		var cfg core.GridConfig
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			return fmt.Errorf("recover: parse last_grid_config: %w", err)
		}
		e.config = cfg

		openOrders, err := e.exchange.OpenOrders(ctx, cfg.Market)
		if err != nil {
			e.logger.Warn("recover: open orders query failed", "error", err)
		} else {
			for _, o := range openOrders {
				if o.Side != core.SideBid {
					continue
				}
				if ownedByContract(active, o.ID) {
					continue
				}
				e.pendingBuys[o.ID] = o.Price
			}
		}
	}

	e.recovered = true
	return nil
}

func ownedByContract(active []*core.Contract, orderID string) bool {
	for _, c := range active {
		if c.BuyOrderID == orderID {
			return true
		}
	}
	return false
}

// Start validates cfg, cancels any stale monitor from a previous Start,
// places the initial grid orders, and launches the monitor loop.
func (e *Engine) Start(ctx context.Context, cfg core.GridConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	if !e.recovered {
		e.mu.Unlock()
		return fmt.Errorf("gridengine: recover must run before start")
	}
	if e.state != StateIdle {
		e.mu.Unlock()
		return fmt.Errorf("gridengine: cannot start from state %s", e.state)
	}
	e.state = StateStarting
	stale := e.cancelMonitor
	e.cancelMonitor = nil
	e.mu.Unlock()

	if stale != nil {
		stale()
		e.wg.Wait()
	}

	e.mu.Lock()
	e.pendingBuys = make(map[string]decimal.Decimal)
	e.config = cfg
	e.mu.Unlock()

	if raw, err := json.Marshal(cfg); err != nil {
		e.logger.Error("marshal last_grid_config failed", "error", err)
	} else if err := e.ledger.SetConfig(ctx, lastGridConfigKey, string(raw)); err != nil {
		e.logger.Error("persist last_grid_config failed", "error", err)
	}

	if err := e.placeInitialOrders(ctx, cfg); err != nil {
		e.mu.Lock()
		e.state = StateIdle
		e.mu.Unlock()
		return fmt.Errorf("initial order placement: %w", err)
	}

	monitorCtx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.cancelMonitor = cancel
	e.state = StateRunning
	e.mu.Unlock()

	e.wg.Add(1)
	go e.runMonitor(monitorCtx)

	return nil
}

// Stop requests cancellation of the monitor and returns immediately; the
// monitor drains its in-flight tick before exiting.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.state != StateRunning {
		e.mu.Unlock()
		return
	}
	e.state = StateStopping
	cancel := e.cancelMonitor
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	go func() {
		e.wg.Wait()
		e.mu.Lock()
		e.state = StateIdle
		e.mu.Unlock()
	}()
}

// placeInitialOrders computes the grid lines at or below the current
// price and places a buy at every one not already taken by an active
// contract or an existing open bid.
func (e *Engine) placeInitialOrders(ctx context.Context, cfg core.GridConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	price, err := e.exchange.CurrentPrice(ctx, cfg.Market)
	if err != nil {
		return fmt.Errorf("current price: %w", err)
	}

	active, err := e.ledger.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active contracts: %w", err)
	}

	var taken []decimal.Decimal
	for _, c := range active {
		taken = append(taken, c.BuyPrice)
	}

	openOrders, err := e.exchange.OpenOrders(ctx, cfg.Market)
	if err != nil {
		return fmt.Errorf("open orders: %w", err)
	}
	for _, o := range openOrders {
		if o.Side == core.SideBid {
			taken = append(taken, o.Price)
		}
	}

	for _, g := range cfg.GridLines() {
		if g.GreaterThan(price) {
			continue
		}
		if gridtools.ContainsPrice(taken, g) {
			continue
		}
		orderID, err := e.exchange.PlaceBuy(ctx, cfg.Market, g, cfg.AmountPerGrid)
		if err != nil {
			e.logger.Warn("initial buy placement failed", "price", g, "error", err)
			continue
		}
		e.pendingBuys[orderID] = g
	}

	return nil
}

func (e *Engine) runMonitor(ctx context.Context) {
	defer e.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := e.tick(ctx); err != nil {
			e.logger.Error("monitor tick failed", "error", err)
			if !e.sleepCtx(ctx, 5*time.Second) {
				return
			}
			continue
		}

		if !e.sleepCtx(ctx, e.tickInterval) {
			return
		}
	}
}

func (e *Engine) sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (e *Engine) tick(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.sellFillSweep(ctx); err != nil {
		return fmt.Errorf("sell-fill sweep: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.buyFillSweep(ctx); err != nil {
		return fmt.Errorf("buy-fill sweep: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.emptyGridRefill(ctx); err != nil {
		return fmt.Errorf("empty-grid refill: %w", err)
	}

	e.mu.Lock()
	e.tickCount++
	due := e.tickCount%e.reconcileEveryTicks == 0
	e.mu.Unlock()

	if due {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.selfHealReconcile(ctx); err != nil {
			return fmt.Errorf("self-healing reconciliation: %w", err)
		}
	}

	return nil
}

// sellFillSweep is phase A of the monitor tick.
func (e *Engine) sellFillSweep(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	active, err := e.ledger.ListActive(ctx)
	if err != nil {
		return err
	}

	for _, c := range active {
		if c.CurrentOrderID == "" {
			// A prior sell placement failed; retry instead of querying a
			// status for an order that was never placed.
			e.replaceSellLocked(ctx, c)
			continue
		}

		status, err := e.exchange.OrderStatus(ctx, c.CurrentOrderID)
		if err != nil {
			e.logger.Warn("sell order status query failed", "contract", c.ID, "error", err)
			continue
		}

		switch status.State {
		case core.OrderDone:
			e.handleSellFillLocked(ctx, c, status.Price)
		case core.OrderCancel:
			e.replaceSellLocked(ctx, c)
		case core.OrderWait:
		}
	}

	return nil
}

func (e *Engine) replaceSellLocked(ctx context.Context, c *core.Contract) {
	sellID, err := e.exchange.PlaceSell(ctx, c.Market, c.TargetPrice, c.BuyAmount)
	if err != nil {
		e.logger.Warn("sell replacement failed", "contract", c.ID, "error", err)
		if updErr := e.ledger.UpdateCurrentOrderID(ctx, c.ID, ""); updErr != nil {
			e.logger.Error("clear current_order_id failed", "contract", c.ID, "error", updErr)
		}
		return
	}
	if err := e.ledger.UpdateCurrentOrderID(ctx, c.ID, sellID); err != nil {
		e.logger.Error("update current_order_id failed", "contract", c.ID, "error", err)
	}
}

// handleSellFillLocked closes a contract on its sell fill, records the
// trade, and re-enters the vacated grid line with a fresh buy. Caller
// must hold e.mu.
func (e *Engine) handleSellFillLocked(ctx context.Context, c *core.Contract, sellPrice decimal.Decimal) {
	profit := sellPrice.Sub(c.BuyPrice).Mul(c.BuyAmount)
	profitRate := sellPrice.Sub(c.BuyPrice).Div(c.BuyPrice)
	finishedAt := time.Now()

	if err := e.ledger.CloseContract(ctx, c.ID, sellPrice, profit, profitRate, finishedAt.UnixNano()); err != nil {
		e.logger.Error("close contract failed", "contract", c.ID, "error", err)
		return
	}
	if err := e.ledger.AppendTrade(ctx, &core.Trade{
		ContractID: c.ID,
		Type:       core.TradeSell,
		Price:      sellPrice,
		Amount:     c.BuyAmount,
		Profit:     profit,
		ExecutedAt: finishedAt,
	}); err != nil {
		e.logger.Error("append sell trade failed", "contract", c.ID, "error", err)
	}

	e.notify(ctx, core.NotifySellFill, fmt.Sprintf("contract %d closed: sell %s profit %s", c.ID, sellPrice, profit), map[string]string{
		"contract_id": fmt.Sprintf("%d", c.ID),
		"sell_price":  sellPrice.String(),
		"profit":      profit.String(),
	})

	newBuyID, err := e.exchange.PlaceBuy(ctx, c.Market, c.BuyPrice, c.BuyAmount)
	if err != nil {
		e.logger.Warn("re-entry buy placement failed", "contract", c.ID, "error", err)
		return
	}
	e.pendingBuys[newBuyID] = c.BuyPrice
}

// buyFillSweep is phase B of the monitor tick: a fanned-out probe of
// every pending buy plus a recent-fills scan as a latency hedge.
func (e *Engine) buyFillSweep(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	type probeResult struct {
		orderID string
		status  *core.OrderStatus
		err     error
	}

	orderIDs := make([]string, 0, len(e.pendingBuys))
	for orderID := range e.pendingBuys {
		orderIDs = append(orderIDs, orderID)
	}

	if e.pool != nil && len(orderIDs) > 0 {
		results := make(chan probeResult, len(orderIDs))
		var wg sync.WaitGroup
		for _, orderID := range orderIDs {
			orderID := orderID
			wg.Add(1)
			e.pool.Submit(func() {
				defer wg.Done()
				status, err := e.exchange.OrderStatus(ctx, orderID)
				results <- probeResult{orderID: orderID, status: status, err: err}
			})
		}
		go func() {
			wg.Wait()
			close(results)
		}()
		for r := range results {
			if r.err != nil {
				e.logger.Warn("buy order status query failed", "order", r.orderID, "error", r.err)
				continue
			}
			if r.status.State == core.OrderDone {
				e.handleBuyFillLocked(ctx, r.orderID, r.status.Price, r.status.ExecutedVolume)
			}
		}
	} else {
		for _, orderID := range orderIDs {
			status, err := e.exchange.OrderStatus(ctx, orderID)
			if err != nil {
				e.logger.Warn("buy order status query failed", "order", orderID, "error", err)
				continue
			}
			if status.State == core.OrderDone {
				e.handleBuyFillLocked(ctx, orderID, status.Price, status.ExecutedVolume)
			}
		}
	}

	market := e.config.Market
	if market == "" {
		return nil
	}
	completed, err := e.exchange.CompletedOrders(ctx, market, 20)
	if err != nil {
		e.logger.Warn("completed orders query failed", "error", err)
		return nil
	}
	for _, o := range completed {
		if o.Side != core.SideBid || o.State != core.OrderDone {
			continue
		}
		if _, pending := e.pendingBuys[o.ID]; !pending {
			continue
		}
		exists, err := e.ledger.ExistsByBuyOrderID(ctx, o.ID)
		if err != nil {
			e.logger.Warn("duplicate-buy check failed", "order", o.ID, "error", err)
			continue
		}
		if exists {
			delete(e.pendingBuys, o.ID)
			continue
		}
		e.handleBuyFillLocked(ctx, o.ID, o.Price, o.Volume)
	}

	return nil
}

// handleBuyFillLocked opens a contract for a filled buy order, guarding
// against a duplicate insert if the fill was already recorded. Caller
// must hold e.mu.
func (e *Engine) handleBuyFillLocked(ctx context.Context, orderID string, price, volume decimal.Decimal) {
	exists, err := e.ledger.ExistsByBuyOrderID(ctx, orderID)
	if err != nil {
		e.logger.Error("duplicate-buy check failed", "order", orderID, "error", err)
		return
	}
	if exists {
		delete(e.pendingBuys, orderID)
		return
	}

	targetPrice := price.Add(e.config.ProfitInterval)
	contract := &core.Contract{
		Market:         e.config.Market,
		BuyPrice:       price,
		BuyAmount:      volume,
		TargetPrice:    targetPrice,
		BuyOrderID:     orderID,
		CurrentOrderID: orderID,
		CreatedAt:      time.Now(),
	}

	id, err := e.ledger.CreateContract(ctx, contract)
	if err != nil {
		e.logger.Error("create contract failed", "order", orderID, "error", err)
		return
	}
	delete(e.pendingBuys, orderID)

	if err := e.ledger.AppendTrade(ctx, &core.Trade{
		ContractID: id,
		Type:       core.TradeBuy,
		Price:      price,
		Amount:     volume,
		ExecutedAt: contract.CreatedAt,
	}); err != nil {
		e.logger.Error("append buy trade failed", "contract", id, "error", err)
	}

	e.notify(ctx, core.NotifyBuyFill, fmt.Sprintf("contract %d opened: buy %s target %s", id, price, targetPrice), map[string]string{
		"contract_id":  fmt.Sprintf("%d", id),
		"buy_price":    price.String(),
		"target_price": targetPrice.String(),
	})

	sellID, err := e.exchange.PlaceSell(ctx, e.config.Market, targetPrice, volume)
	if err != nil {
		e.logger.Warn("sell placement failed after buy fill", "contract", id, "error", err)
		if updErr := e.ledger.UpdateCurrentOrderID(ctx, id, ""); updErr != nil {
			e.logger.Error("clear current_order_id failed", "contract", id, "error", updErr)
		}
		return
	}
	if err := e.ledger.UpdateCurrentOrderID(ctx, id, sellID); err != nil {
		e.logger.Error("update current_order_id failed", "contract", id, "error", err)
	}
}

// emptyGridRefill is phase C: it re-seeds grid lines left empty by an
// external cancellation or a ledger/exchange desync, guarding against
// duplicate placement at any single line.
func (e *Engine) emptyGridRefill(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.config.Market == "" {
		return nil
	}

	price, err := e.exchange.CurrentPrice(ctx, e.config.Market)
	if err != nil {
		return fmt.Errorf("current price: %w", err)
	}

	active, err := e.ledger.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active contracts: %w", err)
	}
	var activePrices []decimal.Decimal
	for _, c := range active {
		activePrices = append(activePrices, c.BuyPrice)
	}

	var pendingPrices []decimal.Decimal
	for _, p := range e.pendingBuys {
		pendingPrices = append(pendingPrices, p)
	}

	openOrders, err := e.exchange.OpenOrders(ctx, e.config.Market)
	if err != nil {
		return fmt.Errorf("open orders: %w", err)
	}
	var openBidPrices []decimal.Decimal
	for _, o := range openOrders {
		if o.Side == core.SideBid {
			openBidPrices = append(openBidPrices, o.Price)
		}
	}

	for _, g := range e.config.GridLines() {
		if g.GreaterThan(price) {
			continue
		}
		if gridtools.ContainsPrice(activePrices, g) || gridtools.ContainsPrice(pendingPrices, g) || gridtools.ContainsPrice(openBidPrices, g) {
			continue
		}
		e.atomicPlaceLocked(ctx, g)
	}

	return nil
}

// atomicPlaceLocked re-checks occupancy against the current in-memory
// pending-buy set (the last-moment guard) and places a buy if still
// clear. Caller must hold e.mu for the entire empty-grid-refill
// procedure, which is what makes this check atomic: no other sweep can
// place at the same grid line between the check and the placement.
func (e *Engine) atomicPlaceLocked(ctx context.Context, g decimal.Decimal) {
	var pendingPrices []decimal.Decimal
	for _, p := range e.pendingBuys {
		pendingPrices = append(pendingPrices, p)
	}
	if gridtools.ContainsPrice(pendingPrices, g) {
		e.logger.Debug("atomic-place rejected: grid line now occupied", "price", g)
		return
	}

	orderID, err := e.exchange.PlaceBuy(ctx, e.config.Market, g, e.config.AmountPerGrid)
	if err != nil {
		e.logger.Warn("refill buy placement failed", "price", g, "error", err)
		return
	}
	e.pendingBuys[orderID] = g
}

// selfHealReconcile is phase D: every reconcileEveryTicks ticks, compare
// the exchange's reported base-currency balance against what the ledger
// believes is bookkept, and replay any buy fill the primary sweeps missed.
func (e *Engine) selfHealReconcile(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.config.Market == "" {
		return nil
	}
	_, base, ok := gridtools.SplitMarket(e.config.Market)
	if !ok {
		return fmt.Errorf("malformed market %q", e.config.Market)
	}

	total, err := e.exchange.TotalBalance(ctx, base)
	if err != nil {
		return fmt.Errorf("total balance: %w", err)
	}

	active, err := e.ledger.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active contracts: %w", err)
	}
	bookkept := decimal.Zero
	for _, c := range active {
		bookkept = bookkept.Add(c.BuyAmount)
	}

	gap := total.Sub(bookkept)
	threshold := decimal.NewFromFloat(0.9).Mul(e.config.AmountPerGrid)
	if gap.LessThan(threshold) {
		return nil
	}

	maxRescue := int(gap.Div(e.config.AmountPerGrid).IntPart())
	if maxRescue <= 0 {
		return nil
	}

	completed, err := e.exchange.CompletedOrders(ctx, e.config.Market, 50)
	if err != nil {
		return fmt.Errorf("completed orders: %w", err)
	}

	rescued := 0
	for _, o := range completed {
		if rescued >= maxRescue {
			break
		}
		if o.Side != core.SideBid || o.State != core.OrderDone {
			continue
		}
		exists, err := e.ledger.ExistsByBuyOrderID(ctx, o.ID)
		if err != nil {
			e.logger.Warn("duplicate-buy check failed during reconciliation", "order", o.ID, "error", err)
			continue
		}
		if exists {
			continue
		}
		e.handleBuyFillLocked(ctx, o.ID, o.Price, o.Volume)
		rescued++
	}

	if rescued > 0 {
		e.notify(ctx, core.NotifyRescue, fmt.Sprintf("self-healing rescued %d missed buy fill(s)", rescued), map[string]string{
			"rescued_count": fmt.Sprintf("%d", rescued),
			"gap":           gap.String(),
		})
	}

	return nil
}

func (e *Engine) notify(ctx context.Context, kind core.NotificationKind, message string, fields map[string]string) {
	if e.notifier == nil {
		return
	}
	e.notifier.Notify(ctx, core.Notification{Kind: kind, Message: message, Fields: fields})
}

// Status returns a STATUS snapshot for the operator console.
func (e *Engine) Status(ctx context.Context) (Snapshot, error) {
	e.mu.Lock()
	market := e.config.Market
	running := e.state == StateRunning
	pendingCount := len(e.pendingBuys)
	var pendingPrices []decimal.Decimal
	for _, p := range e.pendingBuys {
		pendingPrices = append(pendingPrices, p)
	}
	e.mu.Unlock()

	snap := Snapshot{Running: running, Market: market, PendingBuys: pendingCount, PendingBuyPrices: pendingPrices}

	if market == "" {
		return snap, nil
	}

	price, err := e.exchange.CurrentPrice(ctx, market)
	if err != nil {
		return snap, fmt.Errorf("current price: %w", err)
	}
	snap.CurrentPrice = price

	active, err := e.ledger.ListActive(ctx)
	if err != nil {
		return snap, fmt.Errorf("list active contracts: %w", err)
	}
	snap.ActiveContracts = len(active)

	unrealized := decimal.Zero
	for _, c := range active {
		unrealized = unrealized.Add(price.Sub(c.BuyPrice).Mul(c.BuyAmount))
	}
	snap.UnrealizedPnL = unrealized

	return snap, nil
}

// Report returns the most recent N closed contracts for the REPORT
// operator-console operation.
func (e *Engine) Report(ctx context.Context, limit int) ([]ReportRow, error) {
	closed, err := e.ledger.RecentClosed(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("recent closed contracts: %w", err)
	}
	rows := make([]ReportRow, 0, len(closed))
	for _, c := range closed {
		rows = append(rows, contractToReportRow(c))
	}
	return rows, nil
}
