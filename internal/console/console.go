// Package console exposes the grid engine's four request/response
// operations plus notification registration as a single Go-level
// contract, the entire surface a chat transport would call against.
package console

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"gridtrader/internal/alert"
	"gridtrader/internal/core"
	"gridtrader/internal/gridengine"
	"gridtrader/internal/gridtools"
)

// Console wraps an Engine for an operator-facing transport.
type Console struct {
	engine   *gridengine.Engine
	notifier *alert.Manager
	logger   core.ILogger
}

// New wraps engine. notifier is used to register NOTIFY callbacks; pass
// the same *alert.Manager the engine itself pushes notifications
// through, so a registered callback sees buy-fill, sell-fill, and
// self-healing-rescue events.
func New(engine *gridengine.Engine, notifier *alert.Manager, logger core.ILogger) *Console {
	return &Console{engine: engine, notifier: notifier, logger: logger.WithField("component", "console")}
}

// Start runs a readable funds check before launching the grid: it
// refuses to start if the exchange's free quote-currency balance can't
// cover the grid's expected capital requirement, mirroring
// validate_balance()'s pre-flight check.
func (c *Console) Start(ctx context.Context, cfg core.GridConfig) error {
	if err := c.checkFunds(ctx, cfg); err != nil {
		c.logger.Warn("start rejected: funds check failed", "error", err)
		return err
	}

	if err := c.engine.Start(ctx, cfg); err != nil {
		c.logger.Warn("start rejected", "error", err)
		return err
	}
	c.logger.Info("grid started", "market", cfg.Market)
	return nil
}

// checkFunds computes required ≈ ((min+max)/2) · amount_per_grid ·
// grid_count and compares it against the exchange's free balance in the
// market's quote currency.
func (c *Console) checkFunds(ctx context.Context, cfg core.GridConfig) error {
	quote, _, ok := gridtools.SplitMarket(cfg.Market)
	if !ok {
		return fmt.Errorf("funds check: malformed market %q", cfg.Market)
	}

	gridCount := decimal.NewFromInt(int64(len(cfg.GridLines())))
	mid := cfg.MinPrice.Add(cfg.MaxPrice).Div(decimal.NewFromInt(2))
	required := mid.Mul(cfg.AmountPerGrid).Mul(gridCount)

	free, err := c.engine.FreeBalance(ctx, quote)
	if err != nil {
		return fmt.Errorf("funds check: free balance: %w", err)
	}

	if free.LessThan(required) {
		return fmt.Errorf("funds check failed: required ~%s %s but free balance is %s %s", required.String(), quote, free.String(), quote)
	}
	return nil
}

// Notify registers callback to receive every notification the engine
// raises (buy fill, sell fill/take-profit, self-healing rescue), per the
// NOTIFY operator-console operation.
func (c *Console) Notify(callback func(core.Notification)) {
	c.notifier.AddChannel(alert.NewCallbackChannel("console_notify", callback))
}

// Stop requests the running grid to halt; it is a no-op if the engine
// is already idle.
func (c *Console) Stop(_ context.Context) {
	c.engine.Stop()
	c.logger.Info("grid stop requested")
}

// Status returns a point-in-time snapshot of engine state.
func (c *Console) Status(ctx context.Context) (gridengine.Snapshot, error) {
	snap, err := c.engine.Status(ctx)
	if err != nil {
		return snap, fmt.Errorf("status: %w", err)
	}
	return snap, nil
}

// Report returns the most recent limit closed contracts, newest first.
func (c *Console) Report(ctx context.Context, limit int) ([]gridengine.ReportRow, error) {
	rows, err := c.engine.Report(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("report: %w", err)
	}
	return rows, nil
}
