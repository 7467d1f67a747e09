// Package core defines the domain types and interfaces shared by the
// exchange client, the ledger, and the grid engine.
package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// ContractStatus is the lifecycle state of a Contract.
type ContractStatus string

const (
	ContractActive ContractStatus = "ACTIVE"
	ContractClosed ContractStatus = "CLOSED"
)

// TradeType distinguishes the two legs of a round trip.
type TradeType string

const (
	TradeBuy  TradeType = "BUY"
	TradeSell TradeType = "SELL"
)

// Contract is a round-trip trade in progress or completed.
type Contract struct {
	ID     int64
	Market string

	BuyPrice    decimal.Decimal
	BuyAmount   decimal.Decimal
	TargetPrice decimal.Decimal

	Status ContractStatus

	BuyOrderID     string // immutable, unique; the idempotency key for duplicate buy-fill events
	CurrentOrderID string // mutable while ACTIVE; empty once placement failed or contract closed

	CreatedAt  time.Time
	FinishedAt time.Time

	SellPrice  decimal.Decimal
	Profit     decimal.Decimal
	ProfitRate decimal.Decimal
}

// HasLiveSellOrder reports whether CurrentOrderID names an order the
// engine believes is still live. A failed sell placement clears
// CurrentOrderID rather than leaving it aliased to the buy order id.
func (c *Contract) HasLiveSellOrder() bool {
	return c.Status == ContractActive && c.CurrentOrderID != ""
}

// Trade is an append-only audit record of one leg of a contract.
type Trade struct {
	ID         int64
	ContractID int64
	Type       TradeType
	Price      decimal.Decimal
	Amount     decimal.Decimal
	Fee        decimal.Decimal
	Profit     decimal.Decimal
	ExecutedAt time.Time
}

// GridConfig is the in-memory-only grid configuration.
type GridConfig struct {
	Market         string
	MinPrice       decimal.Decimal
	MaxPrice       decimal.Decimal
	GridInterval   decimal.Decimal
	AmountPerGrid  decimal.Decimal
	ProfitInterval decimal.Decimal
}

// Validate enforces the invariants a grid configuration must satisfy
// before a grid can be started; an invalid configuration is fatal on
// start rather than causing partial startup.
func (g GridConfig) Validate() error {
	switch {
	case g.Market == "":
		return errMissingField("market")
	case g.MinPrice.LessThanOrEqual(decimal.Zero):
		return errMissingField("min_price")
	case g.MaxPrice.LessThanOrEqual(g.MinPrice):
		return errMissingField("max_price (must exceed min_price)")
	case g.GridInterval.LessThanOrEqual(decimal.Zero):
		return errMissingField("grid_interval")
	case g.AmountPerGrid.LessThanOrEqual(decimal.Zero):
		return errMissingField("amount_per_grid")
	case g.ProfitInterval.LessThanOrEqual(decimal.Zero):
		return errMissingField("profit_interval")
	}
	return nil
}

// GridLines returns the finite arithmetic sequence
// {min + k*interval | value <= max} in ascending order.
func (g GridConfig) GridLines() []decimal.Decimal {
	var lines []decimal.Decimal
	for p := g.MinPrice; p.LessThanOrEqual(g.MaxPrice); p = p.Add(g.GridInterval) {
		lines = append(lines, p)
	}
	return lines
}

// OrderSide is bid (buy) or ask (sell) from the exchange's point of view.
type OrderSide string

const (
	SideBid OrderSide = "bid"
	SideAsk OrderSide = "ask"
)

// OrderState is the exchange-reported lifecycle state of one order.
type OrderState string

const (
	OrderWait   OrderState = "wait"
	OrderDone   OrderState = "done"
	OrderCancel OrderState = "cancel"
)

// OrderStatus is the result of a point query for one order.
type OrderStatus struct {
	OrderID        string
	State          OrderState
	Price          decimal.Decimal
	Volume         decimal.Decimal
	ExecutedVolume decimal.Decimal
}

// OpenOrder is one line of the open-order book.
type OpenOrder struct {
	ID     string
	Side   OrderSide
	Price  decimal.Decimal
	Volume decimal.Decimal
}

// CompletedOrder is one line of recent completed-order history.
type CompletedOrder struct {
	ID     string
	Side   OrderSide
	State  OrderState
	Price  decimal.Decimal
	Volume decimal.Decimal
}

func errMissingField(name string) error {
	return &ConfigError{Field: name}
}

// ConfigError reports an invalid or missing grid configuration field.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return "invalid grid configuration: " + e.Field
}
