// Package fake provides an in-memory core.IExchange implementation for
// engine tests: it tracks open orders and lets a test fill, reject, or
// move them without any network access.
package fake

import (
	"context"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"

	"gridtrader/internal/core"
	apperrors "gridtrader/pkg/errors"
)

type order struct {
	id     string
	market string
	side   core.OrderSide
	price  decimal.Decimal
	volume decimal.Decimal
	filled decimal.Decimal
	state  core.OrderState
}

// Exchange is a fully in-memory exchange used by engine and console tests.
type Exchange struct {
	mu           sync.Mutex
	nextID       int64
	orders       map[string]*order
	price        decimal.Decimal
	balances     map[string]decimal.Decimal
	tickHandlers []func(decimal.Decimal)

	// RejectNextPlacement, if true, makes the next PlaceBuy/PlaceSell call
	// fail with ErrOrderRejected and resets itself.
	RejectNextPlacement bool
}

// New creates a fake exchange starting at the given price.
func New(startPrice decimal.Decimal) *Exchange {
	return &Exchange{
		orders:   make(map[string]*order),
		price:    startPrice,
		balances: make(map[string]decimal.Decimal),
	}
}

// SetBalance seeds the free balance for currency.
func (e *Exchange) SetBalance(currency string, amount decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.balances[currency] = amount
}

// SetPrice updates the simulated market price and notifies subscribers.
func (e *Exchange) SetPrice(p decimal.Decimal) {
	e.mu.Lock()
	e.price = p
	handlers := append([]func(decimal.Decimal){}, e.tickHandlers...)
	e.mu.Unlock()

	for _, h := range handlers {
		h(p)
	}
}

// Fill marks orderID as fully executed at its resting price.
func (e *Exchange) Fill(orderID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if o, ok := e.orders[orderID]; ok {
		o.state = core.OrderDone
		o.filled = o.volume
	}
}

// ForceCancel marks orderID as canceled, simulating an out-of-band cancel.
func (e *Exchange) ForceCancel(orderID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if o, ok := e.orders[orderID]; ok {
		o.state = core.OrderCancel
	}
}

func (e *Exchange) CurrentPrice(_ context.Context, _ string) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.price, nil
}

func (e *Exchange) place(market string, side core.OrderSide, price, amount decimal.Decimal) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.RejectNextPlacement {
		e.RejectNextPlacement = false
		return "", apperrors.ErrOrderRejected
	}

	e.nextID++
	id := strconv.FormatInt(e.nextID, 10)
	e.orders[id] = &order{
		id:     id,
		market: market,
		side:   side,
		price:  price,
		volume: amount,
		state:  core.OrderWait,
	}
	return id, nil
}

func (e *Exchange) PlaceBuy(_ context.Context, market string, price, amount decimal.Decimal) (string, error) {
	return e.place(market, core.SideBid, price, amount)
}

func (e *Exchange) PlaceSell(_ context.Context, market string, price, amount decimal.Decimal) (string, error) {
	return e.place(market, core.SideAsk, price, amount)
}

func (e *Exchange) Cancel(_ context.Context, orderID string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[orderID]
	if !ok {
		return false, apperrors.ErrOrderNotFound
	}
	if o.state != core.OrderWait {
		return false, nil
	}
	o.state = core.OrderCancel
	return true, nil
}

func (e *Exchange) OrderStatus(_ context.Context, orderID string) (*core.OrderStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[orderID]
	if !ok {
		return nil, apperrors.ErrOrderNotFound
	}
	return &core.OrderStatus{
		OrderID:        o.id,
		State:          o.state,
		Price:          o.price,
		Volume:         o.volume,
		ExecutedVolume: o.filled,
	}, nil
}

func (e *Exchange) OpenOrders(_ context.Context, market string) ([]core.OpenOrder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []core.OpenOrder
	for _, o := range e.orders {
		if o.market == market && o.state == core.OrderWait {
			out = append(out, core.OpenOrder{ID: o.id, Side: o.side, Price: o.price, Volume: o.volume})
		}
	}
	return out, nil
}

func (e *Exchange) CompletedOrders(_ context.Context, market string, limit int) ([]core.CompletedOrder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []core.CompletedOrder
	for _, o := range e.orders {
		if o.market == market && o.state != core.OrderWait {
			out = append(out, core.CompletedOrder{ID: o.id, Side: o.side, State: o.state, Price: o.price, Volume: o.volume})
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (e *Exchange) FreeBalance(_ context.Context, currency string) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balances[currency], nil
}

func (e *Exchange) TotalBalance(_ context.Context, currency string) (decimal.Decimal, error) {
	return e.FreeBalance(context.Background(), currency)
}

// SubscribePrice registers onTick; SetPrice drives it in tests instead of
// a real WebSocket stream.
func (e *Exchange) SubscribePrice(_ context.Context, _ string, onTick func(decimal.Decimal)) error {
	e.mu.Lock()
	e.tickHandlers = append(e.tickHandlers, onTick)
	e.mu.Unlock()
	return nil
}
