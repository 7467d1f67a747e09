package core

import (
	"context"

	"github.com/shopspring/decimal"
)

// IExchange is the contract the grid engine depends on. A concrete
// adapter speaks one exchange's REST/WS protocol; the engine never sees
// exchange-specific payloads.
type IExchange interface {
	CurrentPrice(ctx context.Context, market string) (decimal.Decimal, error)
	PlaceBuy(ctx context.Context, market string, price, amount decimal.Decimal) (orderID string, err error)
	PlaceSell(ctx context.Context, market string, price, amount decimal.Decimal) (orderID string, err error)
	Cancel(ctx context.Context, orderID string) (bool, error)
	OrderStatus(ctx context.Context, orderID string) (*OrderStatus, error)
	OpenOrders(ctx context.Context, market string) ([]OpenOrder, error)
	CompletedOrders(ctx context.Context, market string, limit int) ([]CompletedOrder, error)
	FreeBalance(ctx context.Context, currency string) (decimal.Decimal, error)
	TotalBalance(ctx context.Context, currency string) (decimal.Decimal, error)
	SubscribePrice(ctx context.Context, market string, onTick func(decimal.Decimal)) error
}

// ILedger is the durable store contract.
type ILedger interface {
	CreateContract(ctx context.Context, c *Contract) (int64, error)
	ExistsByBuyOrderID(ctx context.Context, buyOrderID string) (bool, error)
	ListActive(ctx context.Context) ([]*Contract, error)
	FindByCurrentOrderID(ctx context.Context, orderID string) (*Contract, error)
	FindByID(ctx context.Context, id int64) (*Contract, error)
	UpdateCurrentOrderID(ctx context.Context, id int64, newOrderID string) error
	CloseContract(ctx context.Context, id int64, sellPrice, profit, profitRate decimal.Decimal, finishedAt int64) error
	AppendTrade(ctx context.Context, t *Trade) error
	SetConfig(ctx context.Context, key, value string) error
	GetConfig(ctx context.Context, key string) (string, bool, error)
	RecentClosed(ctx context.Context, limit int) ([]*Contract, error)
}

// ILogger is the structured logging contract used throughout the engine.
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}

// NotificationKind classifies a push notification.
type NotificationKind string

const (
	NotifyBuyFill  NotificationKind = "buy_fill"
	NotifySellFill NotificationKind = "sell_fill"
	NotifyRescue   NotificationKind = "self_heal_rescue"
)

// Notification is one human-readable push the engine emits.
type Notification struct {
	Kind    NotificationKind
	Message string
	Fields  map[string]string
}

// INotifier pushes engine notifications to an external channel, such as
// the operator console's notify callback.
type INotifier interface {
	Notify(ctx context.Context, n Notification)
}
