// Package binance provides Binance spot-market connectivity: signed REST
// calls for CurrentPrice, order placement/status and balances, and a
// WebSocket trade stream for SubscribePrice.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"gridtrader/internal/config"
	"gridtrader/internal/core"
	"gridtrader/internal/exchange/base"
	apperrors "gridtrader/pkg/errors"
)

const (
	defaultSpotURL = "https://api.binance.com"
	defaultSpotWS  = "wss://stream.binance.com:9443/ws"
)

// Exchange implements core.IExchange against Binance's spot REST/WS API.
type Exchange struct {
	*base.Adapter
	limiter  *rate.Limiter
	pipeline failsafe.Executor[[]byte]
}

// New creates a Binance spot exchange adapter.
func New(cfg *config.ExchangeConfig, logger core.ILogger) *Exchange {
	adapter := base.NewAdapter("binance", cfg, logger)

	e := &Exchange{
		Adapter: adapter,
		// Binance spot weights requests; 10/s keeps us well under the
		// per-IP limit for this bot's single-market order volume.
		limiter: rate.NewLimiter(rate.Limit(10), 20),
	}

	adapter.SignRequest = e.signRequest
	adapter.ParseError = e.parseError
	adapter.MapOrderState = e.mapOrderState

	retryPolicy := retrypolicy.NewBuilder[[]byte]().
		HandleIf(func(_ []byte, err error) bool {
			return err != nil && apperrors.IsTransient(err)
		}).
		WithBackoff(100*time.Millisecond, 2*time.Second).
		WithMaxRetries(3).
		Build()

	breaker := circuitbreaker.NewBuilder[[]byte]().
		HandleIf(func(_ []byte, err error) bool {
			return err != nil && apperrors.IsTransient(err)
		}).
		WithFailureThresholdRatio(5, 10).
		WithDelay(10 * time.Second).
		Build()

	e.pipeline = failsafe.With[[]byte](retryPolicy, breaker)

	return e
}

func (e *Exchange) baseURL() string {
	if e.Config.BaseURL != "" {
		return e.Config.BaseURL
	}
	return defaultSpotURL
}

func (e *Exchange) wsURL() string {
	if e.Config.WSURL != "" {
		return e.Config.WSURL
	}
	return defaultSpotWS
}

func (e *Exchange) signRequest(req *http.Request, _ []byte) error {
	req.Header.Set("X-MBX-APIKEY", string(e.Config.APIKey))

	q := req.URL.Query()
	if q.Get("timestamp") == "" {
		q.Set("timestamp", fmt.Sprintf("%d", time.Now().UnixMilli()))
	}

	mac := hmac.New(sha256.New, []byte(string(e.Config.SecretKey)))
	mac.Write([]byte(q.Encode()))
	q.Set("signature", hex.EncodeToString(mac.Sum(nil)))
	req.URL.RawQuery = q.Encode()

	return nil
}

func (e *Exchange) parseError(statusCode int, body []byte) error {
	var errResp struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return fmt.Errorf("binance error (status %d): %s", statusCode, string(body))
	}

	switch errResp.Code {
	case -2015:
		return apperrors.ErrAuthenticationFailed
	case -2010:
		return apperrors.ErrInsufficientFunds
	case -1013:
		return apperrors.ErrMinNotional
	case -1003:
		return apperrors.ErrRateLimitExceeded
	case -2011:
		return apperrors.ErrOrderNotFound
	case -2021, -2026:
		return apperrors.ErrDuplicateOrder
	case -1102, -1100, -1121:
		return apperrors.ErrInvalidOrderParam
	default:
		if statusCode >= 500 {
			return apperrors.ErrNetwork
		}
		return fmt.Errorf("binance error %d: %s", errResp.Code, errResp.Msg)
	}
}

func (e *Exchange) mapOrderState(rawStatus string) core.OrderState {
	switch rawStatus {
	case "NEW", "PARTIALLY_FILLED":
		return core.OrderWait
	case "FILLED":
		return core.OrderDone
	case "CANCELED", "EXPIRED", "REJECTED", "PENDING_CANCEL":
		return core.OrderCancel
	default:
		return core.OrderWait
	}
}

// execute runs a signed HTTP call through the rate limiter and the
// retry/circuit-breaker pipeline.
func (e *Exchange) execute(ctx context.Context, method, url string) ([]byte, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return e.pipeline.GetWithExecution(func(_ failsafe.Execution[[]byte]) ([]byte, error) {
		return e.ExecuteRequest(ctx, method, url, nil)
	})
}

// CurrentPrice fetches the latest trade price for market.
func (e *Exchange) CurrentPrice(ctx context.Context, market string) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", e.baseURL(), market)
	body, err := e.execute(ctx, http.MethodGet, url)
	if err != nil {
		return decimal.Zero, err
	}

	var raw struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw.Price)
}

// PlaceBuy places a GTC limit buy order, returning the exchange order id.
func (e *Exchange) PlaceBuy(ctx context.Context, market string, price, amount decimal.Decimal) (string, error) {
	return e.placeOrder(ctx, market, "BUY", price, amount)
}

// PlaceSell places a GTC limit sell order, returning the exchange order id.
func (e *Exchange) PlaceSell(ctx context.Context, market string, price, amount decimal.Decimal) (string, error) {
	return e.placeOrder(ctx, market, "SELL", price, amount)
}

func (e *Exchange) placeOrder(ctx context.Context, market, side string, price, amount decimal.Decimal) (string, error) {
	clientOrderID := uuid.New().String()

	if err := e.limiter.Wait(ctx); err != nil {
		return "", err
	}

	body, err := e.pipeline.GetWithExecution(func(_ failsafe.Execution[[]byte]) ([]byte, error) {
		url := fmt.Sprintf("%s/api/v3/order?symbol=%s&side=%s&type=LIMIT&timeInForce=GTC&quantity=%s&price=%s&newClientOrderId=%s",
			e.baseURL(), market, side, amount.String(), price.String(), clientOrderID)
		return e.ExecuteRequest(ctx, http.MethodPost, url, nil)
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrDuplicateOrder) {
			existing, fetchErr := e.orderByClientID(ctx, market, clientOrderID)
			if fetchErr == nil {
				return existing.OrderID, nil
			}
		}
		return "", err
	}

	var raw struct {
		OrderID int64 `json:"orderId"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", err
	}
	return strconv.FormatInt(raw.OrderID, 10), nil
}

// Cancel cancels orderID, returning false if the exchange reports it was
// already filled or gone.
func (e *Exchange) Cancel(ctx context.Context, orderID string) (bool, error) {
	url := fmt.Sprintf("%s/api/v3/order?orderId=%s", e.baseURL(), orderID)
	_, err := e.execute(ctx, http.MethodDelete, url)
	if err != nil {
		if errors.Is(err, apperrors.ErrOrderNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

type rawOrder struct {
	OrderID     int64  `json:"orderId"`
	Status      string `json:"status"`
	Price       string `json:"price"`
	OrigQty     string `json:"origQty"`
	ExecutedQty string `json:"executedQty"`
	Side        string `json:"side"`
}

func (e *Exchange) orderToStatus(r rawOrder) *core.OrderStatus {
	return &core.OrderStatus{
		OrderID:        strconv.FormatInt(r.OrderID, 10),
		State:          e.mapOrderState(r.Status),
		Price:          e.ParseDecimal(r.Price),
		Volume:         e.ParseDecimal(r.OrigQty),
		ExecutedVolume: e.ParseDecimal(r.ExecutedQty),
	}
}

func (e *Exchange) orderByClientID(ctx context.Context, market, clientOrderID string) (*core.OrderStatus, error) {
	url := fmt.Sprintf("%s/api/v3/order?symbol=%s&origClientOrderId=%s", e.baseURL(), market, clientOrderID)
	body, err := e.execute(ctx, http.MethodGet, url)
	if err != nil {
		return nil, err
	}
	var raw rawOrder
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	return e.orderToStatus(raw), nil
}

// OrderStatus queries one order by exchange order id.
func (e *Exchange) OrderStatus(ctx context.Context, orderID string) (*core.OrderStatus, error) {
	url := fmt.Sprintf("%s/api/v3/order?orderId=%s", e.baseURL(), orderID)
	body, err := e.execute(ctx, http.MethodGet, url)
	if err != nil {
		return nil, err
	}
	var raw rawOrder
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	return e.orderToStatus(raw), nil
}

// OpenOrders lists every order still resting on the book for market.
func (e *Exchange) OpenOrders(ctx context.Context, market string) ([]core.OpenOrder, error) {
	url := fmt.Sprintf("%s/api/v3/openOrders?symbol=%s", e.baseURL(), market)
	body, err := e.execute(ctx, http.MethodGet, url)
	if err != nil {
		return nil, err
	}

	var raws []rawOrder
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, err
	}

	orders := make([]core.OpenOrder, 0, len(raws))
	for _, r := range raws {
		side := core.SideBid
		if r.Side == "SELL" {
			side = core.SideAsk
		}
		orders = append(orders, core.OpenOrder{
			ID:     strconv.FormatInt(r.OrderID, 10),
			Side:   side,
			Price:  e.ParseDecimal(r.Price),
			Volume: e.ParseDecimal(r.OrigQty),
		})
	}
	return orders, nil
}

// CompletedOrders lists the most recent finished orders for market, newest
// first, capped at limit.
func (e *Exchange) CompletedOrders(ctx context.Context, market string, limit int) ([]core.CompletedOrder, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	url := fmt.Sprintf("%s/api/v3/allOrders?symbol=%s&limit=%d", e.baseURL(), market, limit)
	body, err := e.execute(ctx, http.MethodGet, url)
	if err != nil {
		return nil, err
	}

	var raws []rawOrder
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, err
	}

	var out []core.CompletedOrder
	for i := len(raws) - 1; i >= 0; i-- {
		r := raws[i]
		state := e.mapOrderState(r.Status)
		if state == core.OrderWait {
			continue
		}
		side := core.SideBid
		if r.Side == "SELL" {
			side = core.SideAsk
		}
		out = append(out, core.CompletedOrder{
			ID:     strconv.FormatInt(r.OrderID, 10),
			Side:   side,
			State:  state,
			Price:  e.ParseDecimal(r.Price),
			Volume: e.ParseDecimal(r.OrigQty),
		})
	}
	return out, nil
}

// FreeBalance returns the available (non-locked) balance for currency.
func (e *Exchange) FreeBalance(ctx context.Context, currency string) (decimal.Decimal, error) {
	free, _, err := e.accountBalance(ctx, currency)
	return free, err
}

// TotalBalance returns the free+locked balance for currency.
func (e *Exchange) TotalBalance(ctx context.Context, currency string) (decimal.Decimal, error) {
	free, locked, err := e.accountBalance(ctx, currency)
	if err != nil {
		return decimal.Zero, err
	}
	return free.Add(locked), nil
}

func (e *Exchange) accountBalance(ctx context.Context, currency string) (free, locked decimal.Decimal, err error) {
	url := fmt.Sprintf("%s/api/v3/account", e.baseURL())
	body, err := e.execute(ctx, http.MethodGet, url)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	var raw struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	for _, b := range raw.Balances {
		if strings.EqualFold(b.Asset, currency) {
			return e.ParseDecimal(b.Free), e.ParseDecimal(b.Locked), nil
		}
	}
	return decimal.Zero, decimal.Zero, nil
}

// SubscribePrice opens a trade-stream WebSocket for market and invokes
// onTick for every print, reconnecting indefinitely until ctx is done.
func (e *Exchange) SubscribePrice(ctx context.Context, market string, onTick func(decimal.Decimal)) error {
	streamURL := fmt.Sprintf("%s/%s@trade", e.wsURL(), strings.ToLower(market))

	e.StartWebSocketStream(ctx, streamURL, func(message []byte) {
		var trade struct {
			Price string `json:"p"`
		}
		if err := json.Unmarshal(message, &trade); err != nil {
			e.Logger.Warn("malformed trade message", "error", err)
			return
		}
		price, err := decimal.NewFromString(trade.Price)
		if err != nil {
			return
		}
		onTick(price)
	}, nil, "binance-trade")

	return nil
}
