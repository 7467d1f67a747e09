// Package base provides common functionality shared by concrete exchange
// adapters: signed HTTP requests, decimal/timestamp parsing, and
// WebSocket stream lifecycle management.
package base

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"gridtrader/internal/config"
	"gridtrader/internal/core"
	"gridtrader/pkg/websocket"
)

// SignRequestFunc signs an outgoing request in place (e.g. adds an HMAC
// signature query parameter or header).
type SignRequestFunc func(req *http.Request, body []byte) error

// ParseErrorFunc turns a non-200 response body into a sentinel error from
// pkg/errors, or nil if the body doesn't match a known error shape.
type ParseErrorFunc func(statusCode int, body []byte) error

// MapOrderStateFunc maps an exchange-specific order status string onto
// core.OrderState.
type MapOrderStateFunc func(rawStatus string) core.OrderState

// Adapter provides common functionality for all exchange adapters.
type Adapter struct {
	Name       string
	Config     *config.ExchangeConfig
	Logger     core.ILogger
	HTTPClient *http.Client

	SignRequest   SignRequestFunc
	ParseError    ParseErrorFunc
	MapOrderState MapOrderStateFunc
}

// NewAdapter creates a new base adapter with a pooled HTTP client.
func NewAdapter(name string, cfg *config.ExchangeConfig, logger core.ILogger) *Adapter {
	return &Adapter{
		Name:   name,
		Config: cfg,
		Logger: logger.WithField("exchange", name),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// ExecuteRequest sends an HTTP request through the common signing and
// error-parsing pipeline.
func (a *Adapter) ExecuteRequest(ctx context.Context, method, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	if a.SignRequest != nil {
		if err := a.SignRequest(req, body); err != nil {
			return nil, fmt.Errorf("sign request: %w", err)
		}
	}

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if a.ParseError != nil {
			if parseErr := a.ParseError(resp.StatusCode, respBody); parseErr != nil {
				return nil, parseErr
			}
		}
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

// StartWebSocketStream starts a reconnecting WebSocket stream under ctx
// and stops it when ctx is canceled.
func (a *Adapter) StartWebSocketStream(ctx context.Context, wsURL string, onMessage func([]byte), onConnected func(), streamName string) {
	client := websocket.NewClient(wsURL, onMessage, a.Logger)
	if onConnected != nil {
		client.SetOnConnected(onConnected)
	}
	client.Start()

	go func() {
		<-ctx.Done()
		a.Logger.Info(streamName + " stream stopping")
		client.Stop()
	}()

	a.Logger.Info(streamName + " stream started")
}

// SafeMapOrderState maps a raw exchange status string, falling back to
// OrderWait if no mapper is configured or the status is unrecognized.
func (a *Adapter) SafeMapOrderState(rawStatus string) core.OrderState {
	if a.MapOrderState != nil {
		return a.MapOrderState(rawStatus)
	}
	return core.OrderWait
}

// ParseDecimal safely parses s to a decimal, logging and returning zero
// on malformed input rather than panicking deep inside response mapping.
func (a *Adapter) ParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		a.Logger.Warn("failed to parse decimal", "value", s, "error", err)
		return decimal.Zero
	}
	return d
}

// ParseTimestampMillis converts a Unix-millisecond timestamp to time.Time.
func (a *Adapter) ParseTimestampMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
