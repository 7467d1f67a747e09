// Package websocket provides a resilient, auto-reconnecting WebSocket
// client used by the exchange adapter's price-stream subscription.
package websocket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"gridtrader/internal/core"
)

// MessageHandler handles one incoming message.
type MessageHandler func(message []byte)

// Client is a reconnecting WebSocket client: a disconnection is retried
// with a fixed backoff and the stream reconnects forever until Stop.
type Client struct {
	url     string
	handler MessageHandler
	logger  core.ILogger

	reconnectWait time.Duration
	pingInterval  time.Duration
	pingWait      time.Duration
	pongWait      time.Duration

	conn *websocket.Conn
	mu   sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	onConnected func()
}

// NewClient creates a new WebSocket client bound to url.
func NewClient(url string, handler MessageHandler, logger core.ILogger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		url:           url,
		handler:       handler,
		logger:        logger,
		reconnectWait: 5 * time.Second,
		pingInterval:  30 * time.Second,
		pingWait:      10 * time.Second,
		pongWait:      60 * time.Second,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// SetOnConnected registers a callback invoked after every (re)connection,
// used to re-issue subscription messages.
func (c *Client) SetOnConnected(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnected = cb
}

// Send writes a JSON message over the connection.
func (c *Client) Send(message interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	return c.conn.WriteJSON(message)
}

// Start begins connecting and dispatching messages in the background.
func (c *Client) Start() {
	c.wg.Add(1)
	go c.runLoop()
}

// Stop tears down the connection and waits for goroutines to exit.
func (c *Client) Stop() {
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		c.logger.Warn("websocket client stop: goroutines did not exit in time")
	}

	c.closeConn()
}

func (c *Client) runLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		if err := c.connect(); err != nil {
			c.logger.Error("websocket connect failed", "url", c.url, "error", err)
			if !c.sleepOrDone(c.reconnectWait) {
				return
			}
			continue
		}

		c.mu.Lock()
		onConnected := c.onConnected
		c.mu.Unlock()
		if onConnected != nil {
			onConnected()
		}

		heartbeatCtx, heartbeatCancel := context.WithCancel(c.ctx)
		c.wg.Add(1)
		go c.heartbeat(heartbeatCtx)

		c.readLoop()
		heartbeatCancel()

		if !c.sleepOrDone(c.reconnectWait) {
			return
		}
	}
}

func (c *Client) sleepOrDone(d time.Duration) bool {
	select {
	case <-c.ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (c *Client) heartbeat(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn == nil {
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(c.pingWait)); err != nil {
				c.closeConn()
				return
			}
		}
	}
}

func (c *Client) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return err
	}

	conn.SetReadDeadline(time.Now().Add(c.pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.pongWait))
		return nil
	})

	c.conn = conn
	return nil
}

func (c *Client) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) readLoop() {
	defer c.closeConn()

	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if c.handler != nil {
			c.handler(message)
		}
	}
}
