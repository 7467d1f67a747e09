package alert

import (
	"context"

	"gridtrader/internal/core"
)

// CallbackChannel adapts an in-process callback to the Channel interface,
// used by the operator console's NOTIFY registration.
type CallbackChannel struct {
	name string
	fn   func(core.Notification)
}

// NewCallbackChannel wraps fn as a named Channel.
func NewCallbackChannel(name string, fn func(core.Notification)) *CallbackChannel {
	return &CallbackChannel{name: name, fn: fn}
}

func (c *CallbackChannel) Name() string { return c.name }

// Send invokes the callback. It never blocks on external I/O, so it
// always returns nil.
func (c *CallbackChannel) Send(_ context.Context, n core.Notification) error {
	c.fn(n)
	return nil
}
