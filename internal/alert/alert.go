// Package alert fans a grid engine notification out to one or more
// channels without blocking the monitor tick that raised it.
package alert

import (
	"context"
	"sync"
	"time"

	"gridtrader/internal/core"
)

// Channel delivers one notification to an external destination.
type Channel interface {
	Send(ctx context.Context, n core.Notification) error
	Name() string
}

// Manager implements core.INotifier by fanning a notification out to
// every registered channel concurrently, each on its own timeout.
type Manager struct {
	mu       sync.RWMutex
	channels []Channel
	logger   core.ILogger
}

// NewManager creates an empty Manager; channels are added with AddChannel.
func NewManager(logger core.ILogger) *Manager {
	return &Manager{logger: logger.WithField("component", "alert_manager")}
}

// AddChannel registers a delivery channel.
func (m *Manager) AddChannel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels = append(m.channels, ch)
	m.logger.Info("alert channel registered", "name", ch.Name())
}

// Notify implements core.INotifier. Delivery is asynchronous: a slow or
// failing channel never delays the caller, which is the monitor loop.
func (m *Manager) Notify(ctx context.Context, n core.Notification) {
	m.logger.Info("notification raised", "kind", n.Kind, "message", n.Message)

	m.mu.RLock()
	channels := make([]Channel, len(m.channels))
	copy(channels, m.channels)
	m.mu.RUnlock()

	for _, ch := range channels {
		ch := ch
		go func() {
			sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if err := ch.Send(sendCtx, n); err != nil {
				m.logger.Warn("alert delivery failed", "channel", ch.Name(), "error", err)
			}
		}()
	}
}
