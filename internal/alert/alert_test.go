package alert

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gridtrader/internal/core"
)

type mockChannel struct {
	name string
	mu   sync.Mutex
	sent []core.Notification
}

func (m *mockChannel) Name() string { return m.name }

func (m *mockChannel) Send(_ context.Context, n core.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, n)
	return nil
}

func (m *mockChannel) getSent() []core.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.Notification, len(m.sent))
	copy(out, m.sent)
	return out
}

type discardLogger struct{}

func (discardLogger) Debug(string, ...interface{})                     {}
func (discardLogger) Info(string, ...interface{})                      {}
func (discardLogger) Warn(string, ...interface{})                      {}
func (discardLogger) Error(string, ...interface{})                     {}
func (l discardLogger) WithField(string, interface{}) core.ILogger     { return l }
func (l discardLogger) WithFields(map[string]interface{}) core.ILogger { return l }

func TestManagerNotifyFansOutToAllChannels(t *testing.T) {
	m := NewManager(discardLogger{})
	ch1 := &mockChannel{name: "one"}
	ch2 := &mockChannel{name: "two"}
	m.AddChannel(ch1)
	m.AddChannel(ch2)

	m.Notify(context.Background(), core.Notification{
		Kind:    core.NotifyBuyFill,
		Message: "contract opened",
		Fields:  map[string]string{"contract_id": "1"},
	})

	assert.Eventually(t, func() bool {
		return len(ch1.getSent()) == 1 && len(ch2.getSent()) == 1
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, core.NotifyBuyFill, ch1.getSent()[0].Kind)
}

func TestLogChannelSendNeverErrors(t *testing.T) {
	ch := NewLogChannel(discardLogger{})
	err := ch.Send(context.Background(), core.Notification{Kind: core.NotifySellFill, Message: "closed"})
	assert.NoError(t, err)
}

func TestWebhookChannelNoOpWithoutURL(t *testing.T) {
	ch := NewWebhookChannel("")
	err := ch.Send(context.Background(), core.Notification{Kind: core.NotifyRescue, Message: "rescued"})
	assert.NoError(t, err)
}
