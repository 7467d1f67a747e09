package alert

import (
	"context"

	"gridtrader/internal/core"
)

// LogChannel writes every notification through the structured logger;
// it is always registered so alerts survive even with no webhook
// configured.
type LogChannel struct {
	logger core.ILogger
}

// NewLogChannel wraps logger as a Channel.
func NewLogChannel(logger core.ILogger) *LogChannel {
	return &LogChannel{logger: logger.WithField("component", "alert_log")}
}

func (l *LogChannel) Name() string { return "log" }

func (l *LogChannel) Send(_ context.Context, n core.Notification) error {
	fields := make([]interface{}, 0, len(n.Fields)*2+2)
	fields = append(fields, "kind", n.Kind)
	for k, v := range n.Fields {
		fields = append(fields, k, v)
	}
	l.logger.Info(n.Message, fields...)
	return nil
}
