package alert

import (
	"context"
	"log/slog"

	"github.com/mateit-cloudware/mate-sentinel/internal/security"
)

// Notifier delivers a security alert to an operator-facing channel.
type Notifier interface {
	Notify(ctx context.Context, event security.SecurityEvent) error
}

// LogNotifier writes alerts to the structured log. It is the default
// delivery channel when email alerting is disabled.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier that logs alerts at warn level.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, event security.SecurityEvent) error {
	n.logger.Warn("security alert",
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", string(event.Type)),
		slog.String("severity", string(event.Severity)),
		slog.String("ip", event.IP),
		slog.String("endpoint", event.Endpoint),
		slog.Any("details", event.Details),
	)
	return nil
}
