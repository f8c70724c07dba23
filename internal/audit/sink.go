package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/mateit-cloudware/mate-sentinel/internal/security"
)

// Sink receives every security event the engine records.
type Sink interface {
	Write(ctx context.Context, event security.SecurityEvent) error
}

// LogSink writes audit records to the structured log only. Used when the
// audit database is disabled.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Write(ctx context.Context, event security.SecurityEvent) error {
	s.logger.InfoContext(ctx, "audit record",
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", string(event.Type)),
		slog.String("severity", string(event.Severity)),
		slog.String("ip", event.IP),
		slog.String("user_id", event.UserID),
		slog.String("endpoint", event.Endpoint),
	)
	return nil
}

// Forwarder adapts a Sink into the engine's audit hook. Writes happen on a
// background goroutine so a slow sink never blocks request handling; a write
// failure is logged and dropped.
type Forwarder struct {
	sink    Sink
	timeout time.Duration
	logger  *slog.Logger
}

func NewForwarder(sink Sink, timeout time.Duration, logger *slog.Logger) *Forwarder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Forwarder{sink: sink, timeout: timeout, logger: logger}
}

// Forward is the hook wired into the detection engine.
func (f *Forwarder) Forward(event security.SecurityEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		defer cancel()

		if err := f.sink.Write(ctx, event); err != nil {
			f.logger.Error("failed to persist audit record",
				slog.String("event_id", event.ID.String()),
				slog.Any("error", err),
			)
		}
	}()
}
