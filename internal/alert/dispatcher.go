package alert

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/mateit-cloudware/mate-sentinel/internal/security"
)

// DispatcherConfig controls alert delivery behavior.
type DispatcherConfig struct {
	// MaxPerMinute caps outbound alerts so an attack cannot flood the
	// notification channel. Zero falls back to 10.
	MaxPerMinute int
	// Timeout bounds each delivery attempt. Zero falls back to 10s.
	Timeout time.Duration
}

// Dispatcher forwards security events to a Notifier asynchronously,
// throttled by a token bucket. Delivery failures are logged and dropped;
// alerting never blocks or fails request handling.
type Dispatcher struct {
	notifier Notifier
	limiter  *rate.Limiter
	timeout  time.Duration
	logger   *slog.Logger
}

// NewDispatcher creates a throttled async alert dispatcher.
func NewDispatcher(notifier Notifier, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	maxPerMinute := cfg.MaxPerMinute
	if maxPerMinute <= 0 {
		maxPerMinute = 10
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Dispatcher{
		notifier: notifier,
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(maxPerMinute)), maxPerMinute),
		timeout:  timeout,
		logger:   logger,
	}
}

// Dispatch is the hook wired into the detection engine. It returns
// immediately; delivery happens on a background goroutine.
func (d *Dispatcher) Dispatch(event security.SecurityEvent) {
	if !d.limiter.Allow() {
		d.logger.Debug("alert throttled",
			slog.String("event_id", event.ID.String()),
			slog.String("event_type", string(event.Type)))
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.notifier.Notify(ctx, event); err != nil {
			d.logger.Error("alert delivery failed",
				slog.String("event_id", event.ID.String()),
				slog.String("error", err.Error()))
		}
	}()
}
