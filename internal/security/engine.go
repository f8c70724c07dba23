package security

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Config aggregates the engine's tunables. Zero values fall back to the
// platform defaults; missing configuration never fails construction.
type Config struct {
	RateLimit      RateLimitConfig
	BruteForce     BruteForceConfig
	Registry       RegistryConfig
	Scorer         ScorerConfig
	MaxEvents      int
	EventRetention time.Duration
}

// DefaultConfig returns the platform defaults for every subsystem.
func DefaultConfig() Config {
	return Config{
		RateLimit:      DefaultRateLimitConfig(),
		BruteForce:     DefaultBruteForceConfig(),
		Registry:       DefaultRegistryConfig(),
		Scorer:         DefaultScorerConfig(),
		MaxEvents:      10000,
		EventRetention: 7 * 24 * time.Hour,
	}
}

// Hooks carries the engine's outbound collaborators. Both are optional and
// must be failure tolerant: the engine invokes them inline on the hot path,
// so implementations dispatch asynchronously and swallow downstream errors.
type Hooks struct {
	// Alert fires for critical and high severity events.
	Alert func(SecurityEvent)
	// Audit fires for every recorded event.
	Audit func(SecurityEvent)
}

// Stores bundles the pluggable storage backends. Nil fields default to the
// in-memory implementations.
type Stores struct {
	Windows  WindowStore
	Attempts AttemptStore
	Decay    DecayPolicy
}

// Engine is the process-wide threat detection service: rate limiter, brute
// force guard, suspicious-activity scorer, and IP blocklist with its event
// log, all over shared concurrent state. Construct one instance at startup
// and inject it wherever the request pipeline needs it.
type Engine struct {
	cfg      Config
	limiter  *RateLimiter
	guard    *BruteForceGuard
	scorer   *Scorer
	registry *IPRegistry
	events   *EventLog
	windows  WindowStore
	attempts AttemptStore
	hooks    Hooks
	logger   *slog.Logger
}

// NewEngine creates an engine with in-memory storage.
func NewEngine(cfg Config, hooks Hooks, logger *slog.Logger) *Engine {
	return NewEngineWithStores(cfg, hooks, Stores{}, logger)
}

// NewEngineWithStores creates an engine over the given storage backends.
func NewEngineWithStores(cfg Config, hooks Hooks, stores Stores, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if stores.Windows == nil {
		stores.Windows = NewMemoryWindowStore()
	}
	if stores.Attempts == nil {
		stores.Attempts = NewMemoryAttemptStore()
	}
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = 10000
	}
	if cfg.EventRetention <= 0 {
		cfg.EventRetention = 7 * 24 * time.Hour
	}
	if cfg.BruteForce.InactivityTTL <= 0 {
		cfg.BruteForce.InactivityTTL = 24 * time.Hour
	}

	e := &Engine{
		cfg:    cfg,
		events: NewEventLog(cfg.MaxEvents),
		hooks:  hooks,
		logger: logger,
	}
	e.registry = NewIPRegistry(cfg.Registry, stores.Decay, e.onThresholdBlock)
	e.limiter = NewRateLimiter(stores.Windows, cfg.RateLimit, e.registry, e, logger)
	e.guard = NewBruteForceGuard(stores.Attempts, cfg.BruteForce, e.registry, e.registry, e, logger)
	e.scorer = NewScorer(cfg.Scorer, e.registry, e, logger)

	e.windows = stores.Windows
	e.attempts = stores.Attempts
	return e
}

// CheckRateLimit evaluates the blocklist and the fixed-window budgets for
// the request. userID may be empty for unauthenticated traffic.
func (e *Engine) CheckRateLimit(ip, userID, endpoint string) RateLimitResult {
	return e.limiter.Check(ip, userID, endpoint)
}

// CheckLoginAllowed decides whether a login attempt may proceed.
func (e *Engine) CheckLoginAllowed(identifier, ip string) LoginCheckResult {
	return e.guard.CheckLoginAllowed(identifier, ip)
}

// RecordLoginAttempt updates brute-force state after credential verification.
func (e *Engine) RecordLoginAttempt(identifier, ip string, success bool) {
	e.guard.RecordLoginAttempt(identifier, ip, success)
}

// AnalyzeRequest inspects request content for injection signatures.
func (e *Engine) AnalyzeRequest(ip, rawURL string, query url.Values, body []byte) RequestAnalysis {
	return e.scorer.AnalyzeRequest(ip, rawURL, query, body)
}

// MarkSuspiciousIP adds suspicion points to an IP.
func (e *Engine) MarkSuspiciousIP(ip, reason string) {
	e.registry.MarkSuspicious(ip, reason)
}

// IsSuspiciousIP reports an IP's suspicion state.
func (e *Engine) IsSuspiciousIP(ip string) IPStatus {
	return e.registry.Status(ip)
}

// IsBlockedIP reports blocked-set membership.
func (e *Engine) IsBlockedIP(ip string) bool {
	return e.registry.IsBlocked(ip)
}

// BlockIP manually adds an IP to the blocked set and records the action.
func (e *Engine) BlockIP(ip, reason string) {
	if e.registry.Block(ip) {
		e.RecordSecurityEvent(EventIPBlocked, SeverityHigh, ip, "", "", map[string]any{
			"reason": reason,
			"manual": true,
		})
	}
}

// UnblockIP removes an IP from the blocked set and clears its suspicion
// score and reasons. Idempotent.
func (e *Engine) UnblockIP(ip string) {
	if e.registry.Unblock(ip) {
		e.RecordSecurityEvent(EventIPUnblocked, SeverityLow, ip, "", "", nil)
	}
}

// BlockedIPs returns the blocked set sorted.
func (e *Engine) BlockedIPs() []string {
	return e.registry.BlockedIPs()
}

// RecordSecurityEvent appends an event to the log, writes it to the service
// log at the severity-mapped level, and notifies the outbound hooks.
// Critical and high severities additionally trigger the alert hook.
func (e *Engine) RecordSecurityEvent(eventType string, severity Severity, ip, userID, endpoint string, details map[string]any) SecurityEvent {
	ev := e.events.Append(eventType, severity, ip, userID, endpoint, details)

	e.logger.LogAttrs(context.Background(), LogLevelFor(severity), "security event",
		slog.String("event_id", ev.ID.String()),
		slog.String("event_type", eventType),
		slog.String("severity", string(severity)),
		slog.String("ip", ip),
		slog.String("endpoint", endpoint))

	if e.hooks.Audit != nil {
		e.hooks.Audit(ev)
	}
	if e.hooks.Alert != nil && (severity == SeverityCritical || severity == SeverityHigh) {
		e.hooks.Alert(ev)
	}
	return ev
}

// Events returns events matching the filter, newest first.
func (e *Engine) Events(filter EventFilter) []SecurityEvent {
	return e.events.Events(filter)
}

// MarkEventHandled flips the handled flag on one event.
func (e *Engine) MarkEventHandled(id uuid.UUID) error {
	return e.events.MarkHandled(id)
}

// Statistics aggregates event counts over the trailing window plus registry
// sizes.
func (e *Engine) Statistics(windowHours int) Statistics {
	if windowHours <= 0 {
		windowHours = 24
	}
	cutoff := time.Now().Add(-time.Duration(windowHours) * time.Hour)
	total, byType, bySeverity, unhandled := e.events.CountSince(cutoff)
	blocked, suspicious := e.registry.Counts()

	return Statistics{
		WindowHours:   windowHours,
		TotalEvents:   total,
		ByType:        byType,
		BySeverity:    bySeverity,
		BlockedIPs:    blocked,
		SuspiciousIPs: suspicious,
		UnhandledHigh: unhandled,
	}
}

// SweepReport summarizes one pass of the periodic sweep.
type SweepReport struct {
	WindowsEvicted  int
	AttemptsEvicted int
	EventsPruned    int
}

// Sweep evicts expired rate windows, idle unlocked login records, and events
// past the retention period. Suspicious entries and the blocked set are
// never swept; they persist until explicit admin action.
func (e *Engine) Sweep(now time.Time) SweepReport {
	return SweepReport{
		WindowsEvicted:  e.windows.EvictExpired(now),
		AttemptsEvicted: e.attempts.EvictInactive(now.Add(-e.cfg.BruteForce.InactivityTTL)),
		EventsPruned:    e.events.PruneOlderThan(now.Add(-e.cfg.EventRetention)),
	}
}

// onThresholdBlock records the automatic score-threshold block transition.
func (e *Engine) onThresholdBlock(ip string, score int, reasons []string) {
	e.RecordSecurityEvent(EventIPBlocked, SeverityCritical, ip, "", "", map[string]any{
		"score":   score,
		"reasons": reasons,
	})
}
