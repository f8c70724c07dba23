package security

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Severity levels for security events
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Event types emitted by the engine
const (
	EventRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	EventBruteForceDetected = "BRUTE_FORCE_DETECTED"
	EventSQLInjection       = "SQL_INJECTION_ATTEMPT"
	EventXSS                = "XSS_ATTEMPT"
	EventPathTraversal      = "PATH_TRAVERSAL_ATTEMPT"
	EventIPBlocked          = "IP_BLOCKED"
	EventIPUnblocked        = "IP_UNBLOCKED"
)

// Threat labels produced by the scorer
const (
	ThreatSQLInjection  = "sql_injection"
	ThreatXSS           = "xss"
	ThreatPathTraversal = "path_traversal"
)

// Scope identifies which rate-limit dimension produced a decision
type Scope string

const (
	ScopeBlocklist Scope = "blocklist"
	ScopeIP        Scope = "ip"
	ScopeUser      Scope = "user"
	ScopeEndpoint  Scope = "endpoint"
)

// SecurityEvent is an immutable audit record of a detected security-relevant
// occurrence. Only the Handled flag may change after creation.
type SecurityEvent struct {
	ID        uuid.UUID      `json:"id"`
	Type      string         `json:"type"`
	Severity  Severity       `json:"severity"`
	IP        string         `json:"ip"`
	UserID    string         `json:"user_id,omitempty"`
	Endpoint  string         `json:"endpoint,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Handled   bool           `json:"handled"`
}

// RateLimitResult is the outcome of a rate-limit check. Reason and Scope are
// set only when the request was denied.
type RateLimitResult struct {
	Allowed           bool   `json:"allowed"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
	Reason            string `json:"reason,omitempty"`
	Scope             Scope  `json:"scope,omitempty"`
}

// LoginCheckResult is the outcome of a brute-force guard check.
type LoginCheckResult struct {
	Allowed           bool       `json:"allowed"`
	AttemptsRemaining int        `json:"attempts_remaining,omitempty"`
	LockedUntil       *time.Time `json:"locked_until,omitempty"`
	Reason            string     `json:"reason,omitempty"`
}

// RequestAnalysis is the outcome of content inspection. Threats holds
// deduplicated threat labels, at most one per pattern family.
type RequestAnalysis struct {
	Suspicious bool     `json:"suspicious"`
	Threats    []string `json:"threats"`
}

// IPStatus reports the suspicion state of a single IP.
type IPStatus struct {
	Suspicious bool     `json:"suspicious"`
	Score      int      `json:"score"`
	Reasons    []string `json:"reasons"`
}

// Statistics aggregates event counts over a trailing window, plus the current
// size of the blocklist and suspicious registry.
type Statistics struct {
	WindowHours   int              `json:"window_hours"`
	TotalEvents   int              `json:"total_events"`
	ByType        map[string]int   `json:"by_type"`
	BySeverity    map[Severity]int `json:"by_severity"`
	BlockedIPs    int              `json:"blocked_ips"`
	SuspiciousIPs int              `json:"suspicious_ips"`
	UnhandledHigh int              `json:"unhandled_high"`
}

// LogLevelFor maps event severity to the slog level used when the event is
// written to the service log.
func LogLevelFor(s Severity) slog.Level {
	switch s {
	case SeverityCritical:
		return slog.LevelError
	case SeverityHigh:
		return slog.LevelWarn
	case SeverityMedium:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
