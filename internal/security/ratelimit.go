package security

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

// WindowStore is the storage contract for fixed-window counters. Hit must be
// atomic per key: either the current window is incremented or an expired
// window is replaced with {count:1, resetAt: now+period} in a single step.
// The default implementation is map-backed; a distributed backend can be
// swapped in without changing limiter logic.
type WindowStore interface {
	Hit(key string, period time.Duration, now time.Time) (count int, resetAt time.Time)
	EvictExpired(now time.Time) int
	Len() int
}

// EndpointLimit pairs a path prefix with its request budgets. A zero budget
// disables that window for the prefix.
type EndpointLimit struct {
	Prefix    string
	PerMinute int
	PerHour   int
}

// RateLimitConfig holds fixed-window budgets per scope. Zero values disable
// the corresponding check.
type RateLimitConfig struct {
	IPPerMinute   int
	IPPerHour     int
	UserPerMinute int
	UserPerHour   int
	Endpoints     []EndpointLimit
}

// DefaultRateLimitConfig mirrors the platform defaults.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		IPPerMinute:   100,
		IPPerHour:     2000,
		UserPerMinute: 300,
		UserPerHour:   5000,
		Endpoints: []EndpointLimit{
			{Prefix: "/auth", PerMinute: 10, PerHour: 100},
			{Prefix: "/api/admin", PerMinute: 60, PerHour: 600},
		},
	}
}

// blockChecker is the slice of the IP registry the limiter needs.
type blockChecker interface {
	IsBlocked(ip string) bool
}

// eventRecorder receives the engine's security events.
type eventRecorder interface {
	RecordSecurityEvent(eventType string, severity Severity, ip, userID, endpoint string, details map[string]any) SecurityEvent
}

// RateLimiter applies fixed-window request budgets per IP, user and endpoint,
// consulting the IP blocklist first. Checks run in order
// blocklist -> IP -> user -> endpoint and short-circuit on the first denial.
type RateLimiter struct {
	store    WindowStore
	cfg      RateLimitConfig
	blocks   blockChecker
	recorder eventRecorder
	logger   *slog.Logger
}

// NewRateLimiter creates a limiter over the given store. Endpoint limits are
// sorted longest-prefix-first at construction so lookups are a simple scan.
func NewRateLimiter(store WindowStore, cfg RateLimitConfig, blocks blockChecker, recorder eventRecorder, logger *slog.Logger) *RateLimiter {
	endpoints := make([]EndpointLimit, len(cfg.Endpoints))
	copy(endpoints, cfg.Endpoints)
	sort.SliceStable(endpoints, func(i, j int) bool {
		return len(endpoints[i].Prefix) > len(endpoints[j].Prefix)
	})
	cfg.Endpoints = endpoints

	return &RateLimiter{
		store:    store,
		cfg:      cfg,
		blocks:   blocks,
		recorder: recorder,
		logger:   logger,
	}
}

// Check evaluates all applicable scopes for a request. userID may be empty
// for unauthenticated traffic, which skips the user scope. The first denial
// wins; each scope's window is independent.
func (rl *RateLimiter) Check(ip, userID, endpoint string) RateLimitResult {
	now := time.Now()

	if rl.blocks != nil && rl.blocks.IsBlocked(ip) {
		rl.logger.Warn("request from blocked ip denied",
			slog.String("ip", ip),
			slog.String("endpoint", endpoint))
		return RateLimitResult{Allowed: false, Reason: "ip_blocked", Scope: ScopeBlocklist}
	}

	if res, denied := rl.checkScope(ScopeIP, "ip:"+ip, rl.cfg.IPPerMinute, rl.cfg.IPPerHour, now); denied {
		rl.deny(res, ip, userID, endpoint)
		return res
	}

	if userID != "" {
		if res, denied := rl.checkScope(ScopeUser, "user:"+userID, rl.cfg.UserPerMinute, rl.cfg.UserPerHour, now); denied {
			rl.deny(res, ip, userID, endpoint)
			return res
		}
	}

	if limit, ok := rl.matchEndpoint(endpoint); ok {
		if res, denied := rl.checkScope(ScopeEndpoint, "endpoint:"+limit.Prefix, limit.PerMinute, limit.PerHour, now); denied {
			rl.deny(res, ip, userID, endpoint)
			return res
		}
	}

	return RateLimitResult{Allowed: true}
}

// checkScope runs the minute and hour windows for one scope. A zero limit
// disables that window.
func (rl *RateLimiter) checkScope(scope Scope, key string, perMinute, perHour int, now time.Time) (RateLimitResult, bool) {
	if perMinute > 0 {
		count, resetAt := rl.store.Hit(key+":1m", time.Minute, now)
		if count > perMinute {
			return deniedResult(scope, resetAt, now), true
		}
	}
	if perHour > 0 {
		count, resetAt := rl.store.Hit(key+":1h", time.Hour, now)
		if count > perHour {
			return deniedResult(scope, resetAt, now), true
		}
	}
	return RateLimitResult{Allowed: true}, false
}

// matchEndpoint returns the longest configured prefix matching the path.
func (rl *RateLimiter) matchEndpoint(path string) (EndpointLimit, bool) {
	for _, limit := range rl.cfg.Endpoints {
		if strings.HasPrefix(path, limit.Prefix) {
			return limit, true
		}
	}
	return EndpointLimit{}, false
}

func (rl *RateLimiter) deny(res RateLimitResult, ip, userID, endpoint string) {
	rl.logger.Warn("rate limit exceeded",
		slog.String("ip", ip),
		slog.String("user_id", userID),
		slog.String("endpoint", endpoint),
		slog.String("scope", string(res.Scope)),
		slog.Int("retry_after_seconds", res.RetryAfterSeconds))

	if rl.recorder != nil {
		rl.recorder.RecordSecurityEvent(EventRateLimitExceeded, SeverityMedium, ip, userID, endpoint, map[string]any{
			"scope":       string(res.Scope),
			"retry_after": res.RetryAfterSeconds,
		})
	}
}

func deniedResult(scope Scope, resetAt, now time.Time) RateLimitResult {
	retry := int((resetAt.Sub(now) + time.Second - 1) / time.Second)
	if retry < 1 {
		retry = 1
	}
	return RateLimitResult{
		Allowed:           false,
		RetryAfterSeconds: retry,
		Reason:            fmt.Sprintf("%s_rate_limit_exceeded", scope),
		Scope:             scope,
	}
}
