package security_test

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/mateit-cloudware/mate-sentinel/internal/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestEngine(cfg security.Config) *security.Engine {
	return security.NewEngine(cfg, security.Hooks{}, testLogger())
}

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	cfg := security.DefaultConfig()
	cfg.RateLimit = security.RateLimitConfig{IPPerMinute: 5}
	engine := newTestEngine(cfg)

	for i := 0; i < 5; i++ {
		res := engine.CheckRateLimit("10.0.0.1", "", "/api/flows")
		assert.True(t, res.Allowed, "request %d should be allowed", i+1)
	}

	res := engine.CheckRateLimit("10.0.0.1", "", "/api/flows")
	assert.False(t, res.Allowed)
	assert.Equal(t, security.ScopeIP, res.Scope)
	assert.Greater(t, res.RetryAfterSeconds, 0)
	assert.Equal(t, "ip_rate_limit_exceeded", res.Reason)
}

func TestRateLimiter_IndependentKeys(t *testing.T) {
	cfg := security.DefaultConfig()
	cfg.RateLimit = security.RateLimitConfig{IPPerMinute: 2}
	engine := newTestEngine(cfg)

	for i := 0; i < 2; i++ {
		assert.True(t, engine.CheckRateLimit("10.0.0.1", "", "/a").Allowed)
	}
	assert.False(t, engine.CheckRateLimit("10.0.0.1", "", "/a").Allowed)

	// A different IP has its own window.
	assert.True(t, engine.CheckRateLimit("10.0.0.2", "", "/a").Allowed)
}

func TestRateLimiter_UserScope(t *testing.T) {
	cfg := security.DefaultConfig()
	cfg.RateLimit = security.RateLimitConfig{UserPerMinute: 3}
	engine := newTestEngine(cfg)

	for i := 0; i < 3; i++ {
		assert.True(t, engine.CheckRateLimit("10.0.0.1", "user-1", "/a").Allowed)
	}

	res := engine.CheckRateLimit("10.0.0.1", "user-1", "/a")
	assert.False(t, res.Allowed)
	assert.Equal(t, security.ScopeUser, res.Scope)

	// Unauthenticated traffic skips the user scope entirely.
	assert.True(t, engine.CheckRateLimit("10.0.0.1", "", "/a").Allowed)
}

func TestRateLimiter_EndpointLongestPrefixMatch(t *testing.T) {
	cfg := security.DefaultConfig()
	cfg.RateLimit = security.RateLimitConfig{
		Endpoints: []security.EndpointLimit{
			{Prefix: "/api", PerMinute: 100},
			{Prefix: "/api/auth", PerMinute: 2},
		},
	}
	engine := newTestEngine(cfg)

	// /api/auth/login matches the longer /api/auth prefix with its tighter budget.
	assert.True(t, engine.CheckRateLimit("10.0.0.1", "", "/api/auth/login").Allowed)
	assert.True(t, engine.CheckRateLimit("10.0.0.2", "", "/api/auth/login").Allowed)

	res := engine.CheckRateLimit("10.0.0.3", "", "/api/auth/login")
	assert.False(t, res.Allowed)
	assert.Equal(t, security.ScopeEndpoint, res.Scope)

	// Unmatched endpoints carry no endpoint-scoped limit.
	for i := 0; i < 10; i++ {
		assert.True(t, engine.CheckRateLimit("10.0.0.4", "", "/health").Allowed)
	}
}

func TestRateLimiter_BlockedIPDeniedFirst(t *testing.T) {
	engine := newTestEngine(security.DefaultConfig())
	engine.BlockIP("10.0.0.9", "test")

	res := engine.CheckRateLimit("10.0.0.9", "user-1", "/api/flows")
	assert.False(t, res.Allowed)
	assert.Equal(t, security.ScopeBlocklist, res.Scope)
	assert.Equal(t, "ip_blocked", res.Reason)
}

func TestRateLimiter_DenialEmitsEvent(t *testing.T) {
	cfg := security.DefaultConfig()
	cfg.RateLimit = security.RateLimitConfig{IPPerMinute: 1}
	engine := newTestEngine(cfg)

	engine.CheckRateLimit("10.0.0.1", "", "/api/flows")
	engine.CheckRateLimit("10.0.0.1", "", "/api/flows")

	events := engine.Events(security.EventFilter{Type: security.EventRateLimitExceeded})
	require.Len(t, events, 1)
	assert.Equal(t, "10.0.0.1", events[0].IP)
	assert.Equal(t, "ip", events[0].Details["scope"])
}

func TestMemoryWindowStore_WindowReset(t *testing.T) {
	store := security.NewMemoryWindowStore()
	now := time.Now()

	count, resetAt := store.Hit("k", 50*time.Millisecond, now)
	assert.Equal(t, 1, count)
	assert.Equal(t, now.Add(50*time.Millisecond), resetAt)

	count, _ = store.Hit("k", 50*time.Millisecond, now)
	assert.Equal(t, 2, count)

	// Past the reset point the counter restarts at 1.
	later := now.Add(51 * time.Millisecond)
	count, resetAt = store.Hit("k", 50*time.Millisecond, later)
	assert.Equal(t, 1, count)
	assert.Equal(t, later.Add(50*time.Millisecond), resetAt)
}

func TestMemoryWindowStore_EvictExpired(t *testing.T) {
	store := security.NewMemoryWindowStore()
	now := time.Now()

	store.Hit("a", time.Minute, now)
	store.Hit("b", 10*time.Millisecond, now)
	require.Equal(t, 2, store.Len())

	evicted := store.EvictExpired(now.Add(20 * time.Millisecond))
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 1, store.Len())
}

func TestRateLimiter_NoOverAdmissionUnderConcurrency(t *testing.T) {
	const limit = 50
	const callers = 200

	cfg := security.DefaultConfig()
	cfg.RateLimit = security.RateLimitConfig{IPPerMinute: limit}
	engine := newTestEngine(cfg)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if engine.CheckRateLimit("10.0.0.1", "", "/api/flows").Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, limit, allowed, "allowed results must never exceed the window limit")
}

func TestRateLimiter_ConcurrentDistinctKeys(t *testing.T) {
	cfg := security.DefaultConfig()
	cfg.RateLimit = security.RateLimitConfig{IPPerMinute: 10}
	engine := newTestEngine(cfg)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ip := fmt.Sprintf("10.0.1.%d", n)
			for j := 0; j < 10; j++ {
				assert.True(t, engine.CheckRateLimit(ip, "", "/a").Allowed)
			}
		}(i)
	}
	wg.Wait()
}
