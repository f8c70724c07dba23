package security_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mateit-cloudware/mate-sentinel/internal/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPRegistry_ScoreAccumulatesToBlock(t *testing.T) {
	engine := newTestEngine(security.DefaultConfig())

	for i := 0; i < 9; i++ {
		engine.MarkSuspiciousIP("203.0.113.1", fmt.Sprintf("probe-%d", i))
	}

	status := engine.IsSuspiciousIP("203.0.113.1")
	assert.True(t, status.Suspicious)
	assert.Equal(t, 90, status.Score)
	assert.False(t, engine.IsBlockedIP("203.0.113.1"), "score 90 is suspicious but not blocked")

	engine.MarkSuspiciousIP("203.0.113.1", "probe-9")
	assert.True(t, engine.IsBlockedIP("203.0.113.1"))
	assert.Contains(t, engine.BlockedIPs(), "203.0.113.1")
}

func TestIPRegistry_SuspiciousThreshold(t *testing.T) {
	engine := newTestEngine(security.DefaultConfig())

	engine.MarkSuspiciousIP("203.0.113.2", "probe")
	engine.MarkSuspiciousIP("203.0.113.2", "probe")
	assert.False(t, engine.IsSuspiciousIP("203.0.113.2").Suspicious, "score 20 is below the suspicious threshold")

	engine.MarkSuspiciousIP("203.0.113.2", "probe")
	assert.True(t, engine.IsSuspiciousIP("203.0.113.2").Suspicious)
}

func TestIPRegistry_ReasonsDeduplicated(t *testing.T) {
	engine := newTestEngine(security.DefaultConfig())

	engine.MarkSuspiciousIP("203.0.113.3", "xss")
	engine.MarkSuspiciousIP("203.0.113.3", "xss")
	engine.MarkSuspiciousIP("203.0.113.3", "sql_injection")

	status := engine.IsSuspiciousIP("203.0.113.3")
	assert.Equal(t, 30, status.Score, "score grows per call")
	assert.Equal(t, []string{"sql_injection", "xss"}, status.Reasons, "reasons are a deduplicated set")
}

func TestIPRegistry_ThresholdBlockEmitsCriticalEvent(t *testing.T) {
	engine := newTestEngine(security.DefaultConfig())

	for i := 0; i < 10; i++ {
		engine.MarkSuspiciousIP("203.0.113.4", "probe")
	}

	events := engine.Events(security.EventFilter{Type: security.EventIPBlocked})
	require.Len(t, events, 1, "the block transition fires exactly once")
	assert.Equal(t, security.SeverityCritical, events[0].Severity)
	assert.Equal(t, "203.0.113.4", events[0].IP)

	// Further marks keep raising the score but never re-fire the transition.
	engine.MarkSuspiciousIP("203.0.113.4", "probe")
	assert.Len(t, engine.Events(security.EventFilter{Type: security.EventIPBlocked}), 1)
}

func TestIPRegistry_UnblockClearsEverything(t *testing.T) {
	engine := newTestEngine(security.DefaultConfig())

	for i := 0; i < 10; i++ {
		engine.MarkSuspiciousIP("203.0.113.5", "probe")
	}
	require.True(t, engine.IsBlockedIP("203.0.113.5"))

	engine.UnblockIP("203.0.113.5")

	status := engine.IsSuspiciousIP("203.0.113.5")
	assert.False(t, status.Suspicious)
	assert.Equal(t, 0, status.Score)
	assert.Empty(t, status.Reasons)
	assert.NotContains(t, engine.BlockedIPs(), "203.0.113.5")

	// Idempotent: a second unblock changes nothing and emits no extra event.
	engine.UnblockIP("203.0.113.5")
	assert.Len(t, engine.Events(security.EventFilter{Type: security.EventIPUnblocked}), 1)
}

func TestIPRegistry_ManualBlockIdempotent(t *testing.T) {
	engine := newTestEngine(security.DefaultConfig())

	engine.BlockIP("203.0.113.6", "abuse report")
	engine.BlockIP("203.0.113.6", "abuse report")

	assert.Equal(t, []string{"203.0.113.6"}, engine.BlockedIPs())
	assert.Len(t, engine.Events(security.EventFilter{Type: security.EventIPBlocked}), 1)
}

func TestIPRegistry_ConcurrentMarking(t *testing.T) {
	engine := newTestEngine(security.DefaultConfig())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			engine.MarkSuspiciousIP("203.0.113.7", fmt.Sprintf("r-%d", n))
		}(i)
	}
	wg.Wait()

	status := engine.IsSuspiciousIP("203.0.113.7")
	assert.Equal(t, 500, status.Score, "no increments lost under concurrency")
	assert.True(t, engine.IsBlockedIP("203.0.113.7"))
	assert.Len(t, engine.Events(security.EventFilter{Type: security.EventIPBlocked}), 1)
}

type expiryDecay struct {
	ttl time.Duration
}

func (d expiryDecay) Decay(score int, lastSeen, now time.Time) int {
	if !lastSeen.IsZero() && now.Sub(lastSeen) >= d.ttl {
		return 0
	}
	return score
}

func TestIPRegistry_DecayPolicyHook(t *testing.T) {
	registry := security.NewIPRegistry(security.DefaultRegistryConfig(), expiryDecay{ttl: 5 * time.Millisecond}, nil)

	registry.MarkSuspicious("203.0.113.8", "probe")
	assert.Equal(t, 10, registry.Status("203.0.113.8").Score)

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, registry.Status("203.0.113.8").Score, "expired score decays to zero under the policy")
}
