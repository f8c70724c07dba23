package security_test

import (
	"testing"
	"time"

	"github.com/mateit-cloudware/mate-sentinel/internal/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGuardEngine(cfg security.Config) (*security.Engine, *security.MemoryAttemptStore) {
	attempts := security.NewMemoryAttemptStore()
	engine := security.NewEngineWithStores(cfg, security.Hooks{}, security.Stores{Attempts: attempts}, testLogger())
	return engine, attempts
}

// expireLock rewinds an identifier's lock so tests can cross the unlock
// boundary without sleeping.
func expireLock(store *security.MemoryAttemptStore, identifier string) {
	store.Update(identifier, func(r *security.LoginAttemptRecord) {
		r.LockedUntil = time.Now().Add(-time.Second)
	})
}

func failLogins(engine *security.Engine, identifier, ip string, n int) {
	for i := 0; i < n; i++ {
		engine.RecordLoginAttempt(identifier, ip, false)
	}
}

func TestBruteForceGuard_AllowsFreshIdentifier(t *testing.T) {
	engine, _ := newGuardEngine(security.DefaultConfig())

	res := engine.CheckLoginAllowed("alice@example.com", "10.0.0.1")
	assert.True(t, res.Allowed)
	assert.Equal(t, 5, res.AttemptsRemaining)
}

func TestBruteForceGuard_LocksAfterMaxAttempts(t *testing.T) {
	engine, _ := newGuardEngine(security.DefaultConfig())

	failLogins(engine, "alice@example.com", "10.0.0.1", 4)
	res := engine.CheckLoginAllowed("alice@example.com", "10.0.0.1")
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.AttemptsRemaining)

	engine.RecordLoginAttempt("alice@example.com", "10.0.0.1", false)

	res = engine.CheckLoginAllowed("alice@example.com", "10.0.0.1")
	assert.False(t, res.Allowed)
	assert.Equal(t, "account_locked", res.Reason)
	require.NotNil(t, res.LockedUntil)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), *res.LockedUntil, 5*time.Second)
}

func TestBruteForceGuard_ProgressiveLockout(t *testing.T) {
	cfg := security.DefaultConfig()
	cfg.BruteForce = security.BruteForceConfig{
		MaxAttempts: 5,
		BaseLockout: 15 * time.Minute,
		MaxLockout:  1440 * time.Minute,
		Progressive: true,
	}
	engine, attempts := newGuardEngine(cfg)

	expected := []time.Duration{15 * time.Minute, 30 * time.Minute, 60 * time.Minute}
	for i, want := range expected {
		failLogins(engine, "bob@example.com", "10.0.0.2", 5)

		res := engine.CheckLoginAllowed("bob@example.com", "10.0.0.2")
		require.False(t, res.Allowed, "lockout %d", i+1)
		require.NotNil(t, res.LockedUntil)
		assert.WithinDuration(t, time.Now().Add(want), *res.LockedUntil, 5*time.Second,
			"lockout %d should last %s", i+1, want)

		expireLock(attempts, "bob@example.com")
		res = engine.CheckLoginAllowed("bob@example.com", "10.0.0.2")
		assert.True(t, res.Allowed, "expired lock %d should auto-clear", i+1)
	}
}

func TestBruteForceGuard_LockoutCappedAt24h(t *testing.T) {
	cfg := security.DefaultConfig()
	cfg.BruteForce = security.BruteForceConfig{
		MaxAttempts: 5,
		BaseLockout: 15 * time.Minute,
		MaxLockout:  1440 * time.Minute,
		Progressive: true,
	}
	engine, attempts := newGuardEngine(cfg)

	// Drive the lock count high enough that doubling would exceed the cap.
	for i := 0; i < 10; i++ {
		failLogins(engine, "carol@example.com", "10.0.0.3", 5)
		if i < 9 {
			expireLock(attempts, "carol@example.com")
			engine.CheckLoginAllowed("carol@example.com", "10.0.0.3")
		}
	}

	res := engine.CheckLoginAllowed("carol@example.com", "10.0.0.3")
	require.False(t, res.Allowed)
	require.NotNil(t, res.LockedUntil)
	assert.WithinDuration(t, time.Now().Add(1440*time.Minute), *res.LockedUntil, 5*time.Second)
}

func TestBruteForceGuard_SuccessResetsAttempts(t *testing.T) {
	engine, attempts := newGuardEngine(security.DefaultConfig())

	failLogins(engine, "dave@example.com", "10.0.0.4", 4)
	engine.RecordLoginAttempt("dave@example.com", "10.0.0.4", true)

	rec, ok := attempts.Get("dave@example.com")
	require.True(t, ok)
	assert.Equal(t, 0, rec.Attempts)
	assert.False(t, rec.Locked(time.Now()))

	// The next failure counts as attempt 1, not 5.
	engine.RecordLoginAttempt("dave@example.com", "10.0.0.4", false)
	res := engine.CheckLoginAllowed("dave@example.com", "10.0.0.4")
	assert.True(t, res.Allowed)
	assert.Equal(t, 4, res.AttemptsRemaining)
}

func TestBruteForceGuard_LockMarksIPAndEmitsEvent(t *testing.T) {
	engine, _ := newGuardEngine(security.DefaultConfig())

	failLogins(engine, "eve@example.com", "10.0.0.5", 5)

	status := engine.IsSuspiciousIP("10.0.0.5")
	assert.Equal(t, 10, status.Score)
	assert.Contains(t, status.Reasons, "brute_force")

	events := engine.Events(security.EventFilter{Type: security.EventBruteForceDetected})
	require.Len(t, events, 1)
	assert.Equal(t, security.SeverityHigh, events[0].Severity)
	assert.Equal(t, "10.0.0.5", events[0].IP)
	assert.Equal(t, "eve@example.com", events[0].Details["identifier"])
}

func TestBruteForceGuard_BlockedIPDeniedRegardlessOfIdentifier(t *testing.T) {
	engine, _ := newGuardEngine(security.DefaultConfig())
	engine.BlockIP("10.0.0.6", "test")

	res := engine.CheckLoginAllowed("fresh@example.com", "10.0.0.6")
	assert.False(t, res.Allowed)
	assert.Equal(t, "ip_blocked", res.Reason)
}

func TestBruteForceGuard_DisabledProgressiveUsesBase(t *testing.T) {
	cfg := security.DefaultConfig()
	cfg.BruteForce = security.BruteForceConfig{
		MaxAttempts: 3,
		BaseLockout: 10 * time.Minute,
		MaxLockout:  time.Hour,
		Progressive: false,
	}
	engine, attempts := newGuardEngine(cfg)

	for i := 0; i < 2; i++ {
		failLogins(engine, "frank@example.com", "10.0.0.7", 3)
		res := engine.CheckLoginAllowed("frank@example.com", "10.0.0.7")
		require.False(t, res.Allowed)
		require.NotNil(t, res.LockedUntil)
		assert.WithinDuration(t, time.Now().Add(10*time.Minute), *res.LockedUntil, 5*time.Second)
		expireLock(attempts, "frank@example.com")
		engine.CheckLoginAllowed("frank@example.com", "10.0.0.7")
	}
}

func TestMemoryAttemptStore_EvictInactive(t *testing.T) {
	store := security.NewMemoryAttemptStore()

	store.Update("stale", func(r *security.LoginAttemptRecord) {
		r.Attempts = 2
		r.LastAttempt = time.Now().Add(-48 * time.Hour)
	})
	store.Update("stale-but-locked", func(r *security.LoginAttemptRecord) {
		r.LastAttempt = time.Now().Add(-48 * time.Hour)
		r.LockedUntil = time.Now().Add(time.Hour)
	})
	store.Update("recent", func(r *security.LoginAttemptRecord) {
		r.LastAttempt = time.Now()
	})

	evicted := store.EvictInactive(time.Now().Add(-24 * time.Hour))
	assert.Equal(t, 1, evicted)

	_, ok := store.Get("stale")
	assert.False(t, ok)
	_, ok = store.Get("stale-but-locked")
	assert.True(t, ok, "records with an active lock are never evicted")
	_, ok = store.Get("recent")
	assert.True(t, ok)
}
