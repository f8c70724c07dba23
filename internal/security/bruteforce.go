package security

import (
	"log/slog"
	"time"
)

// LoginAttemptRecord tracks failed logins for one identifier (username, email
// or IP fallback). LockCount survives unlocks so repeated offenders serve
// progressively longer lockouts.
type LoginAttemptRecord struct {
	Attempts    int
	LockedUntil time.Time // zero when not locked
	LockCount   int
	LastAttempt time.Time
}

// Locked reports whether the record holds an active lock at the given time.
func (r LoginAttemptRecord) Locked(now time.Time) bool {
	return !r.LockedUntil.IsZero() && now.Before(r.LockedUntil)
}

// AttemptStore is the storage contract for login attempt records. Update must
// apply fn atomically per identifier, creating a zero record on first use.
type AttemptStore interface {
	Update(identifier string, fn func(*LoginAttemptRecord)) LoginAttemptRecord
	Get(identifier string) (LoginAttemptRecord, bool)
	Delete(identifier string)
	EvictInactive(cutoff time.Time) int
	Len() int
}

// BruteForceConfig holds the guard's thresholds.
type BruteForceConfig struct {
	MaxAttempts   int
	BaseLockout   time.Duration
	MaxLockout    time.Duration
	Progressive   bool
	InactivityTTL time.Duration // sweep eviction horizon for idle records
}

// DefaultBruteForceConfig mirrors the platform defaults: 5 attempts, 15
// minute base lockout doubling per lock, capped at 24 hours.
func DefaultBruteForceConfig() BruteForceConfig {
	return BruteForceConfig{
		MaxAttempts:   5,
		BaseLockout:   15 * time.Minute,
		MaxLockout:    24 * time.Hour,
		Progressive:   true,
		InactivityTTL: 24 * time.Hour,
	}
}

// ipMarker is the slice of the IP registry the guard needs for its
// cross-component side effect on lock transitions.
type ipMarker interface {
	MarkSuspicious(ip, reason string)
}

// BruteForceGuard tracks failed login attempts per identifier and applies
// progressive lockout. A request from an already-blocked IP is denied
// regardless of identifier state.
type BruteForceGuard struct {
	store    AttemptStore
	cfg      BruteForceConfig
	blocks   blockChecker
	marker   ipMarker
	recorder eventRecorder
	logger   *slog.Logger
}

// NewBruteForceGuard creates a guard over the given store.
func NewBruteForceGuard(store AttemptStore, cfg BruteForceConfig, blocks blockChecker, marker ipMarker, recorder eventRecorder, logger *slog.Logger) *BruteForceGuard {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BaseLockout <= 0 {
		cfg.BaseLockout = 15 * time.Minute
	}
	if cfg.MaxLockout <= 0 {
		cfg.MaxLockout = 24 * time.Hour
	}
	if cfg.InactivityTTL <= 0 {
		cfg.InactivityTTL = 24 * time.Hour
	}
	return &BruteForceGuard{
		store:    store,
		cfg:      cfg,
		blocks:   blocks,
		marker:   marker,
		recorder: recorder,
		logger:   logger,
	}
}

// CheckLoginAllowed decides whether a login attempt for the identifier may
// proceed. An expired lock is cleared (attempts reset) before evaluation.
func (g *BruteForceGuard) CheckLoginAllowed(identifier, ip string) LoginCheckResult {
	if g.blocks != nil && g.blocks.IsBlocked(ip) {
		return LoginCheckResult{Allowed: false, Reason: "ip_blocked"}
	}

	now := time.Now()
	rec := g.store.Update(identifier, func(r *LoginAttemptRecord) {
		if !r.LockedUntil.IsZero() && !now.Before(r.LockedUntil) {
			// Lock expired: back to normal. LockCount is kept for
			// progressive backoff on the next lock.
			r.Attempts = 0
			r.LockedUntil = time.Time{}
		}
	})

	if rec.Locked(now) {
		until := rec.LockedUntil
		return LoginCheckResult{
			Allowed:     false,
			LockedUntil: &until,
			Reason:      "account_locked",
		}
	}

	remaining := g.cfg.MaxAttempts - rec.Attempts
	if remaining < 0 {
		remaining = 0
	}
	return LoginCheckResult{Allowed: true, AttemptsRemaining: remaining}
}

// RecordLoginAttempt updates the identifier's record after credential
// verification. A failure that reaches MaxAttempts locks the identifier,
// marks the source IP suspicious and emits a brute-force event.
func (g *BruteForceGuard) RecordLoginAttempt(identifier, ip string, success bool) {
	now := time.Now()

	var locked bool
	var lockedUntil time.Time
	var lockCount int
	g.store.Update(identifier, func(r *LoginAttemptRecord) {
		r.LastAttempt = now

		if success {
			r.Attempts = 0
			return
		}

		if !r.LockedUntil.IsZero() && !now.Before(r.LockedUntil) {
			r.Attempts = 0
			r.LockedUntil = time.Time{}
		}
		if r.Locked(now) {
			// Attempt while locked; nothing further to count.
			return
		}

		r.Attempts++
		if r.Attempts >= g.cfg.MaxAttempts {
			r.LockCount++
			r.LockedUntil = now.Add(g.lockoutDuration(r.LockCount))
			locked = true
			lockedUntil = r.LockedUntil
			lockCount = r.LockCount
		}
	})

	if !locked {
		return
	}

	g.logger.Warn("identifier locked after repeated failures",
		slog.String("identifier", identifier),
		slog.String("ip", ip),
		slog.Int("lock_count", lockCount),
		slog.Time("locked_until", lockedUntil))

	if g.marker != nil {
		g.marker.MarkSuspicious(ip, "brute_force")
	}
	if g.recorder != nil {
		g.recorder.RecordSecurityEvent(EventBruteForceDetected, SeverityHigh, ip, "", "", map[string]any{
			"identifier":   identifier,
			"lock_count":   lockCount,
			"locked_until": lockedUntil,
		})
	}
}

// lockoutDuration computes the progressive lockout length for the n-th lock:
// base * 2^(n-1), capped at MaxLockout.
func (g *BruteForceGuard) lockoutDuration(lockCount int) time.Duration {
	if !g.cfg.Progressive || lockCount <= 1 {
		return minDuration(g.cfg.BaseLockout, g.cfg.MaxLockout)
	}

	d := g.cfg.BaseLockout
	for i := 1; i < lockCount; i++ {
		d *= 2
		if d >= g.cfg.MaxLockout {
			return g.cfg.MaxLockout
		}
	}
	return minDuration(d, g.cfg.MaxLockout)
}

// Reset clears an identifier's record entirely, including its lock count.
// Intended for manual admin intervention.
func (g *BruteForceGuard) Reset(identifier string) {
	g.store.Delete(identifier)
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
