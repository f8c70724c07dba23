package security

import (
	"sort"
	"sync"
	"time"
)

// RegistryConfig controls suspicion scoring and the block threshold.
type RegistryConfig struct {
	ScorePerThreat      int // points added per MarkSuspicious call
	SuspiciousThreshold int // score at which an IP is reported suspicious
	BlockThreshold      int // score at which an IP is moved to the blocked set
}

// DefaultRegistryConfig mirrors the platform defaults: +10 per threat,
// suspicious at 30, blocked at 100.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		ScorePerThreat:      10,
		SuspiciousThreshold: 30,
		BlockThreshold:      100,
	}
}

// DecayPolicy is an extension point for suspicion-score decay. The default
// engine uses no decay: scores only grow until an explicit unblock.
type DecayPolicy interface {
	// Decay returns the effective score given the stored score and the time
	// of the last recorded threat.
	Decay(score int, lastSeen, now time.Time) int
}

type suspiciousEntry struct {
	score    int
	reasons  map[string]struct{}
	lastSeen time.Time
}

// IPRegistry tracks per-IP suspicion scores and the blocked set. Entries are
// permanent until an explicit unblock; the periodic sweep does not touch them.
type IPRegistry struct {
	mu         sync.Mutex
	suspicious map[string]*suspiciousEntry
	blocked    map[string]struct{}
	cfg        RegistryConfig
	decay      DecayPolicy

	// onBlock fires outside the registry lock when a score crossing moves an
	// IP into the blocked set.
	onBlock func(ip string, score int, reasons []string)
}

// NewIPRegistry creates a registry. decay may be nil for the default
// no-decay behavior. onBlock may be nil.
func NewIPRegistry(cfg RegistryConfig, decay DecayPolicy, onBlock func(ip string, score int, reasons []string)) *IPRegistry {
	if cfg.ScorePerThreat <= 0 {
		cfg.ScorePerThreat = 10
	}
	if cfg.SuspiciousThreshold <= 0 {
		cfg.SuspiciousThreshold = 30
	}
	if cfg.BlockThreshold <= 0 {
		cfg.BlockThreshold = 100
	}
	return &IPRegistry{
		suspicious: make(map[string]*suspiciousEntry),
		blocked:    make(map[string]struct{}),
		cfg:        cfg,
		decay:      decay,
		onBlock:    onBlock,
	}
}

// MarkSuspicious adds points to an IP's score and records the reason. When
// the score reaches the block threshold the IP is unconditionally added to
// the blocked set; that transition is reversible only via Unblock.
func (r *IPRegistry) MarkSuspicious(ip, reason string) {
	now := time.Now()

	r.mu.Lock()
	entry, ok := r.suspicious[ip]
	if !ok {
		entry = &suspiciousEntry{reasons: make(map[string]struct{})}
		r.suspicious[ip] = entry
	}
	if r.decay != nil {
		entry.score = r.decay.Decay(entry.score, entry.lastSeen, now)
	}
	entry.score += r.cfg.ScorePerThreat
	entry.reasons[reason] = struct{}{}
	entry.lastSeen = now

	var crossed bool
	var score int
	var reasons []string
	if entry.score >= r.cfg.BlockThreshold {
		if _, already := r.blocked[ip]; !already {
			r.blocked[ip] = struct{}{}
			crossed = true
			score = entry.score
			reasons = reasonList(entry.reasons)
		}
	}
	r.mu.Unlock()

	if crossed && r.onBlock != nil {
		r.onBlock(ip, score, reasons)
	}
}

// Status reports whether an IP is suspicious (score at or above the
// suspicious threshold) along with its score and deduplicated reasons.
func (r *IPRegistry) Status(ip string) IPStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.suspicious[ip]
	if !ok {
		return IPStatus{Reasons: []string{}}
	}
	score := entry.score
	if r.decay != nil {
		score = r.decay.Decay(score, entry.lastSeen, time.Now())
	}
	return IPStatus{
		Suspicious: score >= r.cfg.SuspiciousThreshold,
		Score:      score,
		Reasons:    reasonList(entry.reasons),
	}
}

// Block adds an IP to the blocked set. Idempotent; reports whether the set
// changed.
func (r *IPRegistry) Block(ip string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.blocked[ip]; ok {
		return false
	}
	r.blocked[ip] = struct{}{}
	return true
}

// Unblock removes an IP from the blocked set and clears its suspicion score
// and reasons. Idempotent; reports whether anything was removed.
func (r *IPRegistry) Unblock(ip string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, wasBlocked := r.blocked[ip]
	_, wasSuspicious := r.suspicious[ip]
	delete(r.blocked, ip)
	delete(r.suspicious, ip)
	return wasBlocked || wasSuspicious
}

// IsBlocked reports blocked-set membership.
func (r *IPRegistry) IsBlocked(ip string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.blocked[ip]
	return ok
}

// BlockedIPs returns the blocked set sorted for stable output.
func (r *IPRegistry) BlockedIPs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ips := make([]string, 0, len(r.blocked))
	for ip := range r.blocked {
		ips = append(ips, ip)
	}
	sort.Strings(ips)
	return ips
}

// Counts reports the number of blocked and suspicious IPs.
func (r *IPRegistry) Counts() (blocked, suspicious int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.blocked), len(r.suspicious)
}

func reasonList(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for reason := range set {
		out = append(out, reason)
	}
	sort.Strings(out)
	return out
}
