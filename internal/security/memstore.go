package security

import (
	"sync"
	"time"
)

// In-memory store implementations. State is process-local and lost on
// restart; multi-instance deployments swap these for a shared backend via
// the WindowStore / AttemptStore interfaces.

type rateWindow struct {
	count   int
	resetAt time.Time
}

// MemoryWindowStore is the default map-backed WindowStore. A single mutex
// guards the table; every Hit is an atomic check-then-act so concurrent
// callers can never jointly over-admit a window.
type MemoryWindowStore struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
}

func NewMemoryWindowStore() *MemoryWindowStore {
	return &MemoryWindowStore{windows: make(map[string]*rateWindow)}
}

func (s *MemoryWindowStore) Hit(key string, period time.Duration, now time.Time) (int, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &rateWindow{count: 1, resetAt: now.Add(period)}
		s.windows[key] = w
		return w.count, w.resetAt
	}
	w.count++
	return w.count, w.resetAt
}

func (s *MemoryWindowStore) EvictExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for key, w := range s.windows {
		if !now.Before(w.resetAt) {
			delete(s.windows, key)
			evicted++
		}
	}
	return evicted
}

func (s *MemoryWindowStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// MemoryAttemptStore is the default map-backed AttemptStore. Update holds the
// table lock for the duration of fn, making each read-modify-write atomic per
// identifier.
type MemoryAttemptStore struct {
	mu      sync.Mutex
	records map[string]*LoginAttemptRecord
}

func NewMemoryAttemptStore() *MemoryAttemptStore {
	return &MemoryAttemptStore{records: make(map[string]*LoginAttemptRecord)}
}

func (s *MemoryAttemptStore) Update(identifier string, fn func(*LoginAttemptRecord)) LoginAttemptRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[identifier]
	if !ok {
		rec = &LoginAttemptRecord{}
		s.records[identifier] = rec
	}
	fn(rec)
	return *rec
}

func (s *MemoryAttemptStore) Get(identifier string) (LoginAttemptRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[identifier]
	if !ok {
		return LoginAttemptRecord{}, false
	}
	return *rec, true
}

func (s *MemoryAttemptStore) Delete(identifier string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, identifier)
}

// EvictInactive drops records whose last attempt predates the cutoff and
// which hold no active lock.
func (s *MemoryAttemptStore) EvictInactive(cutoff time.Time) int {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, rec := range s.records {
		if rec.LastAttempt.Before(cutoff) && !rec.Locked(now) {
			delete(s.records, id)
			evicted++
		}
	}
	return evicted
}

func (s *MemoryAttemptStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
