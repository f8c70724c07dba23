package security

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventFilter selects a subset of the event log. Zero-valued fields match
// everything; Limit <= 0 means no limit beyond the log cap.
type EventFilter struct {
	Type     string
	Severity Severity
	IP       string
	Since    time.Time
	Limit    int
}

// EventLog is an append-only, FIFO-capped in-memory log of security events.
// Oldest entries are evicted first once the cap is reached; the periodic
// sweep additionally prunes entries past the retention period.
type EventLog struct {
	mu     sync.Mutex
	events []SecurityEvent
	max    int
}

// NewEventLog creates an event log holding at most max entries.
func NewEventLog(max int) *EventLog {
	if max <= 0 {
		max = 10000
	}
	return &EventLog{
		events: make([]SecurityEvent, 0, 64),
		max:    max,
	}
}

// Append records a new event, evicting the oldest entries if the log is at
// capacity. Returns the stored event with its assigned ID and timestamp.
func (l *EventLog) Append(eventType string, severity Severity, ip, userID, endpoint string, details map[string]any) SecurityEvent {
	ev := SecurityEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Severity:  severity,
		IP:        ip,
		UserID:    userID,
		Endpoint:  endpoint,
		Details:   details,
		Timestamp: time.Now(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.events) >= l.max {
		// FIFO eviction: drop enough head entries to make room
		drop := len(l.events) - l.max + 1
		l.events = append(l.events[:0], l.events[drop:]...)
	}
	l.events = append(l.events, ev)
	return ev
}

// Events returns matching events, newest first. The returned slice is a copy
// and safe to retain.
func (l *EventLog) Events(filter EventFilter) []SecurityEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]SecurityEvent, 0, len(l.events))
	for i := len(l.events) - 1; i >= 0; i-- {
		ev := l.events[i]
		if filter.Type != "" && ev.Type != filter.Type {
			continue
		}
		if filter.Severity != "" && ev.Severity != filter.Severity {
			continue
		}
		if filter.IP != "" && ev.IP != filter.IP {
			continue
		}
		if !filter.Since.IsZero() && ev.Timestamp.Before(filter.Since) {
			continue
		}
		out = append(out, ev)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out
}

// MarkHandled flips the handled flag on a single event.
func (l *EventLog) MarkHandled(id uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.events {
		if l.events[i].ID == id {
			l.events[i].Handled = true
			return nil
		}
	}
	return ErrEventNotFound
}

// PruneOlderThan drops events with a timestamp before cutoff and reports how
// many were removed.
func (l *EventLog) PruneOlderThan(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Events are appended in timestamp order, so find the first survivor.
	idx := 0
	for idx < len(l.events) && l.events[idx].Timestamp.Before(cutoff) {
		idx++
	}
	if idx == 0 {
		return 0
	}
	l.events = append(l.events[:0], l.events[idx:]...)
	return idx
}

// Len reports the current number of stored events.
func (l *EventLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// CountSince aggregates event counts by type and severity for events at or
// after the cutoff.
func (l *EventLog) CountSince(cutoff time.Time) (total int, byType map[string]int, bySeverity map[Severity]int, unhandledHigh int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	byType = make(map[string]int)
	bySeverity = make(map[Severity]int)
	for i := len(l.events) - 1; i >= 0; i-- {
		ev := l.events[i]
		if ev.Timestamp.Before(cutoff) {
			break
		}
		total++
		byType[ev.Type]++
		bySeverity[ev.Severity]++
		if !ev.Handled && (ev.Severity == SeverityCritical || ev.Severity == SeverityHigh) {
			unhandledHigh++
		}
	}
	return total, byType, bySeverity, unhandledHigh
}
