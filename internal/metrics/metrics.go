// Package metrics exposes Prometheus instrumentation for the detection engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mateit-cloudware/mate-sentinel/internal/security"
)

// Metrics holds the sentinel Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	RequestsAllowed *prometheus.CounterVec
	RequestsDenied  *prometheus.CounterVec
	ThreatsDetected *prometheus.CounterVec
	LoginLockouts   prometheus.Counter
	BlockedIPs      prometheus.Gauge
	EventsRecorded  *prometheus.CounterVec
}

// New creates the collectors on a private registry to avoid global state.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewGoCollector())

	m := &Metrics{
		registry: registry,
		RequestsAllowed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "requests_allowed_total",
			Help:      "Requests admitted by the rate limiter.",
		}, []string{"endpoint"}),
		RequestsDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "requests_denied_total",
			Help:      "Requests denied, labeled by limiting scope.",
		}, []string{"scope"}),
		ThreatsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "threats_detected_total",
			Help:      "Suspicious payloads detected, labeled by threat type.",
		}, []string{"threat"}),
		LoginLockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "login_lockouts_total",
			Help:      "Accounts locked by the brute force guard.",
		}),
		BlockedIPs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sentinel",
			Name:      "blocked_ips",
			Help:      "IPs currently on the blocklist.",
		}),
		EventsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentinel",
			Name:      "security_events_total",
			Help:      "Security events recorded, labeled by type and severity.",
		}, []string{"type", "severity"}),
	}

	registry.MustRegister(
		m.RequestsAllowed,
		m.RequestsDenied,
		m.ThreatsDetected,
		m.LoginLockouts,
		m.BlockedIPs,
		m.EventsRecorded,
	)

	return m
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveEvent updates counters from a recorded security event. Wired as an
// audit hook so every event recorded by the engine is counted.
func (m *Metrics) ObserveEvent(event security.SecurityEvent) {
	m.EventsRecorded.WithLabelValues(string(event.Type), string(event.Severity)).Inc()

	switch event.Type {
	case security.EventBruteForceDetected:
		m.LoginLockouts.Inc()
	case security.EventSQLInjection, security.EventXSS, security.EventPathTraversal:
		if threat, ok := event.Details["threat"].(string); ok {
			m.ThreatsDetected.WithLabelValues(threat).Inc()
		}
	case security.EventRateLimitExceeded:
		if scope, ok := event.Details["scope"].(string); ok {
			m.RequestsDenied.WithLabelValues(scope).Inc()
		}
	}
}
