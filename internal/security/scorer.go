package security

import (
	"encoding/json"
	"log/slog"
	"net/url"
)

// ScorerConfig bounds content inspection cost.
type ScorerConfig struct {
	MaxScanDepth int // recursion limit for nested JSON bodies
}

// DefaultScorerConfig mirrors the platform default depth limit of 5.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{MaxScanDepth: 5}
}

// Scorer inspects request content for injection signatures. It detects only;
// the decision to block or merely log a detected threat belongs to the
// calling middleware's policy.
type Scorer struct {
	cfg      ScorerConfig
	marker   ipMarker
	recorder eventRecorder
	logger   *slog.Logger
}

// NewScorer creates a scorer. marker and recorder receive the side effects
// for each distinct detected threat; either may be nil.
func NewScorer(cfg ScorerConfig, marker ipMarker, recorder eventRecorder, logger *slog.Logger) *Scorer {
	if cfg.MaxScanDepth <= 0 {
		cfg.MaxScanDepth = 5
	}
	return &Scorer{cfg: cfg, marker: marker, recorder: recorder, logger: logger}
}

// AnalyzeRequest tests every string in the query parameters and JSON body
// (depth-limited) plus the raw URL against the signature families. Each
// family flags at most once per request. For every distinct threat the
// source IP is marked suspicious and one security event is emitted.
// Malformed bodies and non-string fields are skipped, never an error.
func (s *Scorer) AnalyzeRequest(ip, rawURL string, query url.Values, body []byte) RequestAnalysis {
	fields := s.collectFields(rawURL, query, body)

	threats := make([]string, 0, len(threatFamilies))
	for _, family := range threatFamilies {
		name, matched := matchFamily(family, fields)
		if !matched {
			continue
		}
		threats = append(threats, family.threat)

		s.logger.Warn("threat signature matched",
			slog.String("ip", ip),
			slog.String("threat", family.threat),
			slog.String("signature", name))

		if s.marker != nil {
			s.marker.MarkSuspicious(ip, family.threat)
		}
		if s.recorder != nil {
			s.recorder.RecordSecurityEvent(family.eventType, family.severity, ip, "", rawURL, map[string]any{
				"threat":    family.threat,
				"signature": name,
			})
		}
	}

	return RequestAnalysis{Suspicious: len(threats) > 0, Threats: threats}
}

// collectFields gathers every string-valued field to scan: the raw URL,
// all query parameter values, and strings found by a depth-limited walk of
// the JSON body.
func (s *Scorer) collectFields(rawURL string, query url.Values, body []byte) []string {
	fields := make([]string, 0, 8)
	if rawURL != "" {
		fields = append(fields, rawURL)
	}
	for _, values := range query {
		fields = append(fields, values...)
	}

	if len(body) > 0 {
		var parsed any
		if err := json.Unmarshal(body, &parsed); err == nil {
			fields = s.walk(parsed, 0, fields)
		}
		// Unparseable bodies are skipped: a malformed payload must never
		// crash or block the hot path.
	}
	return fields
}

// walk appends string values found in a decoded JSON structure, bounding
// recursion so maliciously nested payloads stay cheap.
func (s *Scorer) walk(node any, depth int, fields []string) []string {
	if depth > s.cfg.MaxScanDepth {
		return fields
	}

	switch v := node.(type) {
	case string:
		fields = append(fields, v)
	case map[string]any:
		for _, child := range v {
			fields = s.walk(child, depth+1, fields)
		}
	case []any:
		for _, child := range v {
			fields = s.walk(child, depth+1, fields)
		}
	}
	// Numbers, bools and nulls cannot carry injection payloads.
	return fields
}

// matchFamily scans fields until the family's first matching signature.
func matchFamily(family patternFamily, fields []string) (string, bool) {
	for _, sig := range family.signatures {
		for _, field := range fields {
			if sig.regex.MatchString(field) {
				return sig.name, true
			}
		}
	}
	return "", false
}
