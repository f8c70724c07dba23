package middleware

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/mateit-cloudware/mate-sentinel/internal/metrics"
	"github.com/mateit-cloudware/mate-sentinel/internal/security"
	pkghttp "github.com/mateit-cloudware/mate-sentinel/pkg/http"
)

// ThreatAction decides what happens when the scorer flags a threat.
type ThreatAction int

const (
	// ActionLog records the event but lets the request through.
	ActionLog ThreatAction = iota
	// ActionBlock rejects the request with 403.
	ActionBlock
)

// ThreatPolicy maps threat labels to the action taken on detection.
// Unlisted threats default to ActionLog.
type ThreatPolicy map[string]ThreatAction

// DefaultThreatPolicy blocks injection attempts and logs the rest.
func DefaultThreatPolicy() ThreatPolicy {
	return ThreatPolicy{
		security.ThreatSQLInjection:  ActionBlock,
		security.ThreatXSS:           ActionLog,
		security.ThreatPathTraversal: ActionLog,
	}
}

// ThreatCheckConfig configures the inspection middleware.
type ThreatCheckConfig struct {
	// MaxBodyScanBytes caps how much of the request body is inspected.
	MaxBodyScanBytes int64
	Policy           ThreatPolicy
	IPConfig         *pkghttp.IPConfig
}

// UserIDExtractor resolves the authenticated user for per-user rate limiting.
// Returns "" for anonymous requests.
type UserIDExtractor func(r *http.Request) string

// ThreatCheck inspects each request against the detection engine: blocklist
// membership, payload analysis, then rate limits. Denials short-circuit with
// 403 or 429; everything else passes through with the body restored.
func ThreatCheck(engine *security.Engine, cfg ThreatCheckConfig, userID UserIDExtractor, m *metrics.Metrics, logger *slog.Logger) func(http.Handler) http.Handler {
	if cfg.Policy == nil {
		cfg.Policy = DefaultThreatPolicy()
	}
	if cfg.MaxBodyScanBytes <= 0 {
		cfg.MaxBodyScanBytes = 64 * 1024
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := pkghttp.ExtractClientIP(r, cfg.IPConfig)

			if engine.IsBlockedIP(ip) {
				pkghttp.WriteForbidden(w, "Access denied")
				return
			}

			body, err := captureBody(r, cfg.MaxBodyScanBytes)
			if err != nil {
				pkghttp.WriteBadRequest(w, "Unable to read request body")
				return
			}

			analysis := engine.AnalyzeRequest(ip, r.URL.RequestURI(), r.URL.Query(), body)
			if analysis.Suspicious {
				for _, threat := range analysis.Threats {
					if cfg.Policy[threat] == ActionBlock {
						logger.Warn("request blocked by threat policy",
							slog.String("ip", ip),
							slog.String("threat", threat),
							slog.String("path", r.URL.Path),
						)
						pkghttp.WriteForbidden(w, "Request blocked")
						return
					}
				}
			}

			// Payload analysis may have pushed the IP over the block threshold.
			if engine.IsBlockedIP(ip) {
				pkghttp.WriteForbidden(w, "Access denied")
				return
			}

			var uid string
			if userID != nil {
				uid = userID(r)
			}

			result := engine.CheckRateLimit(ip, uid, r.URL.Path)
			if !result.Allowed {
				if result.RetryAfterSeconds > 0 {
					w.Header().Set("Retry-After", fmt.Sprintf("%d", result.RetryAfterSeconds))
				}
				if result.Scope == security.ScopeBlocklist {
					pkghttp.WriteForbidden(w, "Access denied")
					return
				}
				pkghttp.WriteTooManyRequests(w, "Rate limit exceeded")
				return
			}

			if m != nil {
				m.RequestsAllowed.WithLabelValues(r.URL.Path).Inc()
			}

			next.ServeHTTP(w, r)
		})
	}
}

// captureBody reads up to maxBytes of the request body for inspection and
// restores the full stream so downstream handlers see the original request.
func captureBody(r *http.Request, maxBytes int64) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}

	buf, err := io.ReadAll(io.LimitReader(r.Body, maxBytes))
	if err != nil {
		return nil, err
	}

	rest := r.Body
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(buf), rest), rest}

	return buf, nil
}
