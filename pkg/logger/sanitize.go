package logger

import (
	"log/slog"
	"strings"
)

var sensitiveParams = []string{
	"password", "token", "secret", "api_key", "apikey", "auth", "csrf",
}

// SanitizeQueryString reports whether a raw query string carries
// parameters that must not reach the request log.
func SanitizeQueryString(rawQuery string) bool {
	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}

// MaskedEmail masks an email address for logging, e.g. "a***@e***.com".
func MaskedEmail(email string) string {
	user, domain, ok := strings.Cut(email, "@")
	if !ok {
		return "[invalid-email]"
	}
	if len(user) > 1 {
		user = user[:1] + strings.Repeat("*", len(user)-1)
	}
	if dot := strings.LastIndex(domain, "."); dot > 0 {
		domain = strings.Repeat("*", dot) + domain[dot:]
	}
	return user + "@" + domain
}

// RedactedAttr returns a redacted slog attribute outside development.
func RedactedAttr(key, value, env string) slog.Attr {
	if env == "production" {
		return slog.String(key, "[REDACTED]")
	}
	return slog.String(key, value)
}
