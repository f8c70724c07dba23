package http

import (
	"net"
	"net/http"
	"strings"
)

// IPConfig holds trusted proxy ranges for client IP extraction.
type IPConfig struct {
	TrustedProxies []string // CIDR ranges
}

// ExtractClientIP extracts the real client address. Forwarding headers are honored
// only when the direct peer is a trusted proxy, so an attacker cannot spoof
// their way around IP-keyed security checks.
func ExtractClientIP(r *http.Request, cfg *IPConfig) string {
	remoteIP := remoteAddr(r)

	if cfg != nil && trustedProxy(remoteIP, cfg.TrustedProxies) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			for _, ip := range strings.Split(xff, ",") {
				ip = strings.TrimSpace(ip)
				if net.ParseIP(ip) != nil {
					return ip
				}
			}
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			if net.ParseIP(xri) != nil {
				return xri
			}
		}
	}

	return remoteIP
}

func remoteAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func trustedProxy(ip string, cidrs []string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if network.Contains(parsed) {
			return true
		}
	}
	return false
}
