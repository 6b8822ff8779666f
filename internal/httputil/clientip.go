package httputil

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP extracts the client IP for rate limiting and audit records.
// X-Forwarded-For wins (first hop in the chain), then X-Real-IP, then
// RemoteAddr. Forwarded values that do not parse as IPs are ignored so a
// spoofed header cannot poison audit entries with arbitrary strings.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, hop := range strings.Split(xff, ",") {
			candidate := strings.TrimSpace(hop)
			if candidate == "" {
				continue
			}
			if parsed := net.ParseIP(strings.Trim(candidate, "[]")); parsed != nil {
				return parsed.String()
			}
			break
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if parsed := net.ParseIP(strings.Trim(xri, "[]")); parsed != nil {
			return parsed.String()
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
