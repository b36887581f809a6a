package server

import (
	"net"
	"net/http"
	"strings"

	"crm-tenancy/backend/internal/audit"
)

// ClientIP records the caller's address for audit entries and the login rate limiter.
// Mount after chi's RealIP so RemoteAddr already reflects X-Forwarded-For / X-Real-IP.
func ClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(audit.WithClientIP(r.Context(), remoteHost(r.RemoteAddr))))
	})
}

func remoteHost(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
