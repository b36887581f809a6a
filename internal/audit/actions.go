package audit

import "context"

// Resources.
const (
	ResourceSession = "session"
	ResourceTenant  = "tenant"
)

// Actions recorded by the auth and tenancy paths.
const (
	ActionLoginSuccess         = "login_success"
	ActionLoginFailure         = "login_failure"
	ActionLoginRateLimited     = "login_rate_limited"
	ActionRefresh              = "refresh"
	ActionRefreshReuseDetected = "refresh_reuse_detected"
	ActionLogout               = "logout"
	ActionLogoutAll            = "logout_all"
	ActionTenantHeaderBypass   = "tenant_header_bypass"
)

type clientIPKey struct{}

// WithClientIP returns ctx carrying the request's client IP for audit entries.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIPFromContext is an IPExtractor reading the value set by WithClientIP.
func ClientIPFromContext(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok && ip != "" {
		return ip
	}
	return "unknown"
}
