// Package server assembles the HTTP router: public auth routes, tenant-bound API routes and probes.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	adminhandler "crm-tenancy/backend/internal/admin/handler"
	healthhandler "crm-tenancy/backend/internal/health/handler"
	identityhandler "crm-tenancy/backend/internal/identity/handler"
	"crm-tenancy/backend/internal/platform/logger"
	"crm-tenancy/backend/internal/telemetry"
)

// Deps holds the handlers the router mounts.
type Deps struct {
	Auth *identityhandler.AuthHandler
	// Admin is mounted under /api/v1/admin behind the tenant binder. Optional.
	Admin *adminhandler.Server
	// TenantBinder wraps every /api/v1 route except the public auth endpoints.
	TenantBinder func(http.Handler) http.Handler
	Health       *healthhandler.Server
	// Registry is served on /metrics. If nil, /metrics is not mounted.
	Registry *prometheus.Registry
	// Mount registers tenant-bound business routes (customers, deals, ...) under /api/v1.
	Mount func(r chi.Router)
}

// NewRouter returns the service's HTTP handler.
//
// Route map:
//   - GET  /healthz, /readyz, /metrics
//   - POST /api/v1/auth/{login,refresh,logout}      public
//   - POST /api/v1/auth/logout-all                  tenant bound
//   - GET  /api/v1/me                               tenant bound
//   - POST /api/v1/admin/users/{id}/revoke-sessions tenant bound, owner or admin
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(ClientIP)
	r.Use(logger.Middleware)
	r.Use(middleware.Recoverer)

	if deps.Health != nil {
		r.Get("/healthz", deps.Health.Live)
		r.Get("/readyz", deps.Health.Ready)
	}
	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", telemetry.Handler(deps.Registry))
	}

	bind := deps.TenantBinder
	if bind == nil {
		bind = func(next http.Handler) http.Handler { return next }
	}
	r.Route("/api/v1", func(r chi.Router) {
		if deps.Auth != nil {
			r.Route("/auth", func(r chi.Router) {
				deps.Auth.PublicRoutes(r)
				r.With(bind).Post("/logout-all", deps.Auth.LogoutAll)
			})
			r.With(bind).Get("/me", deps.Auth.Me)
		}
		if deps.Admin != nil {
			r.With(bind).Route("/admin", deps.Admin.Routes)
		}
		if deps.Mount != nil {
			r.Group(func(r chi.Router) {
				r.Use(bind)
				deps.Mount(r)
			})
		}
	})

	return otelhttp.NewHandler(r, "http.server",
		otelhttp.WithFilter(func(req *http.Request) bool {
			switch req.URL.Path {
			case "/healthz", "/readyz", "/metrics":
				return false
			}
			return true
		}),
	)
}

// NewHTTPServer wraps h with the service's timeouts.
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
