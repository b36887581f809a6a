// Package handler serves liveness and readiness probes.
package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"crm-tenancy/backend/internal/platform/httpio"
	"crm-tenancy/backend/internal/platform/logger"
)

// Pinger checks a dependency. *pgxpool.Pool implements it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to Pinger.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// Server answers /healthz and /readyz for Kubernetes and load balancers.
type Server struct {
	deps    map[string]Pinger
	timeout time.Duration
}

// NewServer returns a Server whose readiness depends on every pinger in deps. Nil entries are skipped.
func NewServer(deps map[string]Pinger) *Server {
	return &Server{deps: deps, timeout: 2 * time.Second}
}

type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Live always answers 200 while the process serves HTTP.
func (s *Server) Live(w http.ResponseWriter, _ *http.Request) {
	httpio.WriteJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

// Ready answers 200 when every dependency responds, 503 otherwise.
func (s *Server) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	names := make([]string, 0, len(s.deps))
	for name := range s.deps {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := statusResponse{Status: "ok", Checks: map[string]string{}}
	code := http.StatusOK
	for _, name := range names {
		p := s.deps[name]
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			logger.From(ctx).Warn("readiness check failed", logger.Component(name), logger.Err(err))
			resp.Checks[name] = "unavailable"
			resp.Status = "unavailable"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	httpio.WriteJSON(w, code, resp)
}
