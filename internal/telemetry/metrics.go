// Package telemetry holds the Prometheus metrics and the tracer used by the auth and tenancy paths.
package telemetry

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "crm-tenancy/backend"

// Tracer returns the tracer for this service. It follows the global provider set by otel.Providers.SetGlobal.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// Metrics counts auth and tenancy outcomes. A nil *Metrics is valid and records nothing.
type Metrics struct {
	refresh    *prometheus.CounterVec
	login      *prometheus.CounterVec
	tenantBind *prometheus.CounterVec
	purged     prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. Collectors already registered
// on reg are reused, so several components may share one registry.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	var err error
	m := &Metrics{}
	if m.refresh, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_refresh_total",
		Help: "Refresh attempts by result.",
	}, []string{"result"})); err != nil { // ok|invalid|reuse_detected|expired|principal_unavailable|error
		return nil, err
	}
	if m.login, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_login_total",
		Help: "Login attempts by result.",
	}, []string{"result"})); err != nil { // ok|invalid|rate_limited|error
		return nil, err
	}
	if m.tenantBind, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tenant_bind_total",
		Help: "Tenant binding attempts by result and tenant source.",
	}, []string{"result", "source"})); err != nil {
		return nil, err
	}
	if m.purged, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "refresh_credentials_purged_total",
		Help: "Expired refresh credentials deleted by the purge job.",
	})); err != nil {
		return nil, err
	}
	return m, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (m *Metrics) Refresh(result string) {
	if m != nil {
		m.refresh.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Login(result string) {
	if m != nil {
		m.login.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) TenantBind(result, source string) {
	if m != nil {
		m.tenantBind.WithLabelValues(result, source).Inc()
	}
}

func (m *Metrics) Purged(n int64) {
	if m != nil && n > 0 {
		m.purged.Add(float64(n))
	}
}

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler serves the metrics in reg for /metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
