// Package app builds the service's components from configuration. The server, the purge worker
// and authctl share it so all three see the same wiring.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	adminhandler "crm-tenancy/backend/internal/admin/handler"
	"crm-tenancy/backend/internal/audit"
	auditrepo "crm-tenancy/backend/internal/audit/repository"
	"crm-tenancy/backend/internal/config"
	"crm-tenancy/backend/internal/db"
	healthhandler "crm-tenancy/backend/internal/health/handler"
	identityhandler "crm-tenancy/backend/internal/identity/handler"
	identityservice "crm-tenancy/backend/internal/identity/service"
	orgrepo "crm-tenancy/backend/internal/organization/repository"
	"crm-tenancy/backend/internal/platform/logger"
	"crm-tenancy/backend/internal/platform/ratelimit"
	"crm-tenancy/backend/internal/security"
	"crm-tenancy/backend/internal/server"
	sessionrepo "crm-tenancy/backend/internal/session/repository"
	sessionservice "crm-tenancy/backend/internal/session/service"
	"crm-tenancy/backend/internal/telemetry"
	"crm-tenancy/backend/internal/tenancy"
	userrepo "crm-tenancy/backend/internal/user/repository"
)

// App holds the wired components.
type App struct {
	Config   *config.Config
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Registry *prometheus.Registry
	Metrics  *telemetry.Metrics

	Codec       *security.TokenCodec
	Users       *userrepo.PostgresRepository
	Orgs        *orgrepo.PostgresRepository
	Credentials *sessionrepo.PostgresRepository
	AuditLogs   *auditrepo.PostgresRepository
	Audit       *audit.Logger

	Issuer      *sessionservice.Issuer
	Coordinator *sessionservice.Coordinator
	Purger      *sessionservice.Purger
	Auth        *identityservice.AuthService
	Binder      *tenancy.Binder
}

// New connects to Postgres (and Redis when configured) and wires every component.
// Call Close when done.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	codec, err := security.NewTokenCodec([]byte(cfg.JWTAccessSecret), cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL())
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}
	refreshHasher, err := security.NewRefreshHasher([]byte(cfg.JWTRefreshSecret))
	if err != nil {
		return nil, fmt.Errorf("refresh hasher: %w", err)
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	a := &App{Config: cfg, Pool: pool, Codec: codec}

	limiter, err := a.newLimiter(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Registry = telemetry.NewRegistry()
	if a.Metrics, err = telemetry.NewMetrics(a.Registry); err != nil {
		a.Close()
		return nil, fmt.Errorf("metrics: %w", err)
	}

	a.Users = userrepo.NewPostgresRepository(pool)
	a.Orgs = orgrepo.NewPostgresRepository(pool)
	a.Credentials = sessionrepo.NewPostgresRepository(pool, refreshHasher)
	a.AuditLogs = auditrepo.NewPostgresRepository(pool)
	a.Audit = audit.NewLogger(a.AuditLogs, audit.ClientIPFromContext)

	a.Issuer = sessionservice.NewIssuer(a.Credentials, codec, cfg.RefreshTTL())
	a.Coordinator = sessionservice.NewCoordinator(a.Issuer, a.Users, a.Audit, a.Metrics)
	a.Purger = sessionservice.NewPurger(a.Credentials, cfg.Retention(), a.Metrics)
	a.Auth = identityservice.NewAuthService(a.Users, security.NewHasher(cfg.BcryptCost), a.Issuer, limiter, a.Audit, a.Metrics)

	a.Binder, err = tenancy.NewBinder(tenancy.BinderConfig{
		Codec:        codec,
		Executor:     db.NewTenantExecutor(pool),
		HeaderBypass: cfg.TenantHeaderBypass,
		Audit:        a.Audit,
		Metrics:      a.Metrics,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) newLimiter(ctx context.Context) (ratelimit.Limiter, error) {
	cfg := a.Config
	if cfg.LoginRateLimit == 0 {
		return ratelimit.Noop{}, nil
	}
	if cfg.RedisURL == "" {
		logger.L().Info("login rate limiter: in-process (REDIS_URL unset)")
		return ratelimit.NewMemoryLimiter(cfg.LoginRateLimit, cfg.RateWindow()), nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	a.Redis = redis.NewClient(opts)
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return ratelimit.NewRedisLimiter(a.Redis, "crm:login:", cfg.LoginRateLimit, cfg.RateWindow()), nil
}

// Router returns the HTTP handler with every route mounted.
func (a *App) Router() http.Handler {
	deps := map[string]healthhandler.Pinger{"postgres": a.Pool}
	if a.Redis != nil {
		deps["redis"] = healthhandler.PingerFunc(func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() })
	}
	return server.NewRouter(server.Deps{
		Auth:         identityhandler.NewAuthHandler(a.Auth, a.Coordinator),
		Admin:        adminhandler.NewServer(a.Users, a.Coordinator),
		TenantBinder: a.Binder.Handler,
		Health:       healthhandler.NewServer(deps),
		Registry:     a.Registry,
	})
}

// Close releases the pool and the Redis client.
func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
