package tenancy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"crm-tenancy/backend/internal/audit"
	"crm-tenancy/backend/internal/platform/apperror"
	"crm-tenancy/backend/internal/platform/logger"
	"crm-tenancy/backend/internal/security"
	"crm-tenancy/backend/internal/telemetry"
)

// HeaderOrganizationID carries the tenant on the development bypass path.
const HeaderOrganizationID = "X-Organization-Id"

// TokenDecoder decodes a bearer access token. *security.TokenCodec implements it.
type TokenDecoder interface {
	Decode(token string) (*security.Claims, error)
}

// BinderConfig wires a Binder.
type BinderConfig struct {
	Codec    TokenDecoder
	Executor Executor
	// HeaderBypass enables the X-Organization-Id fallback. Development only; config refuses it in production.
	HeaderBypass bool
	Audit        audit.AuditLogger
	Metrics      *telemetry.Metrics
}

// Binder is the HTTP middleware that resolves the tenant of a request and binds it to a
// database transaction before any handler code runs.
type Binder struct {
	codec        TokenDecoder
	executor     Executor
	headerBypass bool
	audit        audit.AuditLogger
	metrics      *telemetry.Metrics
}

// NewBinder returns a Binder. Codec and Executor are required.
func NewBinder(cfg BinderConfig) (*Binder, error) {
	if cfg.Codec == nil || cfg.Executor == nil {
		return nil, errors.New("tenancy: codec and executor are required")
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.Nop{}
	}
	if cfg.HeaderBypass {
		logger.L().Warn("tenant header bypass is ENABLED; X-Organization-Id is trusted without authentication",
			logger.Component("tenancy"))
	}
	return &Binder{
		codec:        cfg.Codec,
		executor:     cfg.Executor,
		headerBypass: cfg.HeaderBypass,
		audit:        cfg.Audit,
		metrics:      cfg.Metrics,
	}, nil
}

// Resolve determines the tenant of r. A bearer token that fails to decode is not fatal on its
// own; the request is rejected only when no source yields a tenant. A resolved organization id
// that is not a canonical UUID is rejected whatever its source.
func (b *Binder) Resolve(r *http.Request) (Context, error) {
	if token, ok := bearerToken(r); ok {
		claims, err := b.codec.Decode(token)
		if err == nil {
			orgID, err := NormalizeOrgID(claims.OrgID)
			if err != nil {
				return Context{Source: SourceBearer}, err
			}
			return Context{
				OrgID:   orgID,
				Source:  SourceBearer,
				Subject: claims.Subject,
				Email:   claims.Email,
				Role:    claims.Role,
			}, nil
		}
		logger.From(r.Context()).Debug("bearer token not usable for tenant", logger.Reason(err.Error()))
	}

	if b.headerBypass {
		if raw := r.Header.Get(HeaderOrganizationID); raw != "" {
			orgID, err := NormalizeOrgID(raw)
			if err != nil {
				return Context{Source: SourceHeader}, err
			}
			return Context{OrgID: orgID, Source: SourceHeader}, nil
		}
	}
	return Context{}, ErrTenantContextRequired
}

// Handler binds the tenant for next. The bound transaction commits when next answers below 500
// and rolls back on a 5xx, a panic or a cancelled request.
func (b *Binder) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := telemetry.Tracer().Start(r.Context(), "tenancy.Bind")
		log := logger.From(ctx).With(logger.Component("tenancy"))

		tc, err := b.Resolve(r.WithContext(ctx))
		source := string(tc.Source)
		if source == "" {
			source = "none"
		}
		if err != nil {
			b.metrics.TenantBind("rejected", source)
			log.Info("tenant binding rejected", logger.Source(source), logger.Reason(err.Error()))
			span.SetStatus(codes.Error, err.Error())
			span.End()
			apperror.WriteError(w, apperror.ErrUnauthorized.WithCause(err))
			return
		}
		span.SetAttributes(attribute.String("tenant.org_id", tc.OrgID), attribute.String("tenant.source", source))
		log = log.With(logger.OrgID(tc.OrgID), logger.Source(source))

		if tc.Source == SourceHeader {
			log.Warn("tenant resolved from development header",
				logger.ClientIP(audit.ClientIPFromContext(ctx)), logger.Path(r.URL.Path))
			b.audit.LogEvent(ctx, tc.OrgID, "", audit.ActionTenantHeaderBypass, audit.ResourceTenant,
				fmt.Sprintf(`{"path":%q}`, r.URL.Path))
		}

		sess, err := b.executor.Bind(ctx, tc.OrgID)
		if err != nil {
			b.metrics.TenantBind("error", source)
			log.Error("tenant binding failed", logger.Err(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, "bind")
			span.End()
			apperror.WriteError(w, apperror.ErrUnauthorized.WithCause(err))
			return
		}
		span.End()
		b.metrics.TenantBind("ok", source)

		finished := false
		defer func() {
			if !finished {
				if err := sess.Rollback(context.WithoutCancel(ctx)); err != nil {
					log.Warn("tenant tx rollback", logger.Err(err))
				}
			}
		}()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ctx = logger.ToContext(WithContext(ctx, tc, sess), log)
		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		if status >= http.StatusInternalServerError || ctx.Err() != nil {
			return
		}
		finished = true
		if err := sess.Commit(context.WithoutCancel(ctx)); err != nil {
			log.Error("tenant tx commit", logger.Err(err))
		}
	})
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
