// Package tenancy resolves the tenant of each request and binds it to a database transaction
// whose row-level security policies see only that tenant's rows.
package tenancy

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrTenantContextRequired is returned when no tenant could be resolved for a request.
	ErrTenantContextRequired = errors.New("tenant context required")
	// ErrInvalidTenantFormat is returned when a resolved organization id is not a canonical UUID.
	ErrInvalidTenantFormat = errors.New("invalid tenant format")
)

// Source records where a request's tenant came from.
type Source string

const (
	SourceBearer Source = "bearer"
	// SourceHeader is the development-only X-Organization-Id path.
	SourceHeader Source = "header"
)

// Context is the tenant bound to one request. It is never persisted.
type Context struct {
	OrgID  string
	Source Source
	// Subject, Email and Role are set when Source is SourceBearer.
	Subject string
	Email   string
	Role    string
}

// Querier is the query surface handlers use inside a tenant-bound request.
// pgx.Tx satisfies it, as does *pgxpool.Pool.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Session is a tenant-bound transaction.
type Session interface {
	Querier
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Executor opens tenant-bound sessions.
type Executor interface {
	// Bind begins a transaction on a pooled connection and sets the tenant for its duration only.
	Bind(ctx context.Context, orgID string) (Session, error)
}

type ctxKey int

const (
	tenantKey ctxKey = iota
	querierKey
)

// WithContext returns ctx carrying tc and the tenant-bound querier q.
func WithContext(ctx context.Context, tc Context, q Querier) context.Context {
	ctx = context.WithValue(ctx, tenantKey, tc)
	return context.WithValue(ctx, querierKey, q)
}

// FromContext returns the tenant bound to ctx.
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(tenantKey).(Context)
	return tc, ok && tc.OrgID != ""
}

// QuerierFrom returns the tenant-bound querier for ctx, or ErrTenantContextRequired outside a bound request.
func QuerierFrom(ctx context.Context) (Querier, error) {
	q, ok := ctx.Value(querierKey).(Querier)
	if !ok || q == nil {
		return nil, ErrTenantContextRequired
	}
	return q, nil
}

// NormalizeOrgID validates that raw is a canonical, non-nil UUID and returns it lower-cased.
func NormalizeOrgID(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) != 36 {
		return "", ErrInvalidTenantFormat
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return "", ErrInvalidTenantFormat
	}
	return id.String(), nil
}
