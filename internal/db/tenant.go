package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"crm-tenancy/backend/internal/tenancy"
)

// TenantSetting is the session variable the row-level security policies read.
const TenantSetting = "app.current_org_id"

// beginner is the part of *pgxpool.Pool TenantExecutor needs.
type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TenantExecutor opens tenant-bound transactions on a pool.
type TenantExecutor struct {
	pool beginner
}

// NewTenantExecutor returns a TenantExecutor over pool.
func NewTenantExecutor(pool *pgxpool.Pool) *TenantExecutor {
	return &TenantExecutor{pool: pool}
}

// Bind begins a transaction and sets app.current_org_id with is_local = true, so the value is
// discarded at COMMIT or ROLLBACK and never reaches the next user of the pooled connection.
func (e *TenantExecutor) Bind(ctx context.Context, orgID string) (tenancy.Session, error) {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("db: begin tenant tx: %w", err)
	}
	if _, err := tx.Exec(ctx, "SELECT set_config($1, $2, true)", TenantSetting, orgID); err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("db: set tenant: %w", err)
	}
	return tx, nil
}

// CurrentTenant reads back the tenant bound to q's transaction. Empty when unbound.
func CurrentTenant(ctx context.Context, q tenancy.Querier) (string, error) {
	var orgID string
	err := q.QueryRow(ctx, "SELECT coalesce(current_setting($1, true), '')", TenantSetting).Scan(&orgID)
	return orgID, err
}
