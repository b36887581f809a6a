package repository

import (
	"context"

	"crm-tenancy/backend/internal/audit/domain"
)

// Repository stores audit events. The logger only appends; reads serve authctl.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	// GetByID returns nil, nil when no event has id.
	GetByID(ctx context.Context, id string) (*domain.AuditLog, error)
	// ListByOrg pages an organization's events, newest first. Pass domain.SystemOrgID for tenantless events.
	ListByOrg(ctx context.Context, orgID string, limit, offset int32) ([]*domain.AuditLog, error)
}
