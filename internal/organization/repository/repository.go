package repository

import (
	"context"

	"crm-tenancy/backend/internal/organization/domain"
)

// Repository stores tenants. The organizations table is not row-level secured; only operator tooling writes it.
type Repository interface {
	// GetByID returns nil, nil for an unknown id.
	GetByID(ctx context.Context, id string) (*domain.Org, error)
	Create(ctx context.Context, o *domain.Org) error
}
