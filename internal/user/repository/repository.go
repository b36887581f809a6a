package repository

import (
	"context"

	"crm-tenancy/backend/internal/user/domain"
)

// Repository is the principal directory. Lookups return nil, nil when no user matches.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// GetByEmail matches the normalized (lower-cased) address across all organizations.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	// SetStatus disables or re-enables sign-in. Disabling does not revoke credentials by itself.
	SetStatus(ctx context.Context, id string, status domain.UserStatus) error
}
