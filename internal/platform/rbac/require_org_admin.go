// Package rbac checks the caller's role within the tenant bound to the request.
package rbac

import (
	"context"
	"errors"

	"crm-tenancy/backend/internal/tenancy"
	userdomain "crm-tenancy/backend/internal/user/domain"
)

var (
	// ErrUnauthenticated is returned when the request carries no bearer-derived principal.
	ErrUnauthenticated = errors.New("rbac: authenticated principal required")
	// ErrForbidden is returned when the caller is not an owner or admin of the bound organization.
	ErrForbidden = errors.New("rbac: organization admin or owner required")
)

// UserGetter returns a directory entry by id, or nil if not found.
type UserGetter interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// RequireOrgAdmin ensures the caller is authenticated with a bearer token and is currently an active
// owner or admin of the bound organization. The role is read from the directory, not from the token,
// so a demotion takes effect before the access token expires.
// Returns (orgID, userID, nil) on success.
func RequireOrgAdmin(ctx context.Context, getter UserGetter) (orgID, userID string, err error) {
	tc, ok := tenancy.FromContext(ctx)
	if !ok || tc.Source != tenancy.SourceBearer || tc.Subject == "" {
		return "", "", ErrUnauthenticated
	}
	u, err := getter.GetByID(ctx, tc.Subject)
	if err != nil {
		return "", "", err
	}
	if !u.Active() || u.OrgID != tc.OrgID {
		return "", "", ErrUnauthenticated
	}
	if u.Role != userdomain.RoleOwner && u.Role != userdomain.RoleAdmin {
		return "", "", ErrForbidden
	}
	return tc.OrgID, u.ID, nil
}
