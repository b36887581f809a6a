package rbac

import (
	"context"
	"errors"
	"testing"

	"crm-tenancy/backend/internal/tenancy"
	userdomain "crm-tenancy/backend/internal/user/domain"
)

const (
	org1 = "0c5a3d1e-91f2-4b7a-8e55-3f1d2a6b9c01"
	org2 = "3f0c2b8e-7d41-4a55-9b1e-6c2d8f0a1b23"
)

// mockUserGetter implements UserGetter for tests.
type mockUserGetter struct {
	users map[string]*userdomain.User
	err   error
}

func (m *mockUserGetter) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.users[id], nil
}

func withCaller(userID, orgID string, source tenancy.Source) context.Context {
	return tenancy.WithContext(context.Background(), tenancy.Context{OrgID: orgID, Source: source, Subject: userID}, nil)
}

func getter(role userdomain.Role, status userdomain.UserStatus) *mockUserGetter {
	return &mockUserGetter{users: map[string]*userdomain.User{
		"user-1": {ID: "user-1", OrgID: org1, Role: role, Status: status},
	}}
}

func TestRequireOrgAdmin_Success_Owner(t *testing.T) {
	orgID, userID, err := RequireOrgAdmin(withCaller("user-1", org1, tenancy.SourceBearer), getter(userdomain.RoleOwner, userdomain.UserStatusActive))
	if err != nil {
		t.Fatalf("RequireOrgAdmin: %v", err)
	}
	if orgID != org1 {
		t.Errorf("org_id = %q, want %q", orgID, org1)
	}
	if userID != "user-1" {
		t.Errorf("user_id = %q, want %q", userID, "user-1")
	}
}

func TestRequireOrgAdmin_Success_Admin(t *testing.T) {
	if _, _, err := RequireOrgAdmin(withCaller("user-1", org1, tenancy.SourceBearer), getter(userdomain.RoleAdmin, userdomain.UserStatusActive)); err != nil {
		t.Fatalf("RequireOrgAdmin: %v", err)
	}
}

func TestRequireOrgAdmin_Failure_Member(t *testing.T) {
	_, _, err := RequireOrgAdmin(withCaller("user-1", org1, tenancy.SourceBearer), getter(userdomain.RoleMember, userdomain.UserStatusActive))
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("want ErrForbidden, got %v", err)
	}
}

func TestRequireOrgAdmin_Failure_Unauthenticated(t *testing.T) {
	g := getter(userdomain.RoleOwner, userdomain.UserStatusActive)
	for name, ctx := range map[string]context.Context{
		"no tenant":     context.Background(),
		"header source": withCaller("", org1, tenancy.SourceHeader),
		"unknown user":  withCaller("user-9", org1, tenancy.SourceBearer),
		"different org": withCaller("user-1", org2, tenancy.SourceBearer),
	} {
		if _, _, err := RequireOrgAdmin(ctx, g); !errors.Is(err, ErrUnauthenticated) {
			t.Errorf("%s: want ErrUnauthenticated, got %v", name, err)
		}
	}

	disabled := getter(userdomain.RoleOwner, userdomain.UserStatusDisabled)
	if _, _, err := RequireOrgAdmin(withCaller("user-1", org1, tenancy.SourceBearer), disabled); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("disabled: want ErrUnauthenticated, got %v", err)
	}
}

func TestRequireOrgAdmin_GetterError(t *testing.T) {
	boom := errors.New("db down")
	_, _, err := RequireOrgAdmin(withCaller("user-1", org1, tenancy.SourceBearer), &mockUserGetter{err: boom})
	if !errors.Is(err, boom) {
		t.Fatalf("want getter error, got %v", err)
	}
}
