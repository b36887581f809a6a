package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sessiondomain "crm-tenancy/backend/internal/session/domain"
	"crm-tenancy/backend/internal/tenancy"
	userdomain "crm-tenancy/backend/internal/user/domain"
)

const (
	org1     = "0c5a3d1e-91f2-4b7a-8e55-3f1d2a6b9c01"
	org2     = "3f0c2b8e-7d41-4a55-9b1e-6c2d8f0a1b23"
	adminID  = "8a6e0804-2bd0-4672-b79d-d97027f9071a"
	memberID = "b1d2c3e4-5f60-4718-8293-a4b5c6d7e8f9"
	otherID  = "c9e8d7f6-0a1b-4c2d-9e3f-405162738495"
)

type memUsers map[string]*userdomain.User

func (m memUsers) GetByID(_ context.Context, id string) (*userdomain.User, error) {
	return m[id], nil
}

type fakeRevoker struct {
	calls  int
	org    string
	owner  string
	reason sessiondomain.RevokeReason
	n      int64
	err    error
}

func (f *fakeRevoker) RevokeAllForOwner(_ context.Context, orgID, ownerID string, reason sessiondomain.RevokeReason) (int64, error) {
	f.calls++
	f.org, f.owner, f.reason = orgID, ownerID, reason
	return f.n, f.err
}

func directory() memUsers {
	return memUsers{
		adminID:  {ID: adminID, OrgID: org1, Role: userdomain.RoleAdmin, Status: userdomain.UserStatusActive},
		memberID: {ID: memberID, OrgID: org1, Role: userdomain.RoleMember, Status: userdomain.UserStatusActive},
		otherID:  {ID: otherID, OrgID: org2, Role: userdomain.RoleMember, Status: userdomain.UserStatusActive},
	}
}

func serve(t *testing.T, s *Server, callerID, target string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Route("/admin", s.Routes)
	req := httptest.NewRequest(http.MethodPost, "/admin/users/"+target+"/revoke-sessions", nil)
	if callerID != "" {
		tc := tenancy.Context{OrgID: org1, Source: tenancy.SourceBearer, Subject: callerID}
		req = req.WithContext(tenancy.WithContext(req.Context(), tc, nil))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRevokeUserSessions_Success(t *testing.T) {
	rev := &fakeRevoker{n: 3}
	rec := serve(t, NewServer(directory(), rev), adminID, memberID)

	require.Equal(t, http.StatusOK, rec.Code)
	var body revokeResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, int64(3), body.Revoked)
	assert.Equal(t, org1, rev.org)
	assert.Equal(t, memberID, rev.owner)
	assert.Equal(t, sessiondomain.RevokeAdmin, rev.reason)
}

func TestRevokeUserSessions_CallerChecks(t *testing.T) {
	rev := &fakeRevoker{}
	s := NewServer(directory(), rev)

	assert.Equal(t, http.StatusUnauthorized, serve(t, s, "", memberID).Code)
	assert.Equal(t, http.StatusForbidden, serve(t, s, memberID, adminID).Code)
	assert.Zero(t, rev.calls)
}

func TestRevokeUserSessions_TargetOutsideOrgIsNotFound(t *testing.T) {
	rev := &fakeRevoker{}
	s := NewServer(directory(), rev)

	assert.Equal(t, http.StatusNotFound, serve(t, s, adminID, otherID).Code)
	assert.Equal(t, http.StatusNotFound, serve(t, s, adminID, "4d3c2b1a-0f9e-4d8c-b7a6-958473625140").Code)
	assert.Equal(t, http.StatusNotFound, serve(t, s, adminID, "not-a-uuid").Code)
	assert.Zero(t, rev.calls)
}

func TestRevokeUserSessions_RevokerError(t *testing.T) {
	rev := &fakeRevoker{err: errors.New("db down")}
	rec := serve(t, NewServer(directory(), rev), adminID, memberID)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
