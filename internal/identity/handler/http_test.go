package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-tenancy/backend/internal/identity/service"
	sessiondomain "crm-tenancy/backend/internal/session/domain"
	sessionservice "crm-tenancy/backend/internal/session/service"
	"crm-tenancy/backend/internal/tenancy"
	userdomain "crm-tenancy/backend/internal/user/domain"
)

const (
	testOrgID  = "0c5a3d1e-91f2-4b7a-8e55-3f1d2a6b9c01"
	testUserID = "8a6e0804-2bd0-4672-b79d-d97027f9071a"
)

type fakeAuth struct {
	tokens *sessionservice.Tokens
	err    error
	email  string
}

func (f *fakeAuth) Login(_ context.Context, email, _ string) (*sessionservice.Tokens, error) {
	f.email = email
	return f.tokens, f.err
}

type fakeSessions struct {
	tokens       *sessionservice.Tokens
	refreshErr   error
	logoutErr    error
	loggedOut    string
	revokedOwner string
	revokeReason sessiondomain.RevokeReason
}

func (f *fakeSessions) Refresh(context.Context, string) (*sessionservice.Tokens, error) {
	return f.tokens, f.refreshErr
}

func (f *fakeSessions) Logout(_ context.Context, presented string) error {
	f.loggedOut = presented
	return f.logoutErr
}

func (f *fakeSessions) RevokeAllForOwner(_ context.Context, _, ownerID string, reason sessiondomain.RevokeReason) (int64, error) {
	f.revokedOwner, f.revokeReason = ownerID, reason
	return 2, nil
}

func sampleTokens() *sessionservice.Tokens {
	return &sessionservice.Tokens{
		AccessToken:     "access",
		AccessExpiresAt: time.Date(2026, 3, 1, 9, 15, 0, 0, time.UTC),
		RefreshToken:    "refresh",
		Principal:       userdomain.Principal{ID: testUserID, Email: "a@x.com", Role: "member", OrgID: testOrgID},
	}
}

func post(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &m))
	return m
}

func TestLogin_OK(t *testing.T) {
	auth := &fakeAuth{tokens: sampleTokens()}
	h := NewAuthHandler(auth, &fakeSessions{})

	rr := post(h.Login, `{"email":"a@x.com","password":"correct"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	body := decode(t, rr)
	assert.Equal(t, "access", body["accessToken"])
	assert.Equal(t, "refresh", body["refreshToken"])
	principal := body["principal"].(map[string]any)
	assert.Equal(t, testOrgID, principal["orgId"])
	assert.Equal(t, "a@x.com", auth.email)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	h := NewAuthHandler(&fakeAuth{err: service.ErrInvalidCredentials}, &fakeSessions{})
	rr := post(h.Login, `{"email":"a@x.com","password":"wrong"}`)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", decode(t, rr)["code"])
}

func TestLogin_RateLimited(t *testing.T) {
	h := NewAuthHandler(&fakeAuth{err: &service.RateLimitedError{RetryAfter: 1500 * time.Millisecond}}, &fakeSessions{})
	rr := post(h.Login, `{"email":"a@x.com","password":"x"}`)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "2", rr.Header().Get("Retry-After"))
}

func TestLogin_BadBodyAndInternal(t *testing.T) {
	h := NewAuthHandler(&fakeAuth{err: errors.New("db down")}, &fakeSessions{})
	assert.Equal(t, http.StatusBadRequest, post(h.Login, `{"email":`).Code)
	assert.Equal(t, http.StatusBadRequest, post(h.Login, `{"email":"a","password":"b","extra":1}`).Code)

	rr := post(h.Login, `{"email":"a@x.com","password":"x"}`)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "db down")
}

func TestRefresh(t *testing.T) {
	sessions := &fakeSessions{tokens: sampleTokens()}
	h := NewAuthHandler(&fakeAuth{}, sessions)

	rr := post(h.Refresh, `{"refreshToken":"old"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "refresh", body["refreshToken"])
	assert.NotContains(t, body, "principal")

	sessions.refreshErr = sessionservice.ErrInvalidRefreshToken
	rr = post(h.Refresh, `{"refreshToken":"old"}`)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "UNAUTHORIZED", decode(t, rr)["code"])

	sessions.refreshErr = errors.New("tx aborted")
	assert.Equal(t, http.StatusInternalServerError, post(h.Refresh, `{"refreshToken":"old"}`).Code)
}

func TestLogout(t *testing.T) {
	sessions := &fakeSessions{}
	h := NewAuthHandler(&fakeAuth{}, sessions)
	rr := post(h.Logout, `{"refreshToken":"tok"}`)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "tok", sessions.loggedOut)
}

type fakeRow struct{ value string }

func (r fakeRow) Scan(dest ...any) error {
	*(dest[0].(*string)) = r.value
	return nil
}

type fakeQuerier struct{ bound string }

func (q fakeQuerier) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (q fakeQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (q fakeQuerier) QueryRow(context.Context, string, ...any) pgx.Row { return fakeRow{q.bound} }

func boundRequest(tc tenancy.Context) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	return req.WithContext(tenancy.WithContext(req.Context(), tc, fakeQuerier{bound: tc.OrgID}))
}

func TestLogoutAll(t *testing.T) {
	sessions := &fakeSessions{}
	h := NewAuthHandler(&fakeAuth{}, sessions)

	rr := httptest.NewRecorder()
	h.LogoutAll(rr, boundRequest(tenancy.Context{OrgID: testOrgID, Source: tenancy.SourceBearer, Subject: testUserID}))
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, testUserID, sessions.revokedOwner)
	assert.Equal(t, sessiondomain.RevokeLogout, sessions.revokeReason)

	rr = httptest.NewRecorder()
	h.LogoutAll(rr, boundRequest(tenancy.Context{OrgID: testOrgID, Source: tenancy.SourceHeader}))
	assert.Equal(t, http.StatusUnauthorized, rr.Code, "header-bound requests have no principal")
}

func TestMe(t *testing.T) {
	h := NewAuthHandler(&fakeAuth{}, &fakeSessions{})
	rr := httptest.NewRecorder()
	h.Me(rr, boundRequest(tenancy.Context{
		OrgID: testOrgID, Source: tenancy.SourceBearer, Subject: testUserID, Email: "a@x.com", Role: "admin",
	}))
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, testOrgID, body["boundOrgId"])
	assert.Equal(t, "bearer", body["source"])

	rr = httptest.NewRecorder()
	h.Me(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
