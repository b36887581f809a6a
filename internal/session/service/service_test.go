package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-tenancy/backend/internal/security"
	"crm-tenancy/backend/internal/session/domain"
	"crm-tenancy/backend/internal/session/repository"
	userdomain "crm-tenancy/backend/internal/user/domain"
)

const (
	testUserID = "8a6e0804-2bd0-4672-b79d-d97027f9071a"
	testOrgID  = "0c5a3d1e-91f2-4b7a-8e55-3f1d2a6b9c01"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type memDirectory struct {
	mu    sync.Mutex
	users map[string]*userdomain.User
	err   error
}

func (d *memDirectory) GetByID(_ context.Context, id string) (*userdomain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	u, ok := d.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (d *memDirectory) set(u *userdomain.User) {
	d.mu.Lock()
	d.users[u.ID] = u
	d.mu.Unlock()
}

type auditEvent struct {
	orgID, userID, action, resource, metadata string
}

type recordingAudit struct {
	mu     sync.Mutex
	events []auditEvent
}

func (a *recordingAudit) LogEvent(_ context.Context, orgID, userID, action, resource, metadata string) {
	a.mu.Lock()
	a.events = append(a.events, auditEvent{orgID, userID, action, resource, metadata})
	a.mu.Unlock()
}

func (a *recordingAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.events))
	for _, e := range a.events {
		out = append(out, e.action)
	}
	return out
}

type fixture struct {
	clk    *clock
	store  *repository.MemoryRepository
	codec  *security.TokenCodec
	issuer *Issuer
	coord  *Coordinator
	dir    *memDirectory
	audit  *recordingAudit
	user   *userdomain.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	codec, err := security.NewTestTokenCodec()
	require.NoError(t, err)
	codec = codec.WithClock(clk.Now)
	store := repository.NewMemoryRepository(security.NewTestRefreshHasher(), clk.Now)
	issuer := NewIssuer(store, codec, 7*24*time.Hour).WithClock(clk.Now)
	user := &userdomain.User{
		ID:     testUserID,
		OrgID:  testOrgID,
		Email:  "ana@example.com",
		Role:   userdomain.RoleAdmin,
		Status: userdomain.UserStatusActive,
	}
	dir := &memDirectory{users: map[string]*userdomain.User{user.ID: user}}
	rec := &recordingAudit{}
	return &fixture{
		clk:    clk,
		store:  store,
		codec:  codec,
		issuer: issuer,
		coord:  NewCoordinator(issuer, dir, rec, nil),
		dir:    dir,
		audit:  rec,
		user:   user,
	}
}

func credentialID(t *testing.T, token string) string {
	t.Helper()
	id, _, err := security.ParseRefreshToken(token)
	require.NoError(t, err)
	return id
}

func TestIssuer_Issue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tokens, err := f.issuer.Issue(ctx, f.user.Principal())
	require.NoError(t, err)

	claims, err := f.codec.Decode(tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, testUserID, claims.Subject)
	assert.Equal(t, testOrgID, claims.OrgID)
	assert.Equal(t, "admin", claims.Role)
	assert.Equal(t, f.clk.Now().Add(15*time.Minute), tokens.AccessExpiresAt)
	assert.Equal(t, f.clk.Now().Add(7*24*time.Hour), tokens.RefreshExpiresAt)

	stored := f.store.Get(credentialID(t, tokens.RefreshToken))
	require.NotNil(t, stored)
	assert.Equal(t, testUserID, stored.OwnerID)
	assert.NotContains(t, stored.SecretHash, tokens.RefreshToken)
	assert.True(t, stored.ActiveAt(f.clk.Now()))
}

func TestIssuer_EachLoginStartsNewFamily(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.issuer.Issue(ctx, f.user.Principal())
	require.NoError(t, err)
	b, err := f.issuer.Issue(ctx, f.user.Principal())
	require.NoError(t, err)

	ca := f.store.Get(credentialID(t, a.RefreshToken))
	cb := f.store.Get(credentialID(t, b.RefreshToken))
	assert.NotEqual(t, ca.FamilyID, cb.FamilyID)
	assert.Equal(t, 2, f.store.Len())
}

func TestIssuer_IncompletePrincipal(t *testing.T) {
	f := newFixture(t)
	p := f.user.Principal()
	p.OrgID = ""
	_, err := f.issuer.Issue(context.Background(), p)
	require.ErrorIs(t, err, ErrIncompletePrincipal)
	assert.Equal(t, 0, f.store.Len(), "no credential is stored when the access token cannot be minted")
}

func TestCoordinator_RefreshRotates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.issuer.Issue(ctx, f.user.Principal())
	require.NoError(t, err)

	f.clk.Advance(time.Minute)
	next, err := f.coord.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, next.RefreshToken)

	prev := f.store.Get(credentialID(t, first.RefreshToken))
	assert.Equal(t, domain.StateRotated, prev.StateAt(f.clk.Now()))
	assert.Equal(t, credentialID(t, next.RefreshToken), prev.ReplacedBy)

	cur := f.store.Get(credentialID(t, next.RefreshToken))
	assert.Equal(t, prev.FamilyID, cur.FamilyID)

	claims, err := f.codec.Decode(next.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, testUserID, claims.Subject)
}

func TestCoordinator_RefreshRederivesClaims(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.issuer.Issue(ctx, f.user.Principal())
	require.NoError(t, err)

	changed := *f.user
	changed.Role = userdomain.RoleMember
	f.dir.set(&changed)

	next, err := f.coord.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	claims, err := f.codec.Decode(next.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "member", claims.Role)
	assert.Equal(t, "member", next.Principal.Role)
}

func TestCoordinator_ReuseRevokesFamily(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.issuer.Issue(ctx, f.user.Principal())
	require.NoError(t, err)
	second, err := f.coord.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)

	_, err = f.coord.Refresh(ctx, first.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)

	cur := f.store.Get(credentialID(t, second.RefreshToken))
	require.NotNil(t, cur.RevokedAt)
	assert.Equal(t, domain.RevokeReuseDetected, cur.Reason)

	_, err = f.coord.Refresh(ctx, second.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefreshToken, "the legitimate holder is logged out too")
	assert.Contains(t, f.audit.actions(), "refresh_reuse_detected")
}

func TestCoordinator_ConcurrentRefreshHasOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.issuer.Issue(ctx, f.user.Principal())
	require.NoError(t, err)

	const n = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.coord.Refresh(ctx, first.RefreshToken); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else if !errors.Is(err, ErrInvalidRefreshToken) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestCoordinator_RefreshRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued, err := f.issuer.Issue(ctx, f.user.Principal())
	require.NoError(t, err)
	id := credentialID(t, issued.RefreshToken)
	otherSecret, err := security.GenerateRefreshSecret()
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":           "",
		"garbage":         "not-a-token",
		"unknown id":      security.FormatRefreshToken("3f0c2b8e-7d41-4a55-9b1e-6c2d8f0a1b23", otherSecret),
		"secret mismatch": security.FormatRefreshToken(id, otherSecret),
	} {
		_, err := f.coord.Refresh(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidRefreshToken, name)
	}

	// A mismatched secret must not let someone who only knows the id end the session.
	_, err = f.coord.Refresh(ctx, issued.RefreshToken)
	require.NoError(t, err)
}

func TestCoordinator_RefreshExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.issuer = NewIssuer(f.store, f.codec, 10*time.Second).WithClock(f.clk.Now)
	f.coord = NewCoordinator(f.issuer, f.dir, f.audit, nil)

	issued, err := f.issuer.Issue(ctx, f.user.Principal())
	require.NoError(t, err)
	f.clk.Advance(11 * time.Second)

	_, err = f.coord.Refresh(ctx, issued.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
	stored := f.store.Get(credentialID(t, issued.RefreshToken))
	assert.Equal(t, domain.RevokeExpired, stored.Reason)
}

func TestCoordinator_RefreshDisabledPrincipal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued, err := f.issuer.Issue(ctx, f.user.Principal())
	require.NoError(t, err)

	disabled := *f.user
	disabled.Status = userdomain.UserStatusDisabled
	f.dir.set(&disabled)

	_, err = f.coord.Refresh(ctx, issued.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)

	prev := f.store.Get(credentialID(t, issued.RefreshToken))
	next := f.store.Get(prev.ReplacedBy)
	require.NotNil(t, next)
	assert.Equal(t, domain.RevokePrincipalUnavailable, next.Reason)
}

func TestCoordinator_RefreshDirectoryFailureIsInternal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued, err := f.issuer.Issue(ctx, f.user.Principal())
	require.NoError(t, err)

	boom := errors.New("connection refused")
	f.dir.err = boom
	_, err = f.coord.Refresh(ctx, issued.RefreshToken)
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestCoordinator_Logout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.issuer.Issue(ctx, f.user.Principal())
	require.NoError(t, err)
	second, err := f.coord.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)

	require.NoError(t, f.coord.Logout(ctx, second.RefreshToken))
	cur := f.store.Get(credentialID(t, second.RefreshToken))
	assert.Equal(t, domain.RevokeLogout, cur.Reason)

	// Idempotent, and silent on junk.
	require.NoError(t, f.coord.Logout(ctx, second.RefreshToken))
	require.NoError(t, f.coord.Logout(ctx, "junk"))
	assert.Equal(t, []string{"logout"}, f.audit.actions())
}

func TestCoordinator_RevokeAllForOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var tokens []string
	for i := 0; i < 3; i++ {
		issued, err := f.issuer.Issue(ctx, f.user.Principal())
		require.NoError(t, err)
		tokens = append(tokens, issued.RefreshToken)
	}

	n, err := f.coord.RevokeAllForOwner(ctx, testOrgID, testUserID, domain.RevokeAdmin)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)
	for _, tok := range tokens {
		_, err := f.coord.Refresh(ctx, tok)
		assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	}
	assert.Contains(t, f.audit.actions(), "logout_all")
}

func TestPurger_PurgeOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	short := NewIssuer(f.store, f.codec, time.Minute).WithClock(f.clk.Now)
	_, err := short.Issue(ctx, f.user.Principal())
	require.NoError(t, err)
	_, err = f.issuer.Issue(ctx, f.user.Principal())
	require.NoError(t, err)

	p := NewPurger(f.store, time.Hour, nil)
	p.now = f.clk.Now

	n, err := p.PurgeOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing has been expired for longer than the retention")

	f.clk.Advance(2 * time.Hour)
	n, err = p.PurgeOnce(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, 1, f.store.Len())
}

func TestPurger_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewPurger(f.store, time.Hour, nil).Run(ctx, time.Hour) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
