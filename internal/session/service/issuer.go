// Package service issues sessions and coordinates refresh-credential rotation.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"crm-tenancy/backend/internal/security"
	"crm-tenancy/backend/internal/session/repository"
	userdomain "crm-tenancy/backend/internal/user/domain"
)

// ErrIncompletePrincipal is returned when a principal lacks a field the access token requires.
var ErrIncompletePrincipal = errors.New("principal: id, email, role and org_id are required")

// Tokens is what a client receives after login or refresh.
type Tokens struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	Principal        userdomain.Principal
}

// Issuer creates a new session (credential family) for a verified principal.
type Issuer struct {
	store      repository.Repository
	codec      *security.TokenCodec
	refreshTTL time.Duration
	now        func() time.Time
}

// NewIssuer returns an Issuer storing credentials in store and signing access tokens with codec.
func NewIssuer(store repository.Repository, codec *security.TokenCodec, refreshTTL time.Duration) *Issuer {
	return &Issuer{store: store, codec: codec, refreshTTL: refreshTTL, now: time.Now}
}

// WithClock returns a copy of the issuer that reads the current time from now.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	cp := *i
	cp.now = now
	return &cp
}

// Issue starts a new credential family for p and returns its first access and refresh tokens.
// Every call creates one credential; concurrent sessions per principal are not capped.
func (i *Issuer) Issue(ctx context.Context, p userdomain.Principal) (*Tokens, error) {
	access, accessExp, err := i.MintAccess(p)
	if err != nil {
		return nil, err
	}
	issued, err := i.store.Create(ctx, p.ID, uuid.New().String(), i.RefreshExpiry())
	if err != nil {
		return nil, fmt.Errorf("issue refresh credential: %w", err)
	}
	return &Tokens{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     issued.Token,
		RefreshExpiresAt: issued.Credential.ExpiresAt,
		Principal:        p,
	}, nil
}

// MintAccess encodes an access token for p.
func (i *Issuer) MintAccess(p userdomain.Principal) (string, time.Time, error) {
	if p.ID == "" || p.Email == "" || p.Role == "" || p.OrgID == "" {
		return "", time.Time{}, ErrIncompletePrincipal
	}
	return i.codec.Encode(security.Claims{
		Subject: p.ID,
		Email:   p.Email,
		Role:    p.Role,
		OrgID:   p.OrgID,
	})
}

// RefreshExpiry is the expiry of a credential created now.
func (i *Issuer) RefreshExpiry() time.Time {
	return i.now().UTC().Add(i.refreshTTL)
}
