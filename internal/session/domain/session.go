// Package domain defines refresh credentials and the states they move through.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// RefreshCredential is one link in a refresh chain. Only SecretHash is stored; the plaintext
// secret is returned once, at issue.
type RefreshCredential struct {
	ID         string
	FamilyID   string // shared by every credential rotated from the same login
	OwnerID    string
	SecretHash string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	RevokedAt  *time.Time // nil when not revoked
	Reason     RevokeReason
	ReplacedBy string // set when Reason is RevokeRotated
}

// RevokeReason records why a credential stopped being usable.
type RevokeReason string

const (
	RevokeRotated              RevokeReason = "rotated"
	RevokeLogout               RevokeReason = "logout"
	RevokeAdmin                RevokeReason = "admin"
	RevokeReuseDetected        RevokeReason = "reuse_detected"
	RevokeExpired              RevokeReason = "expired"
	RevokePrincipalUnavailable RevokeReason = "principal_unavailable"
)

// State is the lifecycle state of a credential at a point in time.
type State string

const (
	StateActive  State = "active"
	StateRotated State = "rotated"
	StateExpired State = "expired"
	StateRevoked State = "revoked"
)

// StateAt returns the credential's state at now. Revocation wins over expiry.
func (c *RefreshCredential) StateAt(now time.Time) State {
	switch {
	case c.RevokedAt != nil && c.Reason == RevokeRotated:
		return StateRotated
	case c.RevokedAt != nil && c.Reason == RevokeExpired:
		return StateExpired
	case c.RevokedAt != nil:
		return StateRevoked
	case !now.Before(c.ExpiresAt):
		return StateExpired
	default:
		return StateActive
	}
}

// ActiveAt reports whether the credential may be used at now.
func (c *RefreshCredential) ActiveAt(now time.Time) bool {
	return c.StateAt(now) == StateActive
}

// Issued is a freshly created credential. Token is "<id>.<secret>" and is never stored.
type Issued struct {
	Credential *RefreshCredential
	Token      string
}

// Rotation is the result of a successful rotate: Previous is now revoked as rotated, Next replaces it.
type Rotation struct {
	Previous *RefreshCredential
	Next     *Issued
}

var (
	// ErrCredentialNotFound is returned when no credential has the presented id.
	ErrCredentialNotFound = errors.New("refresh credential not found")
	// ErrSecretMismatch is returned when the presented secret does not hash to the stored value.
	ErrSecretMismatch = errors.New("refresh credential secret mismatch")
	// ErrCredentialRevoked is returned for a credential revoked for any reason other than rotation.
	ErrCredentialRevoked = errors.New("refresh credential revoked")
	// ErrCredentialRotated is returned when a credential that was already rotated is presented again.
	ErrCredentialRotated = errors.New("refresh credential already rotated")
	// ErrCredentialExpired is returned when the credential's expiry has passed.
	ErrCredentialExpired = errors.New("refresh credential expired")
)

// RejectedError carries the stored credential a presentation was rejected for, so callers can act
// on its family (e.g. revoke it on reuse) without a second lookup.
type RejectedError struct {
	Err        error
	Credential *RefreshCredential
}

func (e *RejectedError) Error() string {
	if e.Credential == nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v (credential %s)", e.Err, e.Credential.ID)
}

func (e *RejectedError) Unwrap() error {
	return e.Err
}

// Reject returns a RejectedError for c, or nil when c is active at now.
func Reject(c *RefreshCredential, now time.Time) error {
	switch c.StateAt(now) {
	case StateRotated:
		return &RejectedError{Err: ErrCredentialRotated, Credential: c}
	case StateExpired:
		return &RejectedError{Err: ErrCredentialExpired, Credential: c}
	case StateRevoked:
		return &RejectedError{Err: ErrCredentialRevoked, Credential: c}
	}
	return nil
}
