package domain

import (
	"errors"
	"time"
)

// User is a directory entry. Each user belongs to exactly one organization.
type User struct {
	ID           string
	OrgID        string
	Email        string
	PasswordHash string
	Role         Role
	Status       UserStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// Role is the user's role within their organization. It is carried in access tokens.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

// Principal is the authenticated identity a session is issued for. Immutable once read.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
	OrgID string `json:"orgId"`
}

// Active reports whether the user may authenticate.
func (u *User) Active() bool {
	return u != nil && u.Status == UserStatusActive
}

// Principal returns the snapshot carried into tokens.
func (u *User) Principal() Principal {
	return Principal{ID: u.ID, Email: u.Email, Role: string(u.Role), OrgID: u.OrgID}
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.OrgID == "" {
		return errors.New("org_id is required")
	}
	if u.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	if !u.Role.Valid() {
		return errors.New("role must be owner, admin or member")
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	return nil
}
