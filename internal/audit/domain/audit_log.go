// Package domain holds the audit event record shared by the logger and its store.
package domain

import "time"

// SystemOrgID is stored as org_id for events raised before a tenant is known,
// such as a failed login for an unknown email.
const SystemOrgID = "_system"

// AuditLog is one security event on the auth or tenancy path. Rows are append-only.
type AuditLog struct {
	ID     string
	OrgID  string
	UserID string // empty when no principal was resolved
	// Action is one of the audit.Action* constants; Resource is "session" or "tenant".
	Action   string
	Resource string
	IP       string
	// Metadata is a short free-form detail, e.g. the rejection reason. Never a token or password.
	Metadata  string
	CreatedAt time.Time
}

// System reports whether the event was recorded without a tenant.
func (a *AuditLog) System() bool {
	return a.OrgID == "" || a.OrgID == SystemOrgID
}
