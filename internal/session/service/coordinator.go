package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"crm-tenancy/backend/internal/audit"
	"crm-tenancy/backend/internal/platform/logger"
	"crm-tenancy/backend/internal/security"
	"crm-tenancy/backend/internal/session/domain"
	"crm-tenancy/backend/internal/session/repository"
	"crm-tenancy/backend/internal/telemetry"
	userdomain "crm-tenancy/backend/internal/user/domain"
)

// ErrInvalidRefreshToken is the only credential error a caller of Refresh sees. The specific
// cause (unknown, mismatched, expired, revoked, reused, principal gone) is logged and counted.
var ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")

// PrincipalDirectory is the user lookup Refresh re-reads claims from.
type PrincipalDirectory interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// Coordinator validates presented refresh credentials, rotates them and mints new access tokens.
type Coordinator struct {
	issuer    *Issuer
	store     repository.Repository
	directory PrincipalDirectory
	audit     audit.AuditLogger
	metrics   *telemetry.Metrics
}

// NewCoordinator returns a Coordinator. auditLogger and metrics may be nil.
func NewCoordinator(issuer *Issuer, directory PrincipalDirectory, auditLogger audit.AuditLogger, metrics *telemetry.Metrics) *Coordinator {
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	return &Coordinator{
		issuer:    issuer,
		store:     issuer.store,
		directory: directory,
		audit:     auditLogger,
		metrics:   metrics,
	}
}

// Refresh exchanges a refresh token for a new access token and a rotated refresh token.
// Claims are re-derived from the directory, never copied from the previous access token.
//
// Presenting a credential that was already rotated revokes its whole family: either the token
// leaked or two clients raced with the same token, and both cases end the session.
func (c *Coordinator) Refresh(ctx context.Context, presented string) (*Tokens, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "session.Refresh")
	defer span.End()
	log := logger.From(ctx).With(logger.Component("refresh"))

	rot, err := c.store.Rotate(ctx, presented, c.issuer.RefreshExpiry())
	if err != nil {
		return nil, c.rejectRotation(ctx, log, err)
	}
	prev := rot.Previous
	span.SetAttributes(attribute.String("credential.family_id", prev.FamilyID))
	log = log.With(logger.UserID(prev.OwnerID), logger.FamilyID(prev.FamilyID))

	user, err := c.directory.GetByID(ctx, prev.OwnerID)
	if err != nil {
		c.metrics.Refresh("error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "principal lookup")
		log.Error("refresh: principal lookup failed after rotation", logger.Err(err))
		return nil, fmt.Errorf("refresh: load principal: %w", err)
	}
	if !user.Active() {
		if _, err := c.store.RevokeFamily(ctx, prev.FamilyID, domain.RevokePrincipalUnavailable); err != nil {
			log.Error("refresh: revoke family for unavailable principal", logger.Err(err))
		}
		c.metrics.Refresh(string(domain.RevokePrincipalUnavailable))
		log.Info("refresh rejected", logger.Reason(string(domain.RevokePrincipalUnavailable)))
		return nil, ErrInvalidRefreshToken
	}

	p := user.Principal()
	access, accessExp, err := c.issuer.MintAccess(p)
	if err != nil {
		c.metrics.Refresh("error")
		span.RecordError(err)
		return nil, fmt.Errorf("refresh: mint access token: %w", err)
	}
	c.metrics.Refresh("ok")
	log.Debug("refresh ok", logger.CredentialID(rot.Next.Credential.ID))
	return &Tokens{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     rot.Next.Token,
		RefreshExpiresAt: rot.Next.Credential.ExpiresAt,
		Principal:        p,
	}, nil
}

// rejectRotation maps a Rotate failure to ErrInvalidRefreshToken, handling reuse on the way.
// Infrastructure errors are returned wrapped so the caller can answer 500.
func (c *Coordinator) rejectRotation(ctx context.Context, log *zap.Logger, err error) error {
	var rejected *domain.RejectedError
	errors.As(err, &rejected)

	switch {
	case errors.Is(err, domain.ErrCredentialRotated):
		c.handleReuse(ctx, log, rejected.Credential)
		c.metrics.Refresh(string(domain.RevokeReuseDetected))
		return ErrInvalidRefreshToken
	case errors.Is(err, domain.ErrCredentialExpired):
		c.metrics.Refresh("expired")
		log.Info("refresh rejected", logger.Reason("expired"), logger.CredentialID(rejected.Credential.ID))
		return ErrInvalidRefreshToken
	case errors.Is(err, domain.ErrCredentialRevoked):
		c.metrics.Refresh("revoked")
		log.Info("refresh rejected", logger.Reason(string(rejected.Credential.Reason)), logger.CredentialID(rejected.Credential.ID))
		return ErrInvalidRefreshToken
	case errors.Is(err, security.ErrMalformedRefreshToken),
		errors.Is(err, domain.ErrCredentialNotFound),
		errors.Is(err, domain.ErrSecretMismatch):
		c.metrics.Refresh("invalid")
		log.Info("refresh rejected", logger.Reason(err.Error()))
		return ErrInvalidRefreshToken
	default:
		c.metrics.Refresh("error")
		log.Error("refresh: credential store", logger.Err(err))
		return fmt.Errorf("refresh: %w", err)
	}
}

func (c *Coordinator) handleReuse(ctx context.Context, log *zap.Logger, cred *domain.RefreshCredential) {
	n, err := c.store.RevokeFamily(ctx, cred.FamilyID, domain.RevokeReuseDetected)
	if err != nil {
		log.Error("refresh: revoke family after reuse", logger.FamilyID(cred.FamilyID), logger.Err(err))
	}
	log.Warn("refresh token reuse detected; family revoked",
		logger.UserID(cred.OwnerID),
		logger.FamilyID(cred.FamilyID),
		logger.CredentialID(cred.ID),
		zap.Int64("revoked", n),
	)
	c.audit.LogEvent(ctx, c.orgOf(ctx, cred.OwnerID), cred.OwnerID, audit.ActionRefreshReuseDetected, audit.ResourceSession,
		fmt.Sprintf(`{"family_id":%q,"credential_id":%q}`, cred.FamilyID, cred.ID))
}

// orgOf returns the owner's organization for audit rows, or "" (the system sentinel) if unknown.
func (c *Coordinator) orgOf(ctx context.Context, ownerID string) string {
	u, err := c.directory.GetByID(ctx, ownerID)
	if err != nil || u == nil {
		return ""
	}
	return u.OrgID
}

// Logout ends the session the presented token belongs to by revoking its family. Unknown or already
// revoked tokens are ignored so logout is idempotent; only store failures are returned.
func (c *Coordinator) Logout(ctx context.Context, presented string) error {
	ctx, span := telemetry.Tracer().Start(ctx, "session.Logout")
	defer span.End()
	log := logger.From(ctx).With(logger.Component("logout"))

	cred, err := c.store.Verify(ctx, presented)
	if err != nil {
		var rejected *domain.RejectedError
		switch {
		case errors.Is(err, domain.ErrCredentialRotated) && errors.As(err, &rejected):
			c.handleReuse(ctx, log, rejected.Credential)
			return nil
		case errors.As(err, &rejected),
			errors.Is(err, security.ErrMalformedRefreshToken),
			errors.Is(err, domain.ErrCredentialNotFound),
			errors.Is(err, domain.ErrSecretMismatch):
			log.Debug("logout with unusable token", logger.Reason(err.Error()))
			return nil
		}
		return fmt.Errorf("logout: %w", err)
	}
	if _, err := c.store.RevokeFamily(ctx, cred.FamilyID, domain.RevokeLogout); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	c.audit.LogEvent(ctx, c.orgOf(ctx, cred.OwnerID), cred.OwnerID, audit.ActionLogout, audit.ResourceSession, "")
	log.Info("logout", logger.UserID(cred.OwnerID), logger.FamilyID(cred.FamilyID))
	return nil
}

// RevokeAllForOwner revokes every active credential of ownerID (logout everywhere, password
// change, incident response). Returns the number of credentials revoked.
func (c *Coordinator) RevokeAllForOwner(ctx context.Context, orgID, ownerID string, reason domain.RevokeReason) (int64, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "session.RevokeAllForOwner")
	defer span.End()

	n, err := c.store.RevokeAllForOwner(ctx, ownerID, reason)
	if err != nil {
		return 0, fmt.Errorf("revoke all: %w", err)
	}
	c.audit.LogEvent(ctx, orgID, ownerID, audit.ActionLogoutAll, audit.ResourceSession,
		fmt.Sprintf(`{"reason":%q,"revoked":%d}`, reason, n))
	logger.From(ctx).Info("revoked all credentials",
		logger.UserID(ownerID), logger.Reason(string(reason)), zap.Int64("revoked", n))
	return n, nil
}
