package repository

import (
	"context"
	"time"

	"crm-tenancy/backend/internal/session/domain"
)

// Repository is the credential store. Presented tokens are "<credential id>.<secret>";
// lookups are keyed by the id and the secret is compared in constant time.
type Repository interface {
	// Create stores a new credential in familyID for ownerID and returns its one-time token.
	Create(ctx context.Context, ownerID, familyID string, expiresAt time.Time) (*domain.Issued, error)
	// Verify returns the stored credential if presented matches an active one. Rejections for a known
	// credential are *domain.RejectedError values.
	Verify(ctx context.Context, presented string) (*domain.RefreshCredential, error)
	// Rotate atomically revokes the presented credential as rotated and issues its replacement in the
	// same family. Of several concurrent rotations of one credential, exactly one succeeds; the others
	// observe it as rotated. An expired credential is marked revoked (expired) and rejected.
	Rotate(ctx context.Context, presented string, expiresAt time.Time) (*domain.Rotation, error)
	// Revoke revokes one credential. Revoking an already revoked credential is a no-op.
	Revoke(ctx context.Context, id string, reason domain.RevokeReason) error
	// RevokeFamily revokes every still-active credential in a family and returns how many changed.
	RevokeFamily(ctx context.Context, familyID string, reason domain.RevokeReason) (int64, error)
	// RevokeAllForOwner revokes every still-active credential of an owner and returns how many changed.
	RevokeAllForOwner(ctx context.Context, ownerID string, reason domain.RevokeReason) (int64, error)
	// PurgeExpired deletes credentials that expired before the cutoff. Unexpired rows are never deleted.
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}
