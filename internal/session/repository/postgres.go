package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"crm-tenancy/backend/internal/security"
	"crm-tenancy/backend/internal/session/domain"
)

const credentialColumns = `id::text, family_id::text, owner_id::text, secret_hash, expires_at, created_at,
	revoked_at, revoke_reason, replaced_by::text`

type credentialRow struct {
	ID         string     `db:"id"`
	FamilyID   string     `db:"family_id"`
	OwnerID    string     `db:"owner_id"`
	SecretHash string     `db:"secret_hash"`
	ExpiresAt  time.Time  `db:"expires_at"`
	CreatedAt  time.Time  `db:"created_at"`
	RevokedAt  *time.Time `db:"revoked_at"`
	Reason     *string    `db:"revoke_reason"`
	ReplacedBy *string    `db:"replaced_by"`
}

func (r *credentialRow) toDomain() *domain.RefreshCredential {
	c := &domain.RefreshCredential{
		ID:         r.ID,
		FamilyID:   r.FamilyID,
		OwnerID:    r.OwnerID,
		SecretHash: r.SecretHash,
		ExpiresAt:  r.ExpiresAt.UTC(),
		CreatedAt:  r.CreatedAt.UTC(),
	}
	if r.RevokedAt != nil {
		at := r.RevokedAt.UTC()
		c.RevokedAt = &at
	}
	if r.Reason != nil {
		c.Reason = domain.RevokeReason(*r.Reason)
	}
	if r.ReplacedBy != nil {
		c.ReplacedBy = *r.ReplacedBy
	}
	return c
}

// PostgresRepository stores refresh credentials in the refresh_credentials table.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	hasher *security.RefreshHasher
	now    func() time.Time
}

// NewPostgresRepository returns a credential store on pool that hashes secrets with hasher.
func NewPostgresRepository(pool *pgxpool.Pool, hasher *security.RefreshHasher) *PostgresRepository {
	return &PostgresRepository{pool: pool, hasher: hasher, now: time.Now}
}

// newCredential builds a credential and its token. Shared by Create and Rotate.
func newCredential(h *security.RefreshHasher, ownerID, familyID string, now, expiresAt time.Time) (*domain.Issued, error) {
	secret, err := security.GenerateRefreshSecret()
	if err != nil {
		return nil, fmt.Errorf("refresh secret: %w", err)
	}
	c := &domain.RefreshCredential{
		ID:         uuid.New().String(),
		FamilyID:   familyID,
		OwnerID:    ownerID,
		SecretHash: h.Hash(secret),
		ExpiresAt:  expiresAt.UTC(),
		CreatedAt:  now.UTC(),
	}
	return &domain.Issued{Credential: c, Token: security.FormatRefreshToken(c.ID, secret)}, nil
}

const insertCredential = `
	INSERT INTO refresh_credentials (id, family_id, owner_id, secret_hash, expires_at, created_at)
	VALUES ($1::uuid, $2::uuid, $3::uuid, $4, $5, $6)`

func (r *PostgresRepository) Create(ctx context.Context, ownerID, familyID string, expiresAt time.Time) (*domain.Issued, error) {
	issued, err := newCredential(r.hasher, ownerID, familyID, r.now(), expiresAt)
	if err != nil {
		return nil, err
	}
	c := issued.Credential
	if _, err := r.pool.Exec(ctx, insertCredential, c.ID, c.FamilyID, c.OwnerID, c.SecretHash, c.ExpiresAt, c.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert refresh credential: %w", err)
	}
	return issued, nil
}

func (r *PostgresRepository) Verify(ctx context.Context, presented string) (*domain.RefreshCredential, error) {
	id, secret, err := security.ParseRefreshToken(presented)
	if err != nil {
		return nil, err
	}
	var row credentialRow
	if err := pgxscan.Get(ctx, r.pool, &row, `SELECT `+credentialColumns+` FROM refresh_credentials WHERE id = $1::uuid`, id); err != nil {
		if pgxscan.NotFound(err) {
			return nil, domain.ErrCredentialNotFound
		}
		return nil, err
	}
	c := row.toDomain()
	if !r.hasher.Equal(secret, c.SecretHash) {
		return nil, domain.ErrSecretMismatch
	}
	if err := domain.Reject(c, r.now()); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *PostgresRepository) Rotate(ctx context.Context, presented string, expiresAt time.Time) (*domain.Rotation, error) {
	id, secret, err := security.ParseRefreshToken(presented)
	if err != nil {
		return nil, err
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin rotate: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	var row credentialRow
	err = pgxscan.Get(ctx, tx, &row, `SELECT `+credentialColumns+` FROM refresh_credentials WHERE id = $1::uuid FOR UPDATE`, id)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, domain.ErrCredentialNotFound
		}
		return nil, err
	}
	prev := row.toDomain()
	if !r.hasher.Equal(secret, prev.SecretHash) {
		return nil, domain.ErrSecretMismatch
	}

	now := r.now().UTC()
	if rejectErr := domain.Reject(prev, now); rejectErr != nil {
		if prev.RevokedAt == nil && errors.Is(rejectErr, domain.ErrCredentialExpired) {
			if _, err := tx.Exec(ctx, `UPDATE refresh_credentials SET revoked_at = $2, revoke_reason = $3 WHERE id = $1::uuid`,
				prev.ID, now, string(domain.RevokeExpired)); err != nil {
				return nil, fmt.Errorf("mark expired: %w", err)
			}
			if err := tx.Commit(ctx); err != nil {
				return nil, fmt.Errorf("commit expired: %w", err)
			}
			prev.RevokedAt, prev.Reason = &now, domain.RevokeExpired
		}
		return nil, rejectErr
	}

	next, err := newCredential(r.hasher, prev.OwnerID, prev.FamilyID, now, expiresAt)
	if err != nil {
		return nil, err
	}
	n := next.Credential
	if _, err := tx.Exec(ctx, insertCredential, n.ID, n.FamilyID, n.OwnerID, n.SecretHash, n.ExpiresAt, n.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert rotated credential: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE refresh_credentials SET revoked_at = $2, revoke_reason = $3, replaced_by = $4::uuid
		WHERE id = $1::uuid`, prev.ID, now, string(domain.RevokeRotated), n.ID); err != nil {
		return nil, fmt.Errorf("revoke rotated credential: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit rotate: %w", err)
	}
	prev.RevokedAt, prev.Reason, prev.ReplacedBy = &now, domain.RevokeRotated, n.ID
	return &domain.Rotation{Previous: prev, Next: next}, nil
}

func (r *PostgresRepository) Revoke(ctx context.Context, id string, reason domain.RevokeReason) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE refresh_credentials SET revoked_at = $2, revoke_reason = $3
		WHERE id = $1::uuid AND revoked_at IS NULL`, id, r.now().UTC(), string(reason))
	return err
}

func (r *PostgresRepository) RevokeFamily(ctx context.Context, familyID string, reason domain.RevokeReason) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE refresh_credentials SET revoked_at = $2, revoke_reason = $3
		WHERE family_id = $1::uuid AND revoked_at IS NULL`, familyID, r.now().UTC(), string(reason))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) RevokeAllForOwner(ctx context.Context, ownerID string, reason domain.RevokeReason) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE refresh_credentials SET revoked_at = $2, revoke_reason = $3
		WHERE owner_id = $1::uuid AND revoked_at IS NULL`, ownerID, r.now().UTC(), string(reason))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// PurgeExpired clamps before to the current time, so a future cutoff cannot delete live credentials.
func (r *PostgresRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	if now := r.now(); before.After(now) {
		before = now
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM refresh_credentials WHERE expires_at < $1`, before.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// WithClock returns a copy of the repository that reads the current time from now.
func (r *PostgresRepository) WithClock(now func() time.Time) *PostgresRepository {
	cp := *r
	cp.now = now
	return &cp
}
