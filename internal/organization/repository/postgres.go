package repository

import (
	"context"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"

	"crm-tenancy/backend/internal/organization/domain"
)

type orgRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns an organization repository that uses the given pool for persistence.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetByID returns the organization for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Org, error) {
	var row orgRow
	err := pgxscan.Get(ctx, r.pool, &row, `SELECT id::text, name, created_at FROM organizations WHERE id = $1::uuid`, id)
	if err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &domain.Org{ID: row.ID, Name: row.Name, CreatedAt: row.CreatedAt}, nil
}

// Create persists o. Creating an existing id is a no-op so seeding can be re-run.
func (r *PostgresRepository) Create(ctx context.Context, o *domain.Org) error {
	if err := o.Validate(); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO organizations (id, name, created_at) VALUES ($1::uuid, $2, $3)
		ON CONFLICT (id) DO NOTHING`, o.ID, o.Name, o.CreatedAt)
	return err
}
