package repository

import (
	"context"
	"database/sql"
	"errors"

	"praxis-pilot/backend/internal/db"
	"praxis-pilot/backend/internal/user/domain"
)

// PostgresRepository implements Repository inside the active tenant scope.
type PostgresRepository struct{}

// NewPostgresRepository returns a user repository bound to the scope's transaction.
func NewPostgresRepository() *PostgresRepository {
	return &PostgresRepository{}
}

const userColumns = `id, tenant_id, b2c_sub, COALESCE(email, ''), role, created_at, updated_at`

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return scanUser(conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetBySubject returns the user with the given b2c subject, or nil if not found.
// Row-level security restricts the lookup to the bound tenant.
func (r *PostgresRepository) GetBySubject(ctx context.Context, subject string) (*domain.User, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return scanUser(conn.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE b2c_sub = $1`, subject))
}

// Upsert inserts the user, or updates email and role when (tenant_id, b2c_sub) exists.
// A preset u.ID is used for new rows; otherwise the database assigns one.
func (r *PostgresRepository) Upsert(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	var id, email any
	if u.ID != "" {
		id = u.ID
	}
	if u.Email != "" {
		email = u.Email
	}
	return conn.QueryRowContext(ctx, `
		INSERT INTO users (id, tenant_id, b2c_sub, email, role)
		VALUES (COALESCE($1::uuid, gen_random_uuid()), $2, $3, $4, $5)
		ON CONFLICT ON CONSTRAINT users_tenant_sub_key
		DO UPDATE SET email = EXCLUDED.email, role = EXCLUDED.role, updated_at = now()
		RETURNING id, created_at, updated_at`,
		id, u.TenantID, u.Subject, email, u.Role,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.TenantID, &u.Subject, &u.Email, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}
