package repository

import (
	"context"
	"database/sql"
	"errors"

	"praxis-pilot/backend/internal/db"
	"praxis-pilot/backend/internal/folder/domain"
)

// PostgresRepository implements Repository inside the active tenant scope.
type PostgresRepository struct{}

// NewPostgresRepository returns a new PostgresRepository.
func NewPostgresRepository() *PostgresRepository {
	return &PostgresRepository{}
}

// Create implements Repository.
func (r *PostgresRepository) Create(ctx context.Context, f *domain.Folder) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	return conn.QueryRowContext(ctx, `
		INSERT INTO folders (tenant_id, name) VALUES ($1, $2)
		RETURNING id, created_at`, f.TenantID, f.Name,
	).Scan(&f.ID, &f.CreatedAt)
}

// List returns the tenant's folders ordered by name.
func (r *PostgresRepository) List(ctx context.Context) ([]*domain.Folder, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx, `SELECT id, tenant_id, name, created_at FROM folders ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Folder
	for rows.Next() {
		var f domain.Folder
		if err := rows.Scan(&f.ID, &f.TenantID, &f.Name, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

// Rename implements Repository.
func (r *PostgresRepository) Rename(ctx context.Context, id, name string) (*domain.Folder, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	var f domain.Folder
	err = conn.QueryRowContext(ctx, `
		UPDATE folders SET name = $2 WHERE id = $1
		RETURNING id, tenant_id, name, created_at`, id, name,
	).Scan(&f.ID, &f.TenantID, &f.Name, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// Delete implements Repository.
func (r *PostgresRepository) Delete(ctx context.Context, id string) (bool, int, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return false, 0, err
	}
	var locked string
	err = conn.QueryRowContext(ctx, `SELECT id FROM folders WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if errors.Is(err, sql.ErrNoRows) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, err
	}
	res, err := conn.ExecContext(ctx, `UPDATE chats SET folder_id = NULL WHERE folder_id = $1`, id)
	if err != nil {
		return false, 0, err
	}
	moved, err := res.RowsAffected()
	if err != nil {
		return false, 0, err
	}
	if _, err := conn.ExecContext(ctx, `DELETE FROM folders WHERE id = $1`, id); err != nil {
		return false, 0, err
	}
	return true, int(moved), nil
}
