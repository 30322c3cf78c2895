package repository

import (
	"context"
	"database/sql"
	"errors"

	"praxis-pilot/backend/internal/db"
	"praxis-pilot/backend/internal/prompt/domain"
)

// PostgresRepository implements Repository inside the active tenant scope. Row-level
// security exposes global prompts plus the bound tenant's own.
type PostgresRepository struct{}

// NewPostgresRepository returns a new PostgresRepository.
func NewPostgresRepository() *PostgresRepository {
	return &PostgresRepository{}
}

// Latest implements Repository.
func (r *PostgresRepository) Latest(ctx context.Context, key string) (*domain.Prompt, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	var (
		p        domain.Prompt
		tenantID sql.NullString
	)
	err = conn.QueryRowContext(ctx, `
		SELECT p.id, p.key, p.display_name, p.tenant_id, pv.version, pv.body, pv.created_at
		FROM prompts p
		JOIN prompt_versions pv ON pv.prompt_id = p.id
		WHERE p.key = $1
		ORDER BY (p.tenant_id IS NULL) ASC, pv.version DESC
		LIMIT 1`, key,
	).Scan(&p.ID, &p.Key, &p.DisplayName, &tenantID, &p.Version, &p.Body, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if tenantID.Valid {
		p.TenantID = &tenantID.String
	}
	return &p, nil
}

// ActiveVersions implements Repository.
func (r *PostgresRepository) ActiveVersions(ctx context.Context) (map[string]int, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx, `
		SELECT DISTINCT ON (p.key) p.key, pv.version
		FROM prompts p
		JOIN prompt_versions pv ON pv.prompt_id = p.id
		ORDER BY p.key, (p.tenant_id IS NULL) ASC, pv.version DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var (
			key     string
			version int
		)
		if err := rows.Scan(&key, &version); err != nil {
			return nil, err
		}
		out[key] = version
	}
	return out, rows.Err()
}

// GlobalPromptID implements Repository. The row lock serializes concurrent version bumps.
func (r *PostgresRepository) GlobalPromptID(ctx context.Context, key string) (string, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return "", err
	}
	var id string
	err = conn.QueryRowContext(ctx,
		`SELECT id FROM prompts WHERE key = $1 AND tenant_id IS NULL FOR UPDATE`, key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return id, err
}

// EnsureGlobal implements Repository.
func (r *PostgresRepository) EnsureGlobal(ctx context.Context, key, displayName string) (string, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return "", err
	}
	if _, err := conn.ExecContext(ctx, `
		INSERT INTO prompts (key, display_name, tenant_id)
		VALUES ($1, $2, NULL)
		ON CONFLICT (key) WHERE tenant_id IS NULL DO NOTHING`, key, displayName); err != nil {
		return "", err
	}
	return r.GlobalPromptID(ctx, key)
}

// AddVersion implements Repository. Callers lock the prompt row first via GlobalPromptID.
func (r *PostgresRepository) AddVersion(ctx context.Context, promptID, body string) (int, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return 0, err
	}
	var version int
	err = conn.QueryRowContext(ctx, `
		INSERT INTO prompt_versions (prompt_id, version, body)
		SELECT $1, COALESCE(MAX(version), 0) + 1, $2
		FROM prompt_versions WHERE prompt_id = $1
		RETURNING version`, promptID, body).Scan(&version)
	return version, err
}
