package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgtype"

	"praxis-pilot/backend/internal/db"
	"praxis-pilot/backend/internal/intervention/domain"
)

// PostgresRepository implements Repository inside the active tenant scope. Row level
// security limits rows to global and tenant entries; the explicit filter repeats it.
type PostgresRepository struct {
	types *pgtype.Map
}

// NewPostgresRepository returns a new PostgresRepository.
func NewPostgresRepository() *PostgresRepository {
	return &PostgresRepository{types: pgtype.NewMap()}
}

const selectIntervention = `
	SELECT id, COALESCE(tenant_id::text, ''), category, title, description, evidence_level, "references", created_at
	FROM intervention_library
	WHERE (tenant_id IS NULL OR tenant_id::text = current_setting('app.tenant_id', true))`

type scanner interface {
	Scan(dest ...any) error
}

func (r *PostgresRepository) scan(s scanner) (*domain.Intervention, error) {
	var (
		in   domain.Intervention
		refs []string
	)
	if err := s.Scan(&in.ID, &in.TenantID, &in.Category, &in.Title, &in.Description, &in.EvidenceLevel, r.types.SQLScanner(&refs), &in.CreatedAt); err != nil {
		return nil, err
	}
	in.References = refs
	return &in, nil
}

// List implements Repository.
func (r *PostgresRepository) List(ctx context.Context, category string) ([]*domain.Intervention, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	q := selectIntervention
	var args []any
	if category != "" {
		q += ` AND category = $1`
		args = append(args, category)
	}
	rows, err := conn.QueryContext(ctx, q+` ORDER BY category, title`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Intervention
	for rows.Next() {
		in, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// Get implements Repository.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*domain.Intervention, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	in, err := r.scan(conn.QueryRowContext(ctx, selectIntervention+` AND id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return in, err
}

// EnsureGlobal implements Repository.
func (r *PostgresRepository) EnsureGlobal(ctx context.Context, in *domain.Intervention) (bool, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return false, err
	}
	res, err := conn.ExecContext(ctx, `
		INSERT INTO intervention_library (category, title, description, evidence_level, "references")
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (category, title) WHERE tenant_id IS NULL DO NOTHING`,
		in.Category, in.Title, in.Description, in.EvidenceLevel, in.References,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
