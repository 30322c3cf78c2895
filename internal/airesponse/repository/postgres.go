package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"praxis-pilot/backend/internal/airesponse/domain"
	"praxis-pilot/backend/internal/db"
)

// PostgresRepository implements Repository inside the active tenant scope.
type PostgresRepository struct{}

// NewPostgresRepository returns a new PostgresRepository.
func NewPostgresRepository() *PostgresRepository {
	return &PostgresRepository{}
}

const responseColumns = `id, tenant_id, entity_type, entity_id, raw_markdown, structured_blocks, model, confidence, version, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanResponse(s scanner) (*domain.Response, error) {
	var (
		r      domain.Response
		blocks []byte
	)
	if err := s.Scan(&r.ID, &r.TenantID, &r.EntityType, &r.EntityID, &r.RawMarkdown, &blocks, &r.Model, &r.Confidence, &r.Version, &r.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(blocks, &r.Blocks); err != nil {
		return nil, fmt.Errorf("airesponse: decode blocks %s: %w", r.ID, err)
	}
	return &r, nil
}

// LockEntity takes a transaction-scoped advisory lock keyed on tenant and entity.
func (r *PostgresRepository) LockEntity(ctx context.Context, tenantID, entityID string) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "ai_responses:"+tenantID+":"+entityID)
	return err
}

// NextVersion returns max(version)+1 for the entity, or 1.
func (r *PostgresRepository) NextVersion(ctx context.Context, entityID string) (int, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return 0, err
	}
	var v int
	err = conn.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) + 1 FROM ai_responses WHERE entity_id = $1`, entityID).Scan(&v)
	return v, err
}

// Insert implements Repository.
func (r *PostgresRepository) Insert(ctx context.Context, resp *domain.Response) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	blocks, err := json.Marshal(resp.Blocks)
	if err != nil {
		return err
	}
	return conn.QueryRowContext(ctx, `
		INSERT INTO ai_responses (tenant_id, entity_type, entity_id, raw_markdown, structured_blocks, model, confidence, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`,
		resp.TenantID, resp.EntityType, resp.EntityID, resp.RawMarkdown, blocks, resp.Model, resp.Confidence, resp.Version,
	).Scan(&resp.ID, &resp.CreatedAt)
}

// ListByEntity implements Repository.
func (r *PostgresRepository) ListByEntity(ctx context.Context, entityID string) ([]*domain.Response, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx, `SELECT `+responseColumns+` FROM ai_responses WHERE entity_id = $1 ORDER BY version DESC`, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Response
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, resp)
	}
	return out, rows.Err()
}

// Get implements Repository.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*domain.Response, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := scanResponse(conn.QueryRowContext(ctx, `SELECT `+responseColumns+` FROM ai_responses WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return resp, err
}
