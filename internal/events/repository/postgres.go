package repository

import (
	"context"
	"database/sql"

	"praxis-pilot/backend/internal/db"
	"praxis-pilot/backend/internal/events/domain"
)

// PostgresRepository implements Repository inside the active tenant scope.
type PostgresRepository struct{}

// NewPostgresRepository returns a new PostgresRepository.
func NewPostgresRepository() *PostgresRepository {
	return &PostgresRepository{}
}

// Insert appends e. Timestamp is assigned by the database when zero.
func (r *PostgresRepository) Insert(ctx context.Context, e *domain.Event) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	var ts any
	if !e.Timestamp.IsZero() {
		ts = e.Timestamp
	}
	return conn.QueryRowContext(ctx, `
		INSERT INTO domain_events (tenant_id, event_id, "timestamp", actor, entity_type, entity_id,
			event_type, payload, payload_digest, source, schema_version, confidence, model)
		VALUES ($1, $2, COALESCE($3, clock_timestamp()), $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, "timestamp"`,
		e.TenantID, e.EventID, ts, e.Actor, e.EntityType, e.EntityID,
		e.EventType, []byte(e.Payload), e.PayloadDigest, e.Source, e.SchemaVersion, e.Confidence, e.Model,
	).Scan(&e.ID, &e.Timestamp)
}

// ListByEntity returns the newest events for an entity, most recent first.
func (r *PostgresRepository) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*domain.Event, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx, `
		SELECT id, tenant_id, event_id, "timestamp", actor, entity_type, entity_id, event_type,
			payload, payload_digest, source, schema_version, confidence, model
		FROM domain_events
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY "timestamp" DESC, id DESC
		LIMIT $3`, entityType, entityID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Event
	for rows.Next() {
		var (
			e          domain.Event
			payload    []byte
			confidence sql.NullFloat64
			model      sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.TenantID, &e.EventID, &e.Timestamp, &e.Actor, &e.EntityType, &e.EntityID,
			&e.EventType, &payload, &e.PayloadDigest, &e.Source, &e.SchemaVersion, &confidence, &model); err != nil {
			return nil, err
		}
		e.Payload = payload
		if confidence.Valid {
			e.Confidence = &confidence.Float64
		}
		if model.Valid {
			e.Model = &model.String
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
