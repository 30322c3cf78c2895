package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"praxis-pilot/backend/internal/db"
	"praxis-pilot/backend/internal/document/domain"
)

// PostgresRepository implements Repository inside the active tenant scope.
type PostgresRepository struct{}

// NewPostgresRepository returns a new PostgresRepository.
func NewPostgresRepository() *PostgresRepository {
	return &PostgresRepository{}
}

// GetOwned implements Repository.
func (r *PostgresRepository) GetOwned(ctx context.Context, conversationID, ownerUserID string) (*domain.Document, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	var (
		d       domain.Document
		content []byte
	)
	err = conn.QueryRowContext(ctx, `
		SELECT d.id, d.tenant_id, d.conversation_id, d.version, d.content, d.created_at, d.updated_at
		FROM structured_session_documents d
		JOIN chats c ON c.id = d.conversation_id AND c.tenant_id = d.tenant_id
		WHERE d.conversation_id = $1 AND c.owner_user_id = $2`,
		conversationID, ownerUserID,
	).Scan(&d.ID, &d.TenantID, &d.ConversationID, &d.Version, &content, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("document: decode content %s: %w", d.ID, err)
	}
	d.Content = domain.Normalize(raw)
	return &d, nil
}

// Upsert implements Repository. The conflict clause makes the version bump atomic.
func (r *PostgresRepository) Upsert(ctx context.Context, d *domain.Document) (bool, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return false, err
	}
	content, err := json.Marshal(d.Content)
	if err != nil {
		return false, err
	}
	var created bool
	err = conn.QueryRowContext(ctx, `
		INSERT INTO structured_session_documents (tenant_id, conversation_id, version, content)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT ON CONSTRAINT structured_documents_conversation_key DO UPDATE
		SET content = EXCLUDED.content,
		    version = structured_session_documents.version + 1,
		    updated_at = now()
		RETURNING id, version, created_at, updated_at, (xmax = 0)`,
		d.TenantID, d.ConversationID, content,
	).Scan(&d.ID, &d.Version, &d.CreatedAt, &d.UpdatedAt, &created)
	return created, err
}
