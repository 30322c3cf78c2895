package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"praxis-pilot/backend/internal/chat/domain"
	"praxis-pilot/backend/internal/db"
)

// PostgresRepository implements Repository inside the active tenant scope.
type PostgresRepository struct{}

// NewPostgresRepository returns a new PostgresRepository.
func NewPostgresRepository() *PostgresRepository {
	return &PostgresRepository{}
}

const chatColumns = `id, tenant_id, owner_user_id, title, folder_id, is_favorite, status, metadata, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanChat(s scanner) (*domain.Chat, error) {
	var (
		c        domain.Chat
		folderID sql.NullString
		status   string
		meta     []byte
	)
	if err := s.Scan(&c.ID, &c.TenantID, &c.OwnerUserID, &c.Title, &folderID, &c.IsFavorite, &status, &meta, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if folderID.Valid {
		c.FolderID = &folderID.String
	}
	c.Status = domain.Status(status)
	if len(meta) > 0 {
		// Unknown keys are dropped; only the sanitized fields survive.
		_ = json.Unmarshal(meta, &c.Metadata)
	}
	return &c, nil
}

// Create inserts c and fills its id, status and timestamps.
func (r *PostgresRepository) Create(ctx context.Context, c *domain.Chat) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return err
	}
	var status string
	err = conn.QueryRowContext(ctx, `
		INSERT INTO chats (tenant_id, owner_user_id, title, folder_id, metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, status, created_at, updated_at`,
		c.TenantID, c.OwnerUserID, c.Title, c.FolderID, meta,
	).Scan(&c.ID, &status, &c.CreatedAt, &c.UpdatedAt)
	c.Status = domain.Status(status)
	return err
}

// ListByOwner returns the owner's chats, most recently updated first.
func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string, f ListFilter) ([]*domain.Chat, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	q := `SELECT ` + chatColumns + ` FROM chats WHERE owner_user_id = $1`
	args := []any{ownerID}
	switch {
	case f.FolderID != "":
		q += ` AND folder_id = $2`
		args = append(args, f.FolderID)
	case f.UnfiledOnly:
		q += ` AND folder_id IS NULL`
	}
	q += ` ORDER BY updated_at DESC`
	rows, err := conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetOwned implements Repository.
func (r *PostgresRepository) GetOwned(ctx context.Context, id, ownerID string) (*domain.Chat, error) {
	return r.getOwned(ctx, id, ownerID, "")
}

// LockOwned implements Repository.
func (r *PostgresRepository) LockOwned(ctx context.Context, id, ownerID string) (*domain.Chat, error) {
	return r.getOwned(ctx, id, ownerID, " FOR UPDATE")
}

func (r *PostgresRepository) getOwned(ctx context.Context, id, ownerID, lock string) (*domain.Chat, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	c, err := scanChat(conn.QueryRowContext(ctx,
		`SELECT `+chatColumns+` FROM chats WHERE id = $1 AND owner_user_id = $2`+lock, id, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

// Update implements Repository.
func (r *PostgresRepository) Update(ctx context.Context, c *domain.Chat) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	meta, err := json.Marshal(c.Metadata)
	if err != nil {
		return err
	}
	return conn.QueryRowContext(ctx, `
		UPDATE chats
		SET title = $2, folder_id = $3, is_favorite = $4, status = $5, metadata = $6, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		c.ID, c.Title, c.FolderID, c.IsFavorite, string(c.Status), meta,
	).Scan(&c.UpdatedAt)
}

// Delete removes the owner's chat; messages cascade. Reports whether a row was deleted.
func (r *PostgresRepository) Delete(ctx context.Context, id, ownerID string) (bool, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return false, err
	}
	res, err := conn.ExecContext(ctx, `DELETE FROM chats WHERE id = $1 AND owner_user_id = $2`, id, ownerID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// FolderExists reports whether the folder is visible in the bound tenant.
func (r *PostgresRepository) FolderExists(ctx context.Context, folderID string) (bool, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return false, err
	}
	var ok bool
	err = conn.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM folders WHERE id = $1)`, folderID).Scan(&ok)
	return ok, err
}

// AddMessage appends m and fills its id and created_at.
func (r *PostgresRepository) AddMessage(ctx context.Context, m *domain.Message) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	return conn.QueryRowContext(ctx, `
		INSERT INTO chat_messages (tenant_id, chat_id, role, content)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		m.TenantID, m.ChatID, m.Role, m.Content,
	).Scan(&m.ID, &m.CreatedAt)
}

// Messages implements Repository.
func (r *PostgresRepository) Messages(ctx context.Context, chatID string) ([]*domain.Message, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx, `
		SELECT id, tenant_id, chat_id, role, content, created_at
		FROM chat_messages
		WHERE chat_id = $1 AND role <> 'system'
		ORDER BY created_at ASC, id ASC`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.TenantID, &m.ChatID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// Touch refreshes updated_at so the chat sorts first in listings.
func (r *PostgresRepository) Touch(ctx context.Context, id string) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	_, err = conn.ExecContext(ctx, `UPDATE chats SET updated_at = now() WHERE id = $1`, id)
	return err
}
