package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"praxis-pilot/backend/internal/audit/domain"
	"praxis-pilot/backend/internal/db"
)

// PostgresRepository implements Repository inside the active tenant scope.
type PostgresRepository struct{}

// NewPostgresRepository returns an audit repository.
func NewPostgresRepository() *PostgresRepository {
	return &PostgresRepository{}
}

// Create inserts a; ID and Timestamp are filled from the database.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	var meta []byte
	if len(a.Metadata) > 0 {
		if meta, err = json.Marshal(a.Metadata); err != nil {
			return err
		}
	}
	return conn.QueryRowContext(ctx, `
		INSERT INTO audit_logs (tenant_id, actor_id, action, entity_type, entity_id, metadata,
			assist_mode, model_name, model_version, input_tokens, output_tokens)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, ts`,
		a.TenantID, a.ActorID, a.Action, nullString(a.EntityType), nullString(a.EntityID), meta,
		nullString(a.AssistMode), nullString(a.ModelName), nullString(a.ModelVersion), a.InputTokens, a.OutputTokens,
	).Scan(&a.ID, &a.Timestamp)
}

// CreateUsage writes the usage record and the LLM audit row for one completion.
func (r *PostgresRepository) CreateUsage(ctx context.Context, u *domain.Usage) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, `
		INSERT INTO usage_records (tenant_id, user_id, assist_mode, model_name, model_version,
			input_tokens, output_tokens, status, latency_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.TenantID, u.UserID, nullString(u.AssistMode), u.ModelName, nullString(u.ModelVersion),
		u.InputTokens, u.OutputTokens, nullString(u.Status), u.LatencyMS,
	); err != nil {
		return fmt.Errorf("usage_records: %w", err)
	}
	if _, err := conn.ExecContext(ctx, `
		INSERT INTO llm_audit_logs (tenant_id, user_id, assist_mode_key, model_name, model_version,
			token_usage_prompt, token_usage_completion, correlation_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.TenantID, u.UserID, u.AssistMode, nullString(u.ModelName), nullString(u.ModelVersion),
		u.InputTokens, u.OutputTokens, nullString(u.CorrelationID),
	); err != nil {
		return fmt.Errorf("llm_audit_logs: %w", err)
	}
	return nil
}

// List returns audit rows matching f.
func (r *PostgresRepository) List(ctx context.Context, f domain.Filter) ([]*domain.AuditLog, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	query, args := BuildListQuery(f)
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.AuditLog
	for rows.Next() {
		var (
			a                                             domain.AuditLog
			entityType, entityID, assist, model, modelVer sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.ActorID, &a.TenantID, &a.Timestamp, &a.Action, &assist,
			&a.InputTokens, &a.OutputTokens, &model, &modelVer, &entityType, &entityID); err != nil {
			return nil, err
		}
		a.AssistMode, a.ModelName, a.ModelVersion = assist.String, model.String, modelVer.String
		a.EntityType, a.EntityID = entityType.String, entityID.String
		out = append(out, &a)
	}
	return out, rows.Err()
}

// BuildListQuery renders the filtered, keyset-paginated audit log query. Every value is a
// bind parameter; the search term has LIKE wildcards escaped.
func BuildListQuery(f domain.Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(args))))
	}
	if f.ActorID != "" {
		add("actor_id = ?", f.ActorID)
	}
	if f.From != nil {
		add("ts >= ?", *f.From)
	}
	if f.To != nil {
		add("ts <= ?", *f.To)
	}
	if f.AssistMode != "" {
		add("assist_mode = ?", f.AssistMode)
	}
	if f.Action != "" {
		add("action = ?", f.Action)
	}
	if f.ModelName != "" {
		add("model_name = ?", f.ModelName)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		add(`(action ILIKE ?
			OR COALESCE(assist_mode, '') ILIKE ?
			OR COALESCE(model_name, '') ILIKE ?
			OR COALESCE(model_version, '') ILIKE ?
			OR COALESCE(entity_type, '') ILIKE ?
			OR COALESCE(entity_id::text, '') ILIKE ?)`, "%"+EscapeLike(q)+"%")
	}
	if f.After != nil {
		args = append(args, f.After.Timestamp, f.After.ID)
		where = append(where, fmt.Sprintf("(ts, id) < ($%d, $%d::uuid)", len(args)-1, len(args)))
	}
	if len(where) == 0 {
		where = append(where, "TRUE")
	}
	args = append(args, f.Limit)
	query := `SELECT id, actor_id, tenant_id, ts, action, assist_mode,
		COALESCE(input_tokens, 0), COALESCE(output_tokens, 0),
		model_name, model_version, entity_type, entity_id::text
	FROM audit_logs
	WHERE ` + strings.Join(where, " AND ") + fmt.Sprintf(`
	ORDER BY ts DESC, id DESC
	LIMIT $%d`, len(args))
	return query, args
}

// EscapeLike escapes the LIKE wildcards in s.
func EscapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
