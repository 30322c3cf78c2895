package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"praxis-pilot/backend/internal/admin/domain"
	"praxis-pilot/backend/internal/db"
)

// PostgresRepository implements Repository inside the active tenant scope.
type PostgresRepository struct{}

// NewPostgresRepository returns a new PostgresRepository.
func NewPostgresRepository() *PostgresRepository {
	return &PostgresRepository{}
}

// window renders the time and optional user filter for column tsCol and userCol.
func window(q domain.Query, tsCol, userCol string) (string, []any) {
	where := fmt.Sprintf("%s >= $1 AND %s <= $2", tsCol, tsCol)
	args := []any{q.From, q.To}
	if q.UserID != "" {
		args = append(args, q.UserID)
		where += fmt.Sprintf(" AND %s = $%d", userCol, len(args))
	}
	return where, args
}

// Summary implements Repository.
func (r *PostgresRepository) Summary(ctx context.Context, q domain.Query) (*domain.Summary, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	var s domain.Summary
	where, args := window(q, "ts", "user_id")
	if err := conn.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0), COUNT(*)
		FROM usage_records WHERE `+where, args...,
	).Scan(&s.InputTokens, &s.OutputTokens, &s.RequestCount); err != nil {
		return nil, err
	}
	where, args = window(q, "created_at", "owner_user_id::text")
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM chats WHERE `+where, args...).Scan(&s.ChatsCreatedCount); err != nil {
		return nil, err
	}
	s.TotalTokens = s.InputTokens + s.OutputTokens
	return &s, nil
}

// TokenBuckets implements Repository. granularity must already be validated.
func (r *PostgresRepository) TokenBuckets(ctx context.Context, q domain.Query, granularity string) ([]domain.TokenBucket, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	where, args := window(q, "ts", "user_id")
	args = append(args, granularity)
	unit := fmt.Sprintf("$%d", len(args))
	rows, err := conn.QueryContext(ctx, `
		SELECT date_trunc(`+unit+`, ts) AS bucket_start,
		       COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0)
		FROM usage_records WHERE `+where+`
		GROUP BY bucket_start
		ORDER BY bucket_start`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.TokenBucket{}
	for rows.Next() {
		var b domain.TokenBucket
		if err := rows.Scan(&b.BucketStart, &b.InputTokens, &b.OutputTokens); err != nil {
			return nil, err
		}
		b.TotalTokens = b.InputTokens + b.OutputTokens
		out = append(out, b)
	}
	return out, rows.Err()
}

// ChatBuckets implements Repository. granularity must already be validated.
func (r *PostgresRepository) ChatBuckets(ctx context.Context, q domain.Query, granularity string) ([]domain.ChatsBucket, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	where, args := window(q, "created_at", "owner_user_id::text")
	args = append(args, granularity)
	unit := fmt.Sprintf("$%d", len(args))
	rows, err := conn.QueryContext(ctx, `
		SELECT date_trunc(`+unit+`, created_at) AS bucket_start, COUNT(*)
		FROM chats WHERE `+where+`
		GROUP BY bucket_start
		ORDER BY bucket_start`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.ChatsBucket{}
	for rows.Next() {
		var b domain.ChatsBucket
		if err := rows.Scan(&b.BucketStart, &b.ChatsCreated); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// AssistModes implements Repository.
func (r *PostgresRepository) AssistModes(ctx context.Context, q domain.Query) ([]domain.AssistModeUsage, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	where, args := window(q, "ts", "user_id")
	rows, err := conn.QueryContext(ctx, `
		SELECT assist_mode, COUNT(*), COALESCE(SUM(input_tokens + output_tokens), 0)
		FROM usage_records WHERE `+where+`
		GROUP BY assist_mode
		ORDER BY COUNT(*) DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.AssistModeUsage{}
	for rows.Next() {
		var (
			u    domain.AssistModeUsage
			mode sql.NullString
		)
		if err := rows.Scan(&mode, &u.RequestCount, &u.TotalTokens); err != nil {
			return nil, err
		}
		if mode.Valid {
			u.AssistMode = &mode.String
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Models implements Repository.
func (r *PostgresRepository) Models(ctx context.Context, q domain.Query) ([]domain.ModelUsage, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	where, args := window(q, "ts", "user_id")
	rows, err := conn.QueryContext(ctx, `
		SELECT COALESCE(model_name, 'unknown'), model_version, COUNT(*), COALESCE(SUM(input_tokens + output_tokens), 0)
		FROM usage_records WHERE `+where+`
		GROUP BY model_name, model_version
		ORDER BY COUNT(*) DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.ModelUsage{}
	for rows.Next() {
		var (
			u       domain.ModelUsage
			version sql.NullString
		)
		if err := rows.Scan(&u.ModelName, &version, &u.RequestCount, &u.TotalTokens); err != nil {
			return nil, err
		}
		if version.Valid {
			u.ModelVersion = &version.String
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// ActiveDays implements Repository.
func (r *PostgresRepository) ActiveDays(ctx context.Context, q domain.Query) ([]time.Time, float64, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, 0, err
	}
	where, args := window(q, "ts", "user_id")
	var avg float64
	if err := conn.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(input_tokens + output_tokens)::float8 / NULLIF(COUNT(*), 0), 0)
		FROM usage_records WHERE `+where, args...,
	).Scan(&avg); err != nil {
		return nil, 0, err
	}
	rows, err := conn.QueryContext(ctx, `
		SELECT DISTINCT date_trunc('day', ts) AS d
		FROM usage_records WHERE `+where+`
		ORDER BY d DESC`, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var days []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, 0, err
		}
		days = append(days, d)
	}
	return days, avg, rows.Err()
}
