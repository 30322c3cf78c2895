package repository

import (
	"context"

	"praxis-pilot/backend/internal/audit/domain"
)

// Repository defines persistence for audit logs and usage records. Rows are append-only.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	CreateUsage(ctx context.Context, u *domain.Usage) error
	// List returns up to f.Limit rows ordered by (ts DESC, id DESC).
	List(ctx context.Context, f domain.Filter) ([]*domain.AuditLog, error)
}
