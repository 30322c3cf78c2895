package repository

import (
	"context"

	"praxis-pilot/backend/internal/intervention/domain"
)

// Repository defines read access to the intervention library inside the tenant scope.
// Rows visible are global ones plus the bound tenant's own.
type Repository interface {
	// List returns entries ordered by category, then title. An empty category lists all.
	List(ctx context.Context, category string) ([]*domain.Intervention, error)
	// Get returns nil when no visible entry has id.
	Get(ctx context.Context, id string) (*domain.Intervention, error)
	// EnsureGlobal inserts a global entry unless one with the same category and title exists.
	EnsureGlobal(ctx context.Context, in *domain.Intervention) (bool, error)
}
