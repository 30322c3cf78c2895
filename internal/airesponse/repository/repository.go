package repository

import (
	"context"

	"praxis-pilot/backend/internal/airesponse/domain"
)

// VersionConstraint backs per-entity version uniqueness.
const VersionConstraint = "ai_responses_version_key"

// Repository defines persistence for AI responses inside the tenant scope.
type Repository interface {
	// LockEntity serializes version assignment for (tenant, entity) until the scope ends.
	LockEntity(ctx context.Context, tenantID, entityID string) error
	NextVersion(ctx context.Context, entityID string) (int, error)
	Insert(ctx context.Context, r *domain.Response) error
	// ListByEntity returns the entity's responses, newest version first.
	ListByEntity(ctx context.Context, entityID string) ([]*domain.Response, error)
	// Get returns nil when no response has id.
	Get(ctx context.Context, id string) (*domain.Response, error)
}
