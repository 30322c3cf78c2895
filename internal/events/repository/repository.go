package repository

import (
	"context"

	"praxis-pilot/backend/internal/events/domain"
)

// Repository persists domain events. There is no update or delete.
type Repository interface {
	Insert(ctx context.Context, e *domain.Event) error
	ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*domain.Event, error)
}
