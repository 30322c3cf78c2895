package repository

import (
	"context"

	"praxis-pilot/backend/internal/user/domain"
)

// Repository defines persistence for users. All methods run inside the caller's tenant scope.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// GetBySubject returns the user with the given identity subject in the bound tenant, or nil.
	GetBySubject(ctx context.Context, subject string) (*domain.User, error)
	// Upsert inserts u or updates email and role of the existing (tenant, subject) row. u.ID is set.
	Upsert(ctx context.Context, u *domain.User) error
}
