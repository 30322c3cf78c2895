package repository

import (
	"context"

	"praxis-pilot/backend/internal/folder/domain"
)

// Repository defines persistence for folders inside the tenant scope.
type Repository interface {
	// Create inserts f. A duplicate name surfaces as the uq_folders_tenant_name violation.
	Create(ctx context.Context, f *domain.Folder) error
	List(ctx context.Context) ([]*domain.Folder, error)
	// Rename returns nil when the folder does not exist.
	Rename(ctx context.Context, id, name string) (*domain.Folder, error)
	// Delete unfiles the folder's chats and removes it, returning the number of chats moved.
	Delete(ctx context.Context, id string) (found bool, chatsMoved int, err error)
}

// UniqueNameConstraint is the constraint behind per-tenant name uniqueness.
const UniqueNameConstraint = "uq_folders_tenant_name"
