package repository

import (
	"context"

	"praxis-pilot/backend/internal/chat/domain"
)

// ListFilter narrows ListByOwner. FolderID and UnfiledOnly are mutually exclusive.
type ListFilter struct {
	FolderID    string
	UnfiledOnly bool
}

// Repository defines persistence for chats and messages inside the tenant scope.
type Repository interface {
	Create(ctx context.Context, c *domain.Chat) error
	ListByOwner(ctx context.Context, ownerID string, f ListFilter) ([]*domain.Chat, error)
	// GetOwned returns the chat when it exists and belongs to ownerID, or nil.
	GetOwned(ctx context.Context, id, ownerID string) (*domain.Chat, error)
	// LockOwned is GetOwned with a row lock held until the scope ends.
	LockOwned(ctx context.Context, id, ownerID string) (*domain.Chat, error)
	// Update writes title, folder, favorite, status and metadata and refreshes updated_at.
	Update(ctx context.Context, c *domain.Chat) error
	Delete(ctx context.Context, id, ownerID string) (bool, error)
	FolderExists(ctx context.Context, folderID string) (bool, error)
	AddMessage(ctx context.Context, m *domain.Message) error
	// Messages returns non-system messages ordered by creation time.
	Messages(ctx context.Context, chatID string) ([]*domain.Message, error)
	Touch(ctx context.Context, id string) error
}
