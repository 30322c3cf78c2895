package repository

import (
	"context"

	"praxis-pilot/backend/internal/document/domain"
)

// Repository defines persistence for structured documents inside the tenant scope.
type Repository interface {
	// GetOwned returns the conversation's document when the chat is owned by ownerUserID,
	// or nil.
	GetOwned(ctx context.Context, conversationID, ownerUserID string) (*domain.Document, error)
	// Upsert writes d.Content for d.ConversationID. The first write creates version 1;
	// later writes overwrite the row and bump its version. created reports which happened.
	Upsert(ctx context.Context, d *domain.Document) (created bool, err error)
}
