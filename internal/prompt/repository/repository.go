package repository

import (
	"context"

	"praxis-pilot/backend/internal/prompt/domain"
)

// Repository defines persistence for prompts and their versions.
type Repository interface {
	// Latest returns the highest version for key, preferring the tenant's own prompt over
	// the global one. Returns nil when no version exists.
	Latest(ctx context.Context, key string) (*domain.Prompt, error)
	// ActiveVersions returns the active version per key for the bound tenant.
	ActiveVersions(ctx context.Context) (map[string]int, error)
	// GlobalPromptID returns the id of the global prompt for key, locked for update, or "".
	GlobalPromptID(ctx context.Context, key string) (string, error)
	// EnsureGlobal creates the global prompt row for key when missing and returns its id.
	EnsureGlobal(ctx context.Context, key, displayName string) (string, error)
	// AddVersion inserts body as version max+1 of promptID and returns the new version.
	AddVersion(ctx context.Context, promptID, body string) (int, error)
}
