package repository

import (
	"context"
	"time"

	"praxis-pilot/backend/internal/admin/domain"
)

// Repository aggregates usage_records and chats inside the tenant scope.
type Repository interface {
	Summary(ctx context.Context, q domain.Query) (*domain.Summary, error)
	TokenBuckets(ctx context.Context, q domain.Query, granularity string) ([]domain.TokenBucket, error)
	ChatBuckets(ctx context.Context, q domain.Query, granularity string) ([]domain.ChatsBucket, error)
	AssistModes(ctx context.Context, q domain.Query) ([]domain.AssistModeUsage, error)
	Models(ctx context.Context, q domain.Query) ([]domain.ModelUsage, error)
	// ActiveDays returns each distinct usage day and the average tokens per request.
	ActiveDays(ctx context.Context, q domain.Query) ([]time.Time, float64, error)
}
