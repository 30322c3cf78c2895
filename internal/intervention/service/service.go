package service

import (
	"context"
	"errors"
	"strings"

	"praxis-pilot/backend/internal/db"
	"praxis-pilot/backend/internal/events"
	"praxis-pilot/backend/internal/intervention/domain"
	"praxis-pilot/backend/internal/intervention/repository"
	"praxis-pilot/backend/internal/tenancy"
)

// Sentinel errors for the intervention service; handler maps them to HTTP statuses.
var ErrNotFound = errors.New("intervention not found")

// EntityType is the domain-event entity type for interventions.
const EntityType = "intervention"

// Service reads the intervention library.
type Service struct {
	scope  db.Runner
	repo   repository.Repository
	events events.Appender
}

// NewService returns an intervention Service.
func NewService(scope db.Runner, repo repository.Repository, ev events.Appender) *Service {
	return &Service{scope: scope, repo: repo, events: ev}
}

// List returns global and tenant entries, optionally for one category.
func (s *Service) List(ctx context.Context, tc tenancy.Context, category string) ([]*domain.Intervention, error) {
	var out []*domain.Intervention
	err := s.scope.Run(ctx, tc, func(ctx context.Context) error {
		var err error
		out, err = s.repo.List(ctx, strings.TrimSpace(category))
		return err
	})
	return out, err
}

// Viewed records that the caller opened an entry.
func (s *Service) Viewed(ctx context.Context, tc tenancy.Context, id string) error {
	return s.scope.Run(ctx, tc, func(ctx context.Context) error {
		in, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if in == nil {
			return ErrNotFound
		}
		_, err = s.events.Append(ctx, events.Append{
			EntityType: EntityType,
			EntityID:   in.ID,
			EventType:  "intervention_viewed",
			Payload:    map[string]any{"intervention_id": in.ID, "category": in.Category},
		})
		return err
	})
}
