package service

import (
	"context"
	"errors"
	"strings"

	"praxis-pilot/backend/internal/audit"
	"praxis-pilot/backend/internal/db"
	"praxis-pilot/backend/internal/events"
	"praxis-pilot/backend/internal/folder/domain"
	"praxis-pilot/backend/internal/folder/repository"
	"praxis-pilot/backend/internal/tenancy"
)

// Sentinel errors for folder service; handler maps them to HTTP statuses.
var (
	ErrNameRequired  = errors.New("folder name required")
	ErrNameTooLong   = errors.New("folder name too long")
	ErrDuplicateName = errors.New("folder with this name already exists")
	ErrNotFound      = errors.New("folder not found")
)

// MaxNameLength bounds folder names in runes.
const MaxNameLength = 100

const entityType = "folder"

// Service manages tenant folders.
type Service struct {
	scope  db.Runner
	repo   repository.Repository
	events events.Appender
	audit  audit.Recorder
}

// NewService returns a folder Service.
func NewService(scope db.Runner, repo repository.Repository, ev events.Appender, recorder audit.Recorder) *Service {
	return &Service{scope: scope, repo: repo, events: ev, audit: recorder}
}

func normalize(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrNameRequired
	}
	if len([]rune(name)) > MaxNameLength {
		return "", ErrNameTooLong
	}
	return name, nil
}

// Create adds a folder. Names are trimmed and must be unique within the tenant.
func (s *Service) Create(ctx context.Context, tc tenancy.Context, name string) (*domain.Folder, error) {
	name, err := normalize(name)
	if err != nil {
		return nil, err
	}
	f := &domain.Folder{TenantID: tc.TenantID, Name: name}
	err = s.scope.Run(ctx, tc, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, f); err != nil {
			if db.IsUniqueViolation(err, repository.UniqueNameConstraint) {
				return ErrDuplicateName
			}
			return err
		}
		_, err := s.events.Append(ctx, events.Append{
			EntityType: entityType,
			EntityID:   f.ID,
			EventType:  "folder.created",
			Payload:    map[string]any{"folder_id": f.ID},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// List returns the tenant's folders ordered by name.
func (s *Service) List(ctx context.Context, tc tenancy.Context) ([]*domain.Folder, error) {
	var out []*domain.Folder
	err := s.scope.Run(ctx, tc, func(ctx context.Context) error {
		var err error
		out, err = s.repo.List(ctx)
		return err
	})
	return out, err
}

// Rename changes a folder's name under the same rules as Create.
func (s *Service) Rename(ctx context.Context, tc tenancy.Context, id, name string) (*domain.Folder, error) {
	name, err := normalize(name)
	if err != nil {
		return nil, err
	}
	var f *domain.Folder
	err = s.scope.Run(ctx, tc, func(ctx context.Context) error {
		var err error
		f, err = s.repo.Rename(ctx, id, name)
		if db.IsUniqueViolation(err, repository.UniqueNameConstraint) {
			return ErrDuplicateName
		}
		if err != nil {
			return err
		}
		if f == nil {
			return ErrNotFound
		}
		_, err = s.events.Append(ctx, events.Append{
			EntityType: entityType,
			EntityID:   f.ID,
			EventType:  "folder.renamed",
			Payload:    map[string]any{"folder_id": f.ID},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Delete removes a folder. Its chats are kept and become unfiled.
func (s *Service) Delete(ctx context.Context, tc tenancy.Context, id string) error {
	return s.scope.Run(ctx, tc, func(ctx context.Context) error {
		found, moved, err := s.repo.Delete(ctx, id)
		if err != nil {
			return err
		}
		if !found {
			return ErrNotFound
		}
		if _, err := s.events.Append(ctx, events.Append{
			EntityType: entityType,
			EntityID:   id,
			EventType:  "folder.deleted",
			Payload:    map[string]any{"folder_id": id, "chats_moved": moved},
		}); err != nil {
			return err
		}
		return s.audit.Record(ctx, audit.Entry{
			Action:     "folder.deleted",
			EntityType: entityType,
			EntityID:   id,
			Metadata:   map[string]any{"chats_moved": moved},
		})
	})
}
