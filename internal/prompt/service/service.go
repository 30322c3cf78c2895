package service

import (
	"context"
	"errors"
	"strings"

	"praxis-pilot/backend/internal/audit"
	"praxis-pilot/backend/internal/db"
	"praxis-pilot/backend/internal/prompt/domain"
	"praxis-pilot/backend/internal/prompt/repository"
	"praxis-pilot/backend/internal/safety"
	"praxis-pilot/backend/internal/tenancy"
)

// Sentinel errors for the prompt service; the handler maps them to HTTP statuses.
var (
	ErrUnknownKey    = errors.New("unknown assist mode key")
	ErrEmptyBody     = errors.New("body cannot be empty")
	ErrPromptMissing = errors.New("prompt not found")
)

// Summary is one registry entry with its active version.
type Summary struct {
	Key         string `json:"key"`
	DisplayName string `json:"display_name"`
	Version     int    `json:"version"`
}

// Detail is a registry entry with its active body.
type Detail struct {
	Key         string `json:"key"`
	DisplayName string `json:"display_name"`
	Version     int    `json:"version"`
	Body        string `json:"body"`
}

// Service resolves and edits registry prompts.
type Service struct {
	scope db.Runner
	repo  repository.Repository
	audit audit.Recorder
}

// NewService returns a prompt Service.
func NewService(scope db.Runner, repo repository.Repository, recorder audit.Recorder) *Service {
	return &Service{scope: scope, repo: repo, audit: recorder}
}

// List returns every registry key with its active version (1 when none is stored).
func (s *Service) List(ctx context.Context, tc tenancy.Context) ([]Summary, error) {
	var versions map[string]int
	err := s.scope.Run(ctx, tc, func(ctx context.Context) error {
		var err error
		versions, err = s.repo.ActiveVersions(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(domain.AssistKeys))
	for _, k := range domain.AssistKeys {
		v := versions[k]
		if v == 0 {
			v = 1
		}
		out = append(out, Summary{Key: k, DisplayName: domain.DisplayName(k), Version: v})
	}
	return out, nil
}

// Latest returns the active body for key. A known key without a stored version yields
// version 1 with an empty body.
func (s *Service) Latest(ctx context.Context, tc tenancy.Context, key string) (*Detail, error) {
	if !domain.IsAssistKey(key) {
		return nil, ErrUnknownKey
	}
	var p *domain.Prompt
	err := s.scope.Run(ctx, tc, func(ctx context.Context) error {
		var err error
		p, err = s.repo.Latest(ctx, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	d := &Detail{Key: key, DisplayName: domain.DisplayName(key), Version: 1}
	if p != nil {
		d.Version = p.Version
		d.Body = p.Body
	}
	return d, nil
}

// Update stores body as a new version of the global prompt for key and records
// prompt.updated. Authorization is checked by the caller.
func (s *Service) Update(ctx context.Context, tc tenancy.Context, key, body string) (*Detail, error) {
	if !domain.IsAssistKey(key) {
		return nil, ErrUnknownKey
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyBody
	}
	var version int
	err := s.scope.Run(ctx, tc, func(ctx context.Context) error {
		id, err := s.repo.GlobalPromptID(ctx, key)
		if err != nil {
			return err
		}
		if id == "" {
			return ErrPromptMissing
		}
		version, err = s.repo.AddVersion(ctx, id, body)
		if err != nil {
			return err
		}
		return s.audit.Record(ctx, audit.Entry{
			Action:     "prompt.updated",
			EntityType: "prompt",
			EntityID:   id,
			Metadata:   map[string]any{"key": key, "version": version},
		})
	})
	if err != nil {
		return nil, err
	}
	return &Detail{Key: key, DisplayName: domain.DisplayName(key), Version: version, Body: body}, nil
}

// SystemPrompt returns the security header followed by the active body for key, plus the
// safe-mode suffix when requested. It runs inside the caller's scope.
func (s *Service) SystemPrompt(ctx context.Context, key string, safeMode bool) (string, error) {
	if !domain.IsAssistKey(key) {
		return "", ErrUnknownKey
	}
	p, err := s.repo.Latest(ctx, key)
	if err != nil {
		return "", err
	}
	if p == nil || p.Body == "" {
		return "", ErrPromptMissing
	}
	out := safety.SecurityHeader() + p.Body
	if safeMode {
		out += domain.SafeModeSuffix
	}
	return out, nil
}
