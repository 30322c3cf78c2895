package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"praxis-pilot/backend/internal/airesponse/domain"
	"praxis-pilot/backend/internal/airesponse/repository"
	"praxis-pilot/backend/internal/db"
	"praxis-pilot/backend/internal/events"
	"praxis-pilot/backend/internal/render"
	"praxis-pilot/backend/internal/tenancy"
)

// Sentinel errors for the AI response service; handler maps them to HTTP statuses.
var (
	ErrMarkdownRequired   = errors.New("raw_markdown required")
	ErrEntityRequired     = errors.New("entity_type and entity_id required")
	ErrEntityTooLong      = errors.New("entity reference too long")
	ErrInvalidConfidence  = errors.New("confidence must be between 0 and 1")
	ErrCommandRequired    = errors.New("command and label required")
	ErrSanitizationFailed = errors.New("sanitization failed")
	ErrNotFound           = errors.New("ai response not found")
)

// SanitizationError carries the rejection reason. It matches ErrSanitizationFailed.
type SanitizationError struct {
	Reason string
}

func (e *SanitizationError) Error() string { return "sanitization failed: " + e.Reason }

// Is reports whether target is ErrSanitizationFailed.
func (e *SanitizationError) Is(target error) bool { return target == ErrSanitizationFailed }

// DefaultModel is recorded when the caller names none.
const DefaultModel = "gpt-4"

const (
	eventSource      = "ai-rendering-service"
	actorModel       = "ai_model"
	actorSystem      = "system"
	maxEntityType    = 100
	maxEntityID      = 255
	maxVersionTrials = 2
)

// Input is the markdown to render and where it belongs. RawMarkdown holds the decoded
// request value; anything but a string is a sanitization rejection.
type Input struct {
	RawMarkdown any
	EntityType  string
	EntityID    string
	Model       string
	Confidence  float64
}

// Action is a user-triggered block action to record.
type Action struct {
	Command    string
	Label      string
	Confidence float64
	EntityType string
	EntityID   string
}

// Service renders model markdown into versioned, structured responses.
type Service struct {
	scope     db.Runner
	repo      repository.Repository
	events    events.Appender
	threshold float64
}

// NewService returns a Service. threshold is the confidence below which responses are
// flagged for review.
func NewService(scope db.Runner, repo repository.Repository, ev events.Appender, threshold float64) *Service {
	return &Service{scope: scope, repo: repo, events: ev, threshold: threshold}
}

// Threshold is the review threshold.
func (s *Service) Threshold() float64 { return s.threshold }

func validConfidence(c float64) bool { return c >= 0 && c <= 1 }

func validateEntity(entityType, entityID string) error {
	if strings.TrimSpace(entityType) == "" || strings.TrimSpace(entityID) == "" {
		return ErrEntityRequired
	}
	if len(entityType) > maxEntityType || len(entityID) > maxEntityID {
		return ErrEntityTooLong
	}
	return nil
}

func blankMarkdown(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// Process sanitizes in.RawMarkdown, extracts blocks and stores the next version for the
// entity together with an ai_response.created event. A sanitization rejection stores no
// response; the ai_response.sanitization_failed event is committed on its own.
func (s *Service) Process(ctx context.Context, tc tenancy.Context, in Input) (*domain.Response, error) {
	if blankMarkdown(in.RawMarkdown) {
		return nil, ErrMarkdownRequired
	}
	if err := validateEntity(in.EntityType, in.EntityID); err != nil {
		return nil, err
	}
	if !validConfidence(in.Confidence) {
		return nil, ErrInvalidConfidence
	}
	if in.Model == "" {
		in.Model = DefaultModel
	}

	res := render.SanitizeValue(in.RawMarkdown)
	if res.Failed {
		return nil, s.recordSanitizationFailure(ctx, tc, in, res.Reason)
	}
	resp := &domain.Response{
		TenantID:    tc.TenantID,
		EntityType:  in.EntityType,
		EntityID:    in.EntityID,
		RawMarkdown: res.Sanitized,
		Blocks:      render.ExtractBlocks(res.Sanitized),
		Model:       in.Model,
		Confidence:  in.Confidence,
	}

	var err error
	for trial := 1; trial <= maxVersionTrials; trial++ {
		err = s.scope.Run(ctx, tc, func(ctx context.Context) error { return s.store(ctx, tc, resp) })
		if !db.IsUniqueViolation(err, repository.VersionConstraint) {
			break
		}
		log.Printf("airesponse: version conflict for entity %s (trial %d)", in.EntityID, trial)
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *Service) store(ctx context.Context, tc tenancy.Context, resp *domain.Response) error {
	if err := s.repo.LockEntity(ctx, tc.TenantID, resp.EntityID); err != nil {
		return err
	}
	v, err := s.repo.NextVersion(ctx, resp.EntityID)
	if err != nil {
		return err
	}
	resp.Version = v
	if err := s.repo.Insert(ctx, resp); err != nil {
		return err
	}
	confidence := resp.Confidence
	_, err = s.events.Append(ctx, events.Append{
		Actor:      actorModel,
		EntityType: resp.EntityType,
		EntityID:   resp.EntityID,
		EventType:  "ai_response.created",
		Source:     eventSource,
		Confidence: &confidence,
		Model:      resp.Model,
		Payload: map[string]any{
			"response_id":       resp.ID,
			"raw_markdown":      resp.RawMarkdown,
			"structured_blocks": resp.Blocks,
			"model":             resp.Model,
			"confidence":        resp.Confidence,
			"version":           resp.Version,
		},
	})
	return err
}

func (s *Service) recordSanitizationFailure(ctx context.Context, tc tenancy.Context, in Input, reason string) error {
	if reason == "" {
		reason = "Sanitization failed"
	}
	err := s.scope.Run(ctx, tc, func(ctx context.Context) error {
		_, err := s.events.Append(ctx, events.Append{
			Actor:      actorSystem,
			EntityType: in.EntityType,
			EntityID:   in.EntityID,
			EventType:  "ai_response.sanitization_failed",
			Source:     eventSource,
			Payload:    map[string]any{"reason": reason},
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("airesponse: record sanitization failure: %w", err)
	}
	return &SanitizationError{Reason: reason}
}

// List returns the entity's responses, newest version first.
func (s *Service) List(ctx context.Context, tc tenancy.Context, entityID string) ([]*domain.Response, error) {
	if strings.TrimSpace(entityID) == "" {
		return nil, ErrEntityRequired
	}
	var out []*domain.Response
	err := s.scope.Run(ctx, tc, func(ctx context.Context) error {
		var err error
		out, err = s.repo.ListByEntity(ctx, entityID)
		return err
	})
	return out, err
}

// Get returns one response.
func (s *Service) Get(ctx context.Context, tc tenancy.Context, id string) (*domain.Response, error) {
	var out *domain.Response
	err := s.scope.Run(ctx, tc, func(ctx context.Context) error {
		var err error
		out, err = s.repo.Get(ctx, id)
		if err == nil && out == nil {
			return ErrNotFound
		}
		return err
	})
	return out, err
}

// ExecuteAction records ai_response.action_executed. Routing the command is the client's job.
func (s *Service) ExecuteAction(ctx context.Context, tc tenancy.Context, a Action) error {
	if strings.TrimSpace(a.Command) == "" || strings.TrimSpace(a.Label) == "" {
		return ErrCommandRequired
	}
	if err := validateEntity(a.EntityType, a.EntityID); err != nil {
		return err
	}
	if !validConfidence(a.Confidence) {
		return ErrInvalidConfidence
	}
	return s.scope.Run(ctx, tc, func(ctx context.Context) error {
		confidence := a.Confidence
		_, err := s.events.Append(ctx, events.Append{
			EntityType: a.EntityType,
			EntityID:   a.EntityID,
			EventType:  "ai_response.action_executed",
			Confidence: &confidence,
			Payload: map[string]any{
				"command":    a.Command,
				"label":      a.Label,
				"confidence": a.Confidence,
			},
		})
		return err
	})
}
