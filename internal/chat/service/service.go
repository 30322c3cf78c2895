package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"praxis-pilot/backend/internal/audit"
	"praxis-pilot/backend/internal/chat/domain"
	"praxis-pilot/backend/internal/chat/repository"
	"praxis-pilot/backend/internal/db"
	"praxis-pilot/backend/internal/events"
	"praxis-pilot/backend/internal/llm"
	"praxis-pilot/backend/internal/tenancy"
)

// Sentinel errors for the chat service; handler maps them to HTTP statuses.
var (
	ErrChatNotFound      = errors.New("chat not found")
	ErrChatFinalized     = errors.New("chat is finalized")
	ErrNoUpdates         = errors.New("no updates provided")
	ErrTitleRequired     = errors.New("title cannot be empty")
	ErrTitleTooLong      = errors.New("title too long")
	ErrFolderNotFound    = errors.New("folder not found")
	ErrInvalidAssistMode = errors.New("invalid assist mode key")
	ErrEmptyMessage      = errors.New("user message required")
	ErrUnknownFormat     = errors.New("unknown export format")
)

// MaxTitleLength bounds chat titles in runes.
const MaxTitleLength = 200

// EntityType is the domain-event entity type for chats.
const EntityType = "chat"

// PromptSource resolves the system prompt for an assist mode inside the caller's scope.
type PromptSource interface {
	SystemPrompt(ctx context.Context, key string, safeMode bool) (string, error)
}

// Detail is a chat with its visible messages.
type Detail struct {
	Chat     *domain.Chat
	Messages []*domain.Message
	// AwaitingReply is true when the last message is from the user, i.e. a send did not
	// complete its second phase.
	AwaitingReply bool
}

// Patch holds the optional fields of a chat update. FolderSet distinguishes an explicit
// null folder from an absent one.
type Patch struct {
	Title      *string
	IsFavorite *bool
	FolderSet  bool
	FolderID   *string
	SafeMode   *bool
}

func (p Patch) empty() bool {
	return p.Title == nil && p.IsFavorite == nil && !p.FolderSet && p.SafeMode == nil
}

// Service implements the chat lifecycle. Every mutation locks the chat row, checks
// ownership, then status, then validates input.
type Service struct {
	scope   db.Runner
	repo    repository.Repository
	events  events.Appender
	audit   audit.Recorder
	prompts PromptSource
	llm     llm.Client

	maxMessageLength int
	now              func() time.Time
}

// NewService returns a chat Service. maxMessageLength bounds the user message sent to the model.
func NewService(scope db.Runner, repo repository.Repository, ev events.Appender, recorder audit.Recorder, prompts PromptSource, client llm.Client, maxMessageLength int) *Service {
	return &Service{
		scope:            scope,
		repo:             repo,
		events:           ev,
		audit:            recorder,
		prompts:          prompts,
		llm:              client,
		maxMessageLength: maxMessageLength,
		now:              time.Now,
	}
}

// Create starts a chat owned by the caller. An empty title becomes domain.DefaultTitle.
func (s *Service) Create(ctx context.Context, tc tenancy.Context, title string) (*domain.Chat, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = domain.DefaultTitle
	}
	if len([]rune(title)) > MaxTitleLength {
		return nil, ErrTitleTooLong
	}
	c := &domain.Chat{TenantID: tc.TenantID, OwnerUserID: tc.UserID, Title: title, Status: domain.StatusActive}
	err := s.scope.Run(ctx, tc, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, c); err != nil {
			return err
		}
		_, err := s.events.Append(ctx, events.Append{
			EntityType: EntityType,
			EntityID:   c.ID,
			EventType:  "chat.created",
			Payload:    map[string]any{"chat_id": c.ID},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// List returns the caller's chats, most recently updated first.
func (s *Service) List(ctx context.Context, tc tenancy.Context, f repository.ListFilter) ([]*domain.Chat, error) {
	var out []*domain.Chat
	err := s.scope.Run(ctx, tc, func(ctx context.Context) error {
		var err error
		out, err = s.repo.ListByOwner(ctx, tc.UserID, f)
		return err
	})
	return out, err
}

// Get returns the chat with its non-system messages.
func (s *Service) Get(ctx context.Context, tc tenancy.Context, id string) (*Detail, error) {
	var d *Detail
	err := s.scope.Run(ctx, tc, func(ctx context.Context) error {
		c, err := s.repo.GetOwned(ctx, id, tc.UserID)
		if err != nil {
			return err
		}
		if c == nil {
			return ErrChatNotFound
		}
		msgs, err := s.repo.Messages(ctx, id)
		if err != nil {
			return err
		}
		d = &Detail{Chat: c, Messages: msgs}
		if n := len(msgs); n > 0 && msgs[n-1].Role == domain.RoleUser {
			d.AwaitingReply = true
		}
		return nil
	})
	return d, err
}

// Update applies p to an active chat and emits chat.updated with the changed field names.
func (s *Service) Update(ctx context.Context, tc tenancy.Context, id string, p Patch) (*domain.Chat, error) {
	var out *domain.Chat
	err := s.scope.Run(ctx, tc, func(ctx context.Context) error {
		c, err := s.lockActive(ctx, tc, id)
		if err != nil {
			return err
		}
		if p.empty() {
			return ErrNoUpdates
		}
		var fields []string
		if p.Title != nil {
			title := strings.TrimSpace(*p.Title)
			if title == "" {
				return ErrTitleRequired
			}
			if len([]rune(title)) > MaxTitleLength {
				return ErrTitleTooLong
			}
			c.Title = title
			fields = append(fields, "title")
		}
		if p.IsFavorite != nil {
			c.IsFavorite = *p.IsFavorite
			fields = append(fields, "is_favorite")
		}
		if p.FolderSet {
			if p.FolderID != nil {
				ok, err := s.repo.FolderExists(ctx, *p.FolderID)
				if err != nil {
					return err
				}
				if !ok {
					return ErrFolderNotFound
				}
			}
			c.FolderID = p.FolderID
			fields = append(fields, "folder_id")
		}
		if p.SafeMode != nil {
			c.Metadata.SafeMode = *p.SafeMode
			fields = append(fields, "metadata.safe_mode")
		}
		if err := s.repo.Update(ctx, c); err != nil {
			return err
		}
		if _, err := s.events.Append(ctx, events.Append{
			EntityType: EntityType,
			EntityID:   c.ID,
			EventType:  "chat.updated",
			Payload:    map[string]any{"fields": fields},
		}); err != nil {
			return err
		}
		out = c
		return nil
	})
	return out, err
}

// Delete removes an active chat and its messages.
func (s *Service) Delete(ctx context.Context, tc tenancy.Context, id string) error {
	return s.scope.Run(ctx, tc, func(ctx context.Context) error {
		if _, err := s.lockActive(ctx, tc, id); err != nil {
			return err
		}
		ok, err := s.repo.Delete(ctx, id, tc.UserID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrChatNotFound
		}
		_, err = s.events.Append(ctx, events.Append{
			EntityType: EntityType,
			EntityID:   id,
			EventType:  "chat.deleted",
			Payload:    map[string]any{"chat_id": id},
		})
		return err
	})
}

// Finalize locks the chat against further mutation. Finalizing twice returns
// domain.ErrAlreadyFinalized.
func (s *Service) Finalize(ctx context.Context, tc tenancy.Context, id string) (*domain.Chat, error) {
	var out *domain.Chat
	err := s.scope.Run(ctx, tc, func(ctx context.Context) error {
		c, err := s.repo.LockOwned(ctx, id, tc.UserID)
		if err != nil {
			return err
		}
		if c == nil {
			return ErrChatNotFound
		}
		if err := c.Finalize(); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, c); err != nil {
			return err
		}
		if _, err := s.events.Append(ctx, events.Append{
			EntityType: EntityType,
			EntityID:   c.ID,
			EventType:  "chat.finalized",
			Payload:    map[string]any{"status": string(c.Status)},
		}); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, audit.Entry{
			Action:     "chat.finalized",
			EntityType: EntityType,
			EntityID:   c.ID,
		}); err != nil {
			return err
		}
		out = c
		return nil
	})
	return out, err
}

// EnsureMutable locks the chat inside the caller's scope and fails unless it exists, is
// owned by tc and is active. Other packages gate chat-scoped writes on it.
func (s *Service) EnsureMutable(ctx context.Context, tc tenancy.Context, id string) (*domain.Chat, error) {
	return s.lockActive(ctx, tc, id)
}

// lockActive runs inside a scope.
func (s *Service) lockActive(ctx context.Context, tc tenancy.Context, id string) (*domain.Chat, error) {
	c, err := s.repo.LockOwned(ctx, id, tc.UserID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrChatNotFound
	}
	if !c.Mutable() {
		return nil, ErrChatFinalized
	}
	return c, nil
}
