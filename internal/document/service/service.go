package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"praxis-pilot/backend/internal/audit"
	auditdomain "praxis-pilot/backend/internal/audit/domain"
	chatdomain "praxis-pilot/backend/internal/chat/domain"
	"praxis-pilot/backend/internal/db"
	"praxis-pilot/backend/internal/document/domain"
	"praxis-pilot/backend/internal/document/repository"
	"praxis-pilot/backend/internal/events"
	"praxis-pilot/backend/internal/llm"
	promptdomain "praxis-pilot/backend/internal/prompt/domain"
	"praxis-pilot/backend/internal/safety"
	"praxis-pilot/backend/internal/tenancy"
)

// Sentinel errors for the structured document service; handler maps them to HTTP statuses.
var (
	ErrNotFound      = errors.New("structured document not found")
	ErrNoMessages    = errors.New("no messages in conversation")
	ErrInvalidOutput = errors.New("model output was not valid JSON")
)

// EntityType is the domain-event entity type for structured documents.
const EntityType = "structured_document"

// MaxConversationChars bounds the transcript sent to the model, marker included.
const MaxConversationChars = 12000

const (
	usageOK    = "success"
	usageError = "error"
)

// ExtractionInstruction is appended to the security header for conversion.
const ExtractionInstruction = `Du bist ein Assistent zur strukturierten psychotherapeutischen Dokumentation.

AUFGABE: Extrahiere aus dem folgenden Gesprächsverlauf eine strukturierte Dokumentation. Erfinde keine Informationen. Wenn ein Feld im Gespräch nicht vorkommt, setze einen leeren String "".

WICHTIGE REGELN:
- Keine Diagnose. Keine ICD/DSM-Codes. Keine Behandlungsempfehlung.
- Nur dokumentieren, was im Gespräch erwähnt oder ableitbar ist.
- Keine Spekulation.

Antworte ausschließlich mit gültigem JSON, genau diese Felder (alle Strings):
{
  "session_context": "",
  "presenting_symptoms": "",
  "resources": "",
  "interventions": "",
  "homework": "",
  "risk_assessment": "",
  "progress_evaluation": ""
}
`

// ChatGate locks a chat inside the caller's scope and fails unless it is owned and active.
type ChatGate interface {
	EnsureMutable(ctx context.Context, tc tenancy.Context, id string) (*chatdomain.Chat, error)
}

// MessageSource lists a chat's non-system messages in order.
type MessageSource interface {
	Messages(ctx context.Context, chatID string) ([]*chatdomain.Message, error)
}

// Service manages structured session documents.
type Service struct {
	scope    db.Runner
	repo     repository.Repository
	chats    ChatGate
	messages MessageSource
	events   events.Appender
	audit    audit.Recorder
	llm      llm.Client
	now      func() time.Time
}

// NewService returns a structured document Service.
func NewService(scope db.Runner, repo repository.Repository, chats ChatGate, messages MessageSource, ev events.Appender, recorder audit.Recorder, client llm.Client) *Service {
	return &Service{
		scope:    scope,
		repo:     repo,
		chats:    chats,
		messages: messages,
		events:   ev,
		audit:    recorder,
		llm:      client,
		now:      time.Now,
	}
}

// Get returns the current document of a chat owned by the caller.
func (s *Service) Get(ctx context.Context, tc tenancy.Context, conversationID string) (*domain.Document, error) {
	var d *domain.Document
	err := s.scope.Run(ctx, tc, func(ctx context.Context) error {
		var err error
		d, err = s.repo.GetOwned(ctx, conversationID, tc.UserID)
		if err != nil {
			return err
		}
		if d == nil {
			return ErrNotFound
		}
		return nil
	})
	return d, err
}

// Put normalizes content and stores it as the conversation's document.
func (s *Service) Put(ctx context.Context, tc tenancy.Context, conversationID string, content map[string]any) (*domain.Document, error) {
	var d *domain.Document
	err := s.scope.Run(ctx, tc, func(ctx context.Context) error {
		if _, err := s.chats.EnsureMutable(ctx, tc, conversationID); err != nil {
			return err
		}
		var err error
		d, err = s.write(ctx, tc, conversationID, domain.Normalize(content))
		return err
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// write runs inside a scope after the chat gate.
func (s *Service) write(ctx context.Context, tc tenancy.Context, conversationID string, content domain.Content) (*domain.Document, error) {
	d := &domain.Document{TenantID: tc.TenantID, ConversationID: conversationID, Content: content}
	created, err := s.repo.Upsert(ctx, d)
	if err != nil {
		return nil, err
	}
	types := []string{"structured_document.updated", "structured_document.versioned"}
	if created {
		types = []string{"structured_document.created"}
	}
	for _, t := range types {
		if err := s.emit(ctx, d, t); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (s *Service) emit(ctx context.Context, d *domain.Document, eventType string) error {
	_, err := s.events.Append(ctx, events.Append{
		EntityType: EntityType,
		EntityID:   d.ID,
		EventType:  eventType,
		Payload: map[string]any{
			"document_id":     d.ID,
			"conversation_id": d.ConversationID,
			"version":         d.Version,
		},
	})
	return err
}

// Generate asks the model to extract the document from the conversation and stores the
// result. Output that is not a JSON object is rejected with ErrInvalidOutput and a
// structured_document.validation_failed event; nothing is stored.
func (s *Service) Generate(ctx context.Context, tc tenancy.Context, conversationID, correlationID string) (*domain.Document, error) {
	var msgs []*chatdomain.Message
	err := s.scope.Run(ctx, tc, func(ctx context.Context) error {
		if _, err := s.chats.EnsureMutable(ctx, tc, conversationID); err != nil {
			return err
		}
		var err error
		msgs, err = s.messages.Messages(ctx, conversationID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, ErrNoMessages
	}

	start := s.now()
	raw, usage, err := s.llm.Complete(ctx, llm.Request{
		SystemPrompt: safety.SecurityHeader() + ExtractionInstruction,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: BuildTranscript(msgs)}},
	})
	latency := int(s.now().Sub(start).Milliseconds())
	if err != nil {
		kind := llm.Kind(err)
		log.Printf("document: conversion failed conversation=%s kind=%s: %v", conversationID, kind, err)
		if kind != llm.KindNotConfigured {
			s.recordUsage(ctx, tc, usageError, llm.Usage{}, latency, correlationID)
		}
		return nil, err
	}

	parsed, ok := ParseModelJSON(raw)
	if !ok {
		if err := s.scope.Run(ctx, tc, func(ctx context.Context) error {
			if _, err := s.events.Append(ctx, events.Append{
				EntityType: EntityType,
				EntityID:   conversationID,
				EventType:  "structured_document.validation_failed",
				Payload:    map[string]any{"conversation_id": conversationID, "reason": "invalid_json"},
			}); err != nil {
				return err
			}
			return s.audit.RecordUsage(ctx, s.usage(tc, usageError, usage, latency, correlationID))
		}); err != nil {
			return nil, err
		}
		return nil, ErrInvalidOutput
	}

	var d *domain.Document
	err = s.scope.Run(ctx, tc, func(ctx context.Context) error {
		if _, err := s.chats.EnsureMutable(ctx, tc, conversationID); err != nil {
			return err
		}
		var err error
		d, err = s.write(ctx, tc, conversationID, domain.Normalize(parsed))
		if err != nil {
			return err
		}
		if err := s.emit(ctx, d, "structured_document.generated"); err != nil {
			return err
		}
		if err := s.audit.RecordUsage(ctx, s.usage(tc, usageOK, usage, latency, correlationID)); err != nil {
			return err
		}
		return s.audit.Record(ctx, audit.Entry{
			Action:       "structured_document.generated",
			EntityType:   EntityType,
			EntityID:     d.ID,
			Metadata:     map[string]any{"conversation_id": conversationID, "version": d.Version, "message_count": len(msgs)},
			AssistMode:   promptdomain.KeyStructuredDoc,
			ModelName:    s.llm.Model(),
			InputTokens:  usage.PromptTokens,
			OutputTokens: usage.CompletionTokens,
		})
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) usage(tc tenancy.Context, status string, u llm.Usage, latency int, correlationID string) auditdomain.Usage {
	return auditdomain.Usage{
		UserID:        tc.UserID,
		AssistMode:    promptdomain.KeyStructuredDoc,
		ModelName:     s.llm.Model(),
		InputTokens:   u.PromptTokens,
		OutputTokens:  u.CompletionTokens,
		Status:        status,
		LatencyMS:     latency,
		CorrelationID: correlationID,
	}
}

// recordUsage writes a usage row in its own scope. Failures are logged only.
func (s *Service) recordUsage(ctx context.Context, tc tenancy.Context, status string, u llm.Usage, latency int, correlationID string) {
	err := s.scope.Run(context.WithoutCancel(ctx), tc, func(ctx context.Context) error {
		return s.audit.RecordUsage(ctx, s.usage(tc, status, u, latency, correlationID))
	})
	if err != nil {
		log.Printf("document: record usage: %v", err)
	}
}

// BuildTranscript renders the conversation within MaxConversationChars.
func BuildTranscript(msgs []*chatdomain.Message) string {
	return chatdomain.Transcript(msgs, MaxConversationChars)
}

// ParseModelJSON decodes a JSON object, optionally wrapped in a ``` or ```json fence.
func ParseModelJSON(raw string) (map[string]any, bool) {
	var out map[string]any
	if err := json.Unmarshal([]byte(llm.StripCodeFence(raw)), &out); err != nil || out == nil {
		return nil, false
	}
	return out, true
}
