package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"praxis-pilot/backend/internal/audit"
	auditdomain "praxis-pilot/backend/internal/audit/domain"
	chatdomain "praxis-pilot/backend/internal/chat/domain"
	"praxis-pilot/backend/internal/db"
	"praxis-pilot/backend/internal/llm"
	"praxis-pilot/backend/internal/safety"
	"praxis-pilot/backend/internal/tenancy"
)

// Sentinel errors for the case summary service; handler maps them to HTTP statuses.
var (
	ErrNoConversations = errors.New("conversation_ids required")
	ErrTooManyIDs      = errors.New("too many conversations")
	ErrNoneAccessible  = errors.New("no accessible conversations found")
	ErrInvalidID       = errors.New("invalid conversation id")
)

const (
	// MaxConversations bounds one request.
	MaxConversations = 20
	// MaxCharsPerConversation bounds each chat's transcript block.
	MaxCharsPerConversation = 8000
	// AssistMode is recorded on audit and usage rows.
	AssistMode = "CASE_SUMMARY"
	// EntityType is the audit entity type.
	EntityType = "case_summary"

	untitled        = "Unbenannt"
	blockSeparator  = "\n\n---\n\n"
	fallbackSummary = "Zusammenfassung konnte nicht strukturiert werden."
	maxFallbackLen  = 2000
)

// Instruction is appended to the security header.
const Instruction = `Du bist ein Assistent zur Dokumentations-Unterstützung in der psychotherapeutischen Praxis.

AUFGABE: Erstelle eine strukturierte Fallzusammenfassung über mehrere Gespräche hinweg.

WICHTIGE REGELN:
- Keine Diagnose. Keine ICD/DSM-Klassifikation. Keine Behandlungsempfehlung.
- Nur deskriptive Zusammenfassung, Trends und dokumentierter Verlauf.
- Formuliere vorsichtig: "laut Protokoll", "dokumentiert", "berichtet".
- Keine absoluten Aussagen oder Spekulationen.

Antworte ausschließlich als gültiges JSON mit exakt diesen Feldern (deutsch):
{
  "case_summary": "Kurze Gesamtübersicht der ausgewählten Gespräche (2-4 Sätze).",
  "trends": ["Liste nicht-diagnostischer Beobachtungen, z.B. Themenverläufe, wiederkehrende Motive."],
  "treatment_evolution": "Überblick über den dokumentierten Verlauf (keine Empfehlung)."
}
`

// ChatSource reads owned chats and their messages inside a scope.
type ChatSource interface {
	GetOwned(ctx context.Context, id, ownerUserID string) (*chatdomain.Chat, error)
	Messages(ctx context.Context, chatID string) ([]*chatdomain.Message, error)
}

// Summary is the structured draft returned to the caller. It is never stored.
type Summary struct {
	CaseSummary        string   `json:"case_summary"`
	Trends             []string `json:"trends"`
	TreatmentEvolution string   `json:"treatment_evolution"`
}

type conversation struct {
	chat *chatdomain.Chat
	msgs []*chatdomain.Message
}

// Service drafts descriptive summaries across several of the caller's chats.
type Service struct {
	scope db.Runner
	chats ChatSource
	audit audit.Recorder
	llm   llm.Client
	now   func() time.Time
}

// NewService returns a case summary Service.
func NewService(scope db.Runner, chats ChatSource, recorder audit.Recorder, client llm.Client) *Service {
	return &Service{scope: scope, chats: chats, audit: recorder, llm: client, now: time.Now}
}

// Summarize loads the caller's chats among ids, asks the model for a summary and writes
// one audit and one usage row. Ids the caller does not own are skipped.
func (s *Service) Summarize(ctx context.Context, tc tenancy.Context, ids []string, correlationID string) (*Summary, error) {
	if len(ids) == 0 {
		return nil, ErrNoConversations
	}
	if len(ids) > MaxConversations {
		return nil, ErrTooManyIDs
	}
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return nil, ErrInvalidID
		}
	}
	var convs []conversation
	err := s.scope.Run(ctx, tc, func(ctx context.Context) error {
		for _, id := range ids {
			c, err := s.chats.GetOwned(ctx, id, tc.UserID)
			if err != nil {
				return err
			}
			if c == nil {
				continue
			}
			msgs, err := s.chats.Messages(ctx, id)
			if err != nil {
				return err
			}
			convs = append(convs, conversation{chat: c, msgs: msgs})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return nil, ErrNoneAccessible
	}

	start := s.now()
	raw, usage, err := s.llm.Complete(ctx, llm.Request{
		SystemPrompt: safety.SecurityHeader() + Instruction,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: buildPrompt(convs)}},
	})
	latency := int(s.now().Sub(start).Milliseconds())
	status := "success"
	if err != nil {
		status = "error"
		log.Printf("casesummary: completion failed kind=%s: %v", llm.Kind(err), err)
		if llm.Kind(err) == llm.KindNotConfigured {
			return nil, err
		}
	}

	rerr := s.scope.Run(context.WithoutCancel(ctx), tc, func(ctx context.Context) error {
		if err := s.audit.RecordUsage(ctx, auditdomain.Usage{
			UserID:        tc.UserID,
			AssistMode:    AssistMode,
			ModelName:     s.llm.Model(),
			InputTokens:   usage.PromptTokens,
			OutputTokens:  usage.CompletionTokens,
			Status:        status,
			LatencyMS:     latency,
			CorrelationID: correlationID,
		}); err != nil {
			return err
		}
		if status != "success" {
			return nil
		}
		return s.audit.Record(ctx, audit.Entry{
			Action:       "cross_case_summary_generated",
			EntityType:   EntityType,
			Metadata:     map[string]any{"conversation_count": len(ids), "conversation_ids": ids},
			AssistMode:   AssistMode,
			ModelName:    s.llm.Model(),
			InputTokens:  usage.PromptTokens,
			OutputTokens: usage.CompletionTokens,
		})
	})
	if err != nil {
		return nil, err
	}
	if rerr != nil {
		return nil, fmt.Errorf("casesummary: record: %w", rerr)
	}
	return ParseSummary(raw), nil
}

func buildPrompt(convs []conversation) string {
	blocks := make([]string, 0, len(convs))
	for _, c := range convs {
		title := strings.TrimSpace(c.chat.Title)
		if title == "" {
			title = untitled
		}
		blocks = append(blocks, fmt.Sprintf("## Chat: %s (ID: %s)\n", title, c.chat.ID)+chatdomain.Transcript(c.msgs, MaxCharsPerConversation))
	}
	return strings.Join(blocks, blockSeparator)
}

// ParseSummary decodes the model's JSON. A non-object becomes the summary text; output
// that is not JSON falls back to its first 2000 characters.
func ParseSummary(raw string) *Summary {
	body := llm.StripCodeFence(raw)
	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		text := []rune(body)
		if len(text) > maxFallbackLen {
			text = text[:maxFallbackLen]
		}
		out := &Summary{CaseSummary: string(text), Trends: []string{}}
		if out.CaseSummary == "" {
			out.CaseSummary = fallbackSummary
		}
		return out
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return &Summary{CaseSummary: fmt.Sprint(v), Trends: []string{}}
	}
	out := &Summary{Trends: []string{}}
	out.CaseSummary, _ = obj["case_summary"].(string)
	out.TreatmentEvolution, _ = obj["treatment_evolution"].(string)
	if list, ok := obj["trends"].([]any); ok {
		for _, item := range list {
			if s, ok := item.(string); ok {
				out.Trends = append(out.Trends, s)
			}
		}
	}
	return out
}
