package service

import (
	"context"
	"errors"
	"log"
	"strings"

	"praxis-pilot/backend/internal/audit"
	auditdomain "praxis-pilot/backend/internal/audit/domain"
	"praxis-pilot/backend/internal/chat/domain"
	"praxis-pilot/backend/internal/events"
	"praxis-pilot/backend/internal/llm"
	promptdomain "praxis-pilot/backend/internal/prompt/domain"
	promptservice "praxis-pilot/backend/internal/prompt/service"
	"praxis-pilot/backend/internal/safety"
	"praxis-pilot/backend/internal/tenancy"
)

// In-band error messages sent once the stream has started.
const (
	MsgInvalidAssistMode = "Invalid assist mode"
	MsgNotConfigured     = "LLM provider not configured"
	MsgTimeout           = "LLM request timed out"
	MsgUpstream          = "LLM request failed"
	MsgFinalized         = "Chat is finalized and cannot be modified"
	MsgInternal          = "Internal server error"
)

// Usage statuses written to usage_records.
const (
	usageOK    = "success"
	usageError = "error"
)

// SendInput is one user turn.
type SendInput struct {
	AssistModeKey string
	UserMessage   string
	// Anonymize masks personal data in the turn sent to the model; the stored message is
	// never masked.
	Anonymize     bool
	SafeMode      bool
	CorrelationID string
}

// Sink receives the stream's events. Sink errors mean the client is gone.
type Sink interface {
	Token(text string) error
	Error(message string) error
	Done(messageID string, usage llm.Usage) error
}

var errClientGone = errors.New("client disconnected")

// Send runs the two-phase send. Ownership, status and then input validation failures are returned
// as errors before anything reaches sink. Once a sink method has been called every
// failure is reported in-band and Send returns nil, or the internal error for logging.
//
// Phase A stores the user message in one scope, the model streams outside any scope,
// and phase B stores the reply with its audit rows in a second scope. A crash between
// the phases leaves the user message without a reply; Get reports it as AwaitingReply.
func (s *Service) Send(ctx context.Context, tc tenancy.Context, chatID string, in SendInput, sink Sink) error {
	var (
		systemPrompt string
		refusal      string
		forModel     string
		history      []*domain.Message
	)
	err := s.scope.Run(ctx, tc, func(ctx context.Context) error {
		c, err := s.lockActive(ctx, tc, chatID)
		if err != nil {
			return err
		}
		if !promptdomain.IsAssistKey(in.AssistModeKey) {
			return ErrInvalidAssistMode
		}
		if strings.TrimSpace(in.UserMessage) == "" {
			return ErrEmptyMessage
		}
		systemPrompt, err = s.prompts.SystemPrompt(ctx, in.AssistModeKey, in.SafeMode || c.Metadata.SafeMode)
		if err != nil {
			if errors.Is(err, promptservice.ErrPromptMissing) || errors.Is(err, promptservice.ErrUnknownKey) {
				systemPrompt = ""
				return nil
			}
			return err
		}
		var sanitized string
		sanitized, refusal = safety.CheckUserMessage(in.UserMessage, s.maxMessageLength)
		if refusal != "" {
			return nil
		}
		forModel = sanitized
		if in.Anonymize {
			forModel = safety.Anonymize(sanitized)
		}
		if err := s.repo.AddMessage(ctx, &domain.Message{
			TenantID: tc.TenantID,
			ChatID:   chatID,
			Role:     domain.RoleUser,
			Content:  in.UserMessage,
		}); err != nil {
			return err
		}
		if err := s.repo.Touch(ctx, chatID); err != nil {
			return err
		}
		history, err = s.repo.Messages(ctx, chatID)
		return err
	})
	if err != nil {
		return err
	}
	if systemPrompt == "" {
		_ = sink.Error(MsgInvalidAssistMode)
		return nil
	}
	if refusal != "" {
		_ = sink.Error(refusal)
		return nil
	}

	req := llm.Request{SystemPrompt: systemPrompt, Messages: toLLMHistory(history, forModel)}
	start := s.now()
	var (
		buf    strings.Builder
		chunks int
	)
	usage, err := s.llm.Stream(ctx, req, func(text string) error {
		if text == "" {
			return nil
		}
		chunks++
		buf.WriteString(text)
		if err := sink.Token(text); err != nil {
			return errClientGone
		}
		return nil
	})
	latency := int(s.now().Sub(start).Milliseconds())
	if err != nil {
		if errors.Is(err, errClientGone) || ctx.Err() != nil {
			s.recordAborted(ctx, tc, chatID, in.AssistModeKey, chunks)
			return nil
		}
		return s.failCompletion(ctx, tc, chatID, in, err, latency, sink)
	}

	var msg *domain.Message
	var finalized bool
	err = s.scope.Run(ctx, tc, func(ctx context.Context) error {
		c, err := s.lockActive(ctx, tc, chatID)
		if errors.Is(err, ErrChatFinalized) {
			finalized = true
			return nil
		}
		if err != nil {
			return err
		}
		msg = &domain.Message{TenantID: tc.TenantID, ChatID: c.ID, Role: domain.RoleAssistant, Content: buf.String()}
		if err := s.repo.AddMessage(ctx, msg); err != nil {
			return err
		}
		if err := s.repo.Touch(ctx, c.ID); err != nil {
			return err
		}
		if err := s.audit.RecordUsage(ctx, auditdomain.Usage{
			UserID:        tc.UserID,
			AssistMode:    in.AssistModeKey,
			ModelName:     s.llm.Model(),
			InputTokens:   usage.PromptTokens,
			OutputTokens:  usage.CompletionTokens,
			Status:        usageOK,
			LatencyMS:     latency,
			CorrelationID: in.CorrelationID,
		}); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, audit.Entry{
			Action:       "chat.message_completed",
			EntityType:   EntityType,
			EntityID:     c.ID,
			Metadata:     map[string]any{"message_id": msg.ID, "chunks": chunks},
			AssistMode:   in.AssistModeKey,
			ModelName:    s.llm.Model(),
			InputTokens:  usage.PromptTokens,
			OutputTokens: usage.CompletionTokens,
		}); err != nil {
			return err
		}
		_, err = s.events.Append(ctx, events.Append{
			EntityType: EntityType,
			EntityID:   c.ID,
			EventType:  "chat.message_completed",
			Model:      s.llm.Model(),
			Payload: map[string]any{
				"message_id":    msg.ID,
				"assist_mode":   in.AssistModeKey,
				"input_tokens":  usage.PromptTokens,
				"output_tokens": usage.CompletionTokens,
			},
		})
		return err
	})
	if err != nil {
		_ = sink.Error(MsgInternal)
		return err
	}
	if finalized {
		_ = sink.Error(MsgFinalized)
		return nil
	}
	_ = sink.Done(msg.ID, usage)
	return nil
}

// toLLMHistory replaces the content of the final user turn with the sanitized and
// possibly anonymized text.
func toLLMHistory(msgs []*domain.Message, lastUser string) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		role := llm.RoleUser
		if m.Role == domain.RoleAssistant {
			role = llm.RoleAssistant
		}
		out = append(out, llm.Message{Role: role, Content: m.Content})
	}
	if n := len(out); n > 0 && out[n-1].Role == llm.RoleUser {
		out[n-1].Content = lastUser
	}
	return out
}

func (s *Service) failCompletion(ctx context.Context, tc tenancy.Context, chatID string, in SendInput, cause error, latency int, sink Sink) error {
	kind := llm.Kind(cause)
	msg := MsgUpstream
	switch kind {
	case llm.KindNotConfigured:
		msg = MsgNotConfigured
	case llm.KindTimeout:
		msg = MsgTimeout
	}
	log.Printf("chat: completion failed chat=%s kind=%s: %v", chatID, kind, cause)
	_ = sink.Error(msg)
	return s.scope.Run(ctx, tc, func(ctx context.Context) error {
		if err := s.audit.Record(ctx, audit.Entry{
			Action:     "chat.completion_failed",
			EntityType: EntityType,
			EntityID:   chatID,
			Metadata:   map[string]any{"reason": kind},
			AssistMode: in.AssistModeKey,
			ModelName:  s.llm.Model(),
		}); err != nil {
			return err
		}
		if kind == llm.KindNotConfigured {
			return nil
		}
		return s.audit.RecordUsage(ctx, auditdomain.Usage{
			UserID:        tc.UserID,
			AssistMode:    in.AssistModeKey,
			ModelName:     s.llm.Model(),
			Status:        usageError,
			LatencyMS:     latency,
			CorrelationID: in.CorrelationID,
		})
	})
}

// recordAborted writes chat.stream_aborted on a context that outlives the request.
func (s *Service) recordAborted(ctx context.Context, tc tenancy.Context, chatID, assistMode string, chunks int) {
	ctx = context.WithoutCancel(ctx)
	err := s.scope.Run(ctx, tc, func(ctx context.Context) error {
		return s.audit.Record(ctx, audit.Entry{
			Action:     "chat.stream_aborted",
			EntityType: EntityType,
			EntityID:   chatID,
			Metadata:   map[string]any{"chunks": chunks},
			AssistMode: assistMode,
			ModelName:  s.llm.Model(),
		})
	})
	if err != nil {
		log.Printf("chat: record stream abort chat=%s: %v", chatID, err)
	}
}
