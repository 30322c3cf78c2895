package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-1.5-flash-latest"

// GeminiClient talks to Google Gemini. The underlying genai client holds a connection pool
// and must be closed on shutdown.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiClient dials the Gemini API with an API key.
func NewGeminiClient(ctx context.Context, apiKey, model string, timeout time.Duration) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("llm: create gemini client: %w", err)
	}
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiClient{client: client, model: model, timeout: timeout}, nil
}

func (c *GeminiClient) Model() string    { return c.model }
func (c *GeminiClient) Configured() bool { return true }
func (c *GeminiClient) Close() error     { return c.client.Close() }

// session prepares a chat session with all but the last message as history and returns
// the parts of the final turn to send.
func (c *GeminiClient) session(req Request) (*genai.ChatSession, []genai.Part, error) {
	if len(req.Messages) == 0 {
		return nil, nil, errors.New("llm: empty message history")
	}
	model := c.client.GenerativeModel(c.model)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.SystemPrompt)}}

	cs := model.StartChat()
	last := len(req.Messages) - 1
	for _, m := range req.Messages[:last] {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	return cs, []genai.Part{genai.Text(req.Messages[last].Content)}, nil
}

// Stream implements Client.
func (c *GeminiClient) Stream(ctx context.Context, req Request, onToken func(string) error) (Usage, error) {
	cs, parts, err := c.session(req)
	if err != nil {
		return Usage{}, err
	}
	cctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	var usage Usage
	it := cs.SendMessageStream(cctx, parts...)
	for {
		resp, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return usage, nil
		}
		if err != nil {
			return usage, classify(ctx, err)
		}
		usage = geminiUsage(resp, usage)
		if text := responseText(resp); text != "" {
			if err := onToken(text); err != nil {
				return usage, err
			}
		}
	}
}

// Complete implements Client.
func (c *GeminiClient) Complete(ctx context.Context, req Request) (string, Usage, error) {
	cs, parts, err := c.session(req)
	if err != nil {
		return "", Usage{}, err
	}
	cctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := cs.SendMessage(cctx, parts...)
	if err != nil {
		return "", Usage{}, classify(ctx, err)
	}
	return responseText(resp), geminiUsage(resp, Usage{}), nil
}

func geminiUsage(resp *genai.GenerateContentResponse, prev Usage) Usage {
	if resp == nil || resp.UsageMetadata == nil {
		return prev
	}
	return Usage{
		PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
		CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
	}
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}
