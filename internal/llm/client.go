// Package llm is the model provider boundary. One Client is built at startup from config
// and injected into the services that stream or complete chats.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"praxis-pilot/backend/internal/config"
)

// Chat roles accepted in Request.Messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrNotConfigured is returned when the selected provider has no credentials.
	ErrNotConfigured = errors.New("llm: provider not configured")
	// ErrTimeout is returned when the completion deadline expires before the provider finishes.
	ErrTimeout = errors.New("llm: provider timed out")
	// ErrUpstream wraps provider transport and API failures.
	ErrUpstream = errors.New("llm: provider request failed")
)

// Failure kinds reported in audit metadata.
const (
	KindTimeout       = "timeout"
	KindUpstream      = "upstream"
	KindNotConfigured = "not_configured"
)

// Message is one turn of chat history.
type Message struct {
	Role    string
	Content string
}

// Request is a chat completion request. SystemPrompt is sent ahead of Messages.
type Request struct {
	SystemPrompt string
	Messages     []Message
}

// Usage is the token accounting reported by the provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Client streams or completes chats against one provider. Implementations apply their
// configured timeout and classify failures as ErrTimeout, ErrUpstream or ErrNotConfigured.
// Cancellation of the caller's context is returned as the context error.
type Client interface {
	// Stream calls onToken for every text delta in order. If onToken returns an error the
	// stream stops and that error is returned.
	Stream(ctx context.Context, req Request, onToken func(string) error) (Usage, error)
	Complete(ctx context.Context, req Request) (string, Usage, error)
	// Model is the model or deployment name recorded in audit rows.
	Model() string
	Configured() bool
	Close() error
}

// New builds the client for cfg.LLMProvider. When the provider lacks credentials a client
// that always returns ErrNotConfigured is returned, so callers need no nil checks.
func New(ctx context.Context, cfg *config.Config) (Client, error) {
	if !cfg.LLMConfigured() {
		return Disabled(cfg.LLMProvider), nil
	}
	timeout := cfg.LLMTimeout()
	switch cfg.LLMProvider {
	case config.ProviderAzure:
		return NewAzureClient(cfg.AzureOpenAIEndpoint, cfg.AzureOpenAIAPIKey, cfg.AzureOpenAIDeployment, cfg.AzureOpenAIAPIVersion, timeout), nil
	case config.ProviderOpenAI:
		return NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, "", timeout), nil
	case config.ProviderGemini:
		return NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, timeout)
	}
	return nil, fmt.Errorf("llm: unknown provider %q", cfg.LLMProvider)
}

// Kind maps a client error to the failure kind recorded in audit metadata.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrNotConfigured):
		return KindNotConfigured
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	}
	return KindUpstream
}

type disabledClient struct{ provider string }

// Disabled returns a client whose calls fail with ErrNotConfigured.
func Disabled(provider string) Client { return disabledClient{provider: provider} }

func (disabledClient) Stream(context.Context, Request, func(string) error) (Usage, error) {
	return Usage{}, ErrNotConfigured
}

func (disabledClient) Complete(context.Context, Request) (string, Usage, error) {
	return "", Usage{}, ErrNotConfigured
}

func (d disabledClient) Model() string  { return d.provider }
func (disabledClient) Configured() bool { return false }
func (disabledClient) Close() error     { return nil }

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// classify turns a provider error into one of the package errors. The caller's own
// cancellation wins over everything else so disconnects are not reported as timeouts.
func classify(parent context.Context, err error) error {
	if err == nil {
		return nil
	}
	if perr := parent.Err(); perr != nil {
		return perr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return fmt.Errorf("%w: %w", ErrUpstream, err)
}
