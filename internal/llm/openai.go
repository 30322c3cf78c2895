package llm

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIClient talks to OpenAI or an Azure OpenAI deployment through go-openai.
type OpenAIClient struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAIClient builds a client for api.openai.com, or for baseURL when non-empty.
func NewOpenAIClient(apiKey, model, baseURL string, timeout time.Duration) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg), model: model, timeout: timeout}
}

// NewAzureClient builds a client for one Azure OpenAI deployment. The deployment name is
// also the model name recorded in audit rows.
func NewAzureClient(endpoint, apiKey, deployment, apiVersion string, timeout time.Duration) *OpenAIClient {
	cfg := openai.DefaultAzureConfig(apiKey, endpoint)
	if apiVersion != "" {
		cfg.APIVersion = apiVersion
	}
	cfg.AzureModelMapperFunc = func(string) string { return deployment }
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg), model: deployment, timeout: timeout}
}

func (c *OpenAIClient) Model() string    { return c.model }
func (c *OpenAIClient) Configured() bool { return true }
func (c *OpenAIClient) Close() error     { return nil }

func (c *OpenAIClient) messages(req Request) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

// Stream implements Client. Usage arrives on the final chunk when the provider reports it.
func (c *OpenAIClient) Stream(ctx context.Context, req Request, onToken func(string) error) (Usage, error) {
	cctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	stream, err := c.client.CreateChatCompletionStream(cctx, openai.ChatCompletionRequest{
		Model:         c.model,
		Messages:      c.messages(req),
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	})
	if err != nil {
		return Usage{}, classify(ctx, err)
	}
	defer stream.Close()

	var usage Usage
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return usage, nil
		}
		if err != nil {
			return usage, classify(ctx, err)
		}
		if resp.Usage != nil {
			usage = Usage{PromptTokens: resp.Usage.PromptTokens, CompletionTokens: resp.Usage.CompletionTokens}
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}
		if err := onToken(resp.Choices[0].Delta.Content); err != nil {
			return usage, err
		}
	}
}

// Complete implements Client.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (string, Usage, error) {
	cctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(cctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: c.messages(req),
	})
	if err != nil {
		return "", Usage{}, classify(ctx, err)
	}
	usage := Usage{PromptTokens: resp.Usage.PromptTokens, CompletionTokens: resp.Usage.CompletionTokens}
	if len(resp.Choices) == 0 {
		return "", usage, nil
	}
	return resp.Choices[0].Message.Content, usage, nil
}
