// ABOUTME: Chat completion client for OpenAI-style model providers
// ABOUTME: Builds a go-openai client from a provider record (OpenAI, Azure, compatible endpoints)

package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/2389/assistant-console/internal/store"
)

// ErrProviderRejected is returned when the provider answers with an API error.
var ErrProviderRejected = errors.New("provider rejected request")

// ErrEmptyResponse is returned when the provider returns no choices.
var ErrEmptyResponse = errors.New("provider returned no choices")

// Request is a single-turn chat completion.
type Request struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Usage reports token accounting for one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the provider's answer.
type Response struct {
	Content      string
	Model        string
	FinishReason string
	Usage        Usage
	Latency      time.Duration
}

// Completer sends prompts to a model.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// CompleterFactory builds a Completer for a provider record.
type CompleterFactory func(p *store.Provider, timeout time.Duration) Completer

// openAICompleter implements Completer with go-openai.
type openAICompleter struct {
	client *openai.Client
}

// NewOpenAICompleter creates a Completer for any supported provider kind.
func NewOpenAICompleter(p *store.Provider, timeout time.Duration) Completer {
	var cfg openai.ClientConfig
	switch p.Kind {
	case KindAzure:
		cfg = openai.DefaultAzureConfig(p.APIKey, p.BaseURL)
	default:
		cfg = openai.DefaultConfig(p.APIKey)
		if p.BaseURL != "" {
			cfg.BaseURL = p.BaseURL
		}
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	return &openAICompleter{client: openai.NewClientWithConfig(cfg)}
}

// Complete sends the request as a system message (if any) followed by one
// user message.
func (c *openAICompleter) Complete(ctx context.Context, req Request) (*Response, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	})
	latency := time.Since(start)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("%w: %d %s", ErrProviderRejected, apiErr.HTTPStatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("calling provider: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	return &Response{
		Content:      resp.Choices[0].Message.Content,
		Model:        resp.Model,
		FinishReason: string(resp.Choices[0].FinishReason),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Latency: latency,
	}, nil
}
