package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/alpha-machine/alphabot/pkg/protocol"
)

// OpenAIProvider implements Provider on top of the go-openai client.
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
}

type openaiSettings struct {
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
}

// OpenAIOption configures an OpenAIProvider.
type OpenAIOption func(*openaiSettings)

// WithBaseURL sets a custom API base URL (OpenAI-compatible gateways, tests).
func WithBaseURL(url string) OpenAIOption {
	return func(s *openaiSettings) { s.baseURL = url }
}

// WithModel sets the default model.
func WithModel(model string) OpenAIOption {
	return func(s *openaiSettings) { s.model = model }
}

// WithMaxTokens sets the default completion budget.
func WithMaxTokens(n int) OpenAIOption {
	return func(s *openaiSettings) { s.maxTokens = n }
}

// WithTemperature sets the default sampling temperature.
func WithTemperature(t float64) OpenAIOption {
	return func(s *openaiSettings) { s.temperature = t }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) OpenAIOption {
	return func(s *openaiSettings) { s.httpClient = c }
}

// NewOpenAI creates an OpenAI chat-completions provider.
func NewOpenAI(apiKey string, opts ...OpenAIOption) *OpenAIProvider {
	s := openaiSettings{
		model:       "gpt-4.1-mini",
		temperature: 0.1,
		httpClient:  &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(&s)
	}

	cfg := openai.DefaultConfig(apiKey)
	if s.baseURL != "" {
		cfg.BaseURL = s.baseURL
	}
	cfg.HTTPClient = s.httpClient

	return &OpenAIProvider{
		client:      openai.NewClientWithConfig(cfg),
		model:       s.model,
		maxTokens:   s.maxTokens,
		temperature: s.temperature,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Chat(ctx context.Context, req protocol.ChatRequest) (*protocol.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.maxTokens
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = p.temperature
	}

	creq := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(req.Messages)),
		MaxTokens:   maxTokens,
		Temperature: float32(temperature),
	}
	for _, m := range req.Messages {
		creq.Messages = append(creq.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	switch {
	case req.ResponseSchema != nil:
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   req.ResponseSchema.Name,
				Schema: req.ResponseSchema.Schema,
			},
		}
	case req.JSONMode:
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("openai: api error (status %d): %s", apiErr.HTTPStatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: no choices in response")
	}

	return &protocol.ChatResponse{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
		Usage: protocol.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}
