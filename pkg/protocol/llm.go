package protocol

import "encoding/json"

// ChatMessage represents a single message in the LLM conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// System and User build the two message roles every prompt uses.
func System(content string) ChatMessage { return ChatMessage{Role: "system", Content: content} }
func User(content string) ChatMessage   { return ChatMessage{Role: "user", Content: content} }

// ResponseSchema asks the provider for JSON matching Schema.
type ResponseSchema struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
}

// ChatResponse is the parsed response from an LLM provider.
type ChatResponse struct {
	Content string `json:"content"`
	Model   string `json:"model,omitempty"`
	Usage   Usage  `json:"usage"`
}

// Usage tracks token consumption for a single LLM call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// TotalTokens returns the sum of prompt and completion tokens.
func (u Usage) TotalTokens() int {
	return u.PromptTokens + u.CompletionTokens
}

// ChatRequest holds parameters for an LLM chat call.
// A nil ResponseSchema requests free text; JSONMode without a schema
// requests any JSON object.
type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []ChatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature,omitempty"`
	JSONMode       bool            `json:"json_mode,omitempty"`
	ResponseSchema *ResponseSchema `json:"response_schema,omitempty"`
}
