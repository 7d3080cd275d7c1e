package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpha-machine/alphabot/pkg/protocol"
)

// MalformedOutputError reports a reply that should have been JSON but did
// not parse. Raw carries the model's text so it can be shown to the user.
type MalformedOutputError struct {
	Raw string
	Err error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("malformed model output: %v", e.Err)
}

func (e *MalformedOutputError) Unwrap() error { return e.Err }

// Generator offers the two call shapes the bot needs: free text and
// schema-constrained JSON.
type Generator struct {
	provider Provider
	logger   *slog.Logger
}

// NewGenerator wraps p. logger may be nil.
func NewGenerator(p Provider, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{provider: p, logger: logger}
}

// Text returns the model's free-text reply.
func (g *Generator) Text(ctx context.Context, system, user string) (string, error) {
	resp, err := g.chat(ctx, protocol.ChatRequest{
		Messages: []protocol.ChatMessage{protocol.System(system), protocol.User(user)},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

// JSON asks for a JSON reply and decodes it into out. A nil schema requests
// any JSON object. The raw reply is returned in every case where the model
// answered, so callers can surface it.
func (g *Generator) JSON(ctx context.Context, system, user string, schema *protocol.ResponseSchema, out any) (string, error) {
	resp, err := g.chat(ctx, protocol.ChatRequest{
		Messages:       []protocol.ChatMessage{protocol.System(system), protocol.User(user)},
		JSONMode:       schema == nil,
		ResponseSchema: schema,
	})
	if err != nil {
		return "", err
	}
	raw := stripCodeFence(resp.Content)
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return resp.Content, &MalformedOutputError{Raw: resp.Content, Err: err}
	}
	return raw, nil
}

func (g *Generator) chat(ctx context.Context, req protocol.ChatRequest) (*protocol.ChatResponse, error) {
	start := time.Now()
	resp, err := g.provider.Chat(ctx, req)
	if err != nil {
		g.logger.Warn("llm call failed", "provider", g.provider.Name(), "error", err, "elapsed", time.Since(start))
		return nil, err
	}
	g.logger.Debug("llm call",
		"provider", g.provider.Name(),
		"model", resp.Model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"elapsed", time.Since(start),
	)
	return resp, nil
}

// stripCodeFence removes a surrounding ```json fence that some models add
// even when asked for bare JSON.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
