package provider

import (
	"context"

	"github.com/alpha-machine/alphabot/pkg/protocol"
)

// Provider is a chat-completion backend.
type Provider interface {
	// Chat sends a conversation and returns the model's reply.
	Chat(ctx context.Context, req protocol.ChatRequest) (*protocol.ChatResponse, error)
	// Name returns the provider identifier (e.g. "openai").
	Name() string
}
