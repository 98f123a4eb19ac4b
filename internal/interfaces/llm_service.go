package interfaces

import (
	"context"
)

// Message represents a single message in a chat conversation
type Message struct {
	// Role identifies the message sender: "user", "assistant", or "system"
	Role string `json:"role"`

	// Content contains the text content of the message
	Content string `json:"content"`
}

// LLMService is a single-shot chat completion backed by Gemini or Claude.
// Implementations make exactly one provider call per Chat; retry policy
// belongs to the caller.
type LLMService interface {
	// Chat generates a completion for the conversation.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - messages: System prompt first, then user turns
	//
	// Returns:
	//   - string: Generated assistant response
	//   - error: *models.CallError classified as RateLimited, Transient or Malformed
	Chat(ctx context.Context, messages []Message) (string, error)

	// Model returns the provider-qualified model used for Chat, e.g. "gemini/gemini-2.5-flash".
	// It is part of the response cache key.
	Model() string

	// Close releases provider clients
	Close() error
}
