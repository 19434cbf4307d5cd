// Package llm defines the completion contract for conversational role
// backends and provides Anthropic, OpenAI, and Ollama implementations.
package llm

import (
	"context"

	"clockwork/pkg/tools"
)

// CompletionRole represents the role of a message in a completion request.
type CompletionRole string

const (
	// RoleSystem indicates a system message providing instructions.
	RoleSystem CompletionRole = "system"
	// RoleUser indicates input from outside the model.
	RoleUser CompletionRole = "user"
	// RoleAssistant indicates a message produced by the model.
	RoleAssistant CompletionRole = "assistant"
)

// CompletionMessage is a message in a completion request.
type CompletionMessage struct {
	Role    CompletionRole
	Content string
}

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	ID         string
	Name       string
	Parameters map[string]any
}

// CompletionRequest is a request to generate a completion.
type CompletionRequest struct {
	Messages    []CompletionMessage
	Tools       []tools.Definition
	Temperature float32
	MaxTokens   int
}

// CompletionResponse is the model's reply, possibly with tool calls.
type CompletionResponse struct {
	Content   string
	ToolCalls []ToolCall
}

// Client generates completions. Implementations must be safe for sequential
// reuse; the orchestration layer never calls Complete concurrently.
type Client interface {
	Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error)
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleAssistant, Content: content}
}
