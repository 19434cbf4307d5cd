// Package chat defines the conversation primitives shared by every
// controller: messages, transcripts, and the conversational role contract.
package chat

import (
	"context"
	"strings"
)

// RoleID names a conversational participant (e.g. "implementation_engineer",
// "data_science_critic", "code_runner"). Roles are configuration, not types.
type RoleID = string

// Message is a single conversation turn. Messages are immutable once
// produced; position in a transcript is the implicit timestamp.
type Message struct {
	Source  RoleID `json:"source"`
	Content string `json:"content"`
}

// NewMessage creates a message from a role and content.
func NewMessage(source RoleID, content string) Message {
	return Message{Source: source, Content: content}
}

// StripTokens returns a copy with every occurrence of the given control
// tokens removed from the content.
func (m Message) StripTokens(tokens ...string) Message {
	content := m.Content
	for _, token := range tokens {
		if token == "" {
			continue
		}
		content = strings.ReplaceAll(content, token, "")
	}
	return Message{Source: m.Source, Content: content}
}

// Contains reports whether the message content contains the substring.
func (m Message) Contains(substr string) bool {
	return strings.Contains(m.Content, substr)
}

// Role is a named participant that produces a reply given the accumulated
// message history. Implementations may invoke registered tools internally;
// from the caller's point of view Invoke blocks until the reply is complete.
type Role interface {
	// Name returns the role identifier used as the Source of its messages.
	Name() RoleID

	// Invoke produces the role's reply to the given history.
	Invoke(ctx context.Context, history []Message) (Message, error)
}

// CopyMessages returns a copy of the slice so callers can append without
// aliasing the original backing array.
func CopyMessages(messages []Message) []Message {
	result := make([]Message, len(messages))
	copy(result, messages)
	return result
}

// LastN returns the trailing n messages, or all of them if fewer exist.
func LastN(messages []Message, n int) []Message {
	if n <= 0 || len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}
