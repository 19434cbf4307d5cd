package chat

import (
	"context"
	"fmt"
	"strings"

	"clockwork/pkg/llm"
	"clockwork/pkg/logx"
	"clockwork/pkg/tools"
)

// DefaultMaxToolRounds bounds the tool loop inside a single role turn.
const DefaultMaxToolRounds = 10

// LLMRole is a conversational role backed by a completion client. When the
// model requests tool calls, the role executes them against its tool view,
// feeds the results back, and continues until the model produces a plain
// reply or the round bound is hit.
type LLMRole struct {
	name          RoleID
	systemPrompt  string
	client        llm.Client
	tools         *tools.View
	maxToolRounds int
	logger        *logx.Logger
}

// LLMRoleOption configures an LLMRole.
type LLMRoleOption func(*LLMRole)

// WithTools gives the role access to a restricted tool view.
func WithTools(view *tools.View) LLMRoleOption {
	return func(r *LLMRole) { r.tools = view }
}

// WithMaxToolRounds overrides the tool loop bound.
func WithMaxToolRounds(n int) LLMRoleOption {
	return func(r *LLMRole) {
		if n > 0 {
			r.maxToolRounds = n
		}
	}
}

// NewLLMRole creates a role that replies via the given client.
func NewLLMRole(name RoleID, systemPrompt string, client llm.Client, opts ...LLMRoleOption) *LLMRole {
	r := &LLMRole{
		name:          name,
		systemPrompt:  systemPrompt,
		client:        client,
		maxToolRounds: DefaultMaxToolRounds,
		logger:        logx.NewLogger("role:" + name),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name implements Role.
func (r *LLMRole) Name() RoleID {
	return r.name
}

// Invoke implements Role. The history is rendered from this role's point of
// view: its own prior messages become assistant turns, everything else user
// turns.
func (r *LLMRole) Invoke(ctx context.Context, history []Message) (Message, error) {
	msgs := make([]llm.CompletionMessage, 0, len(history)+1)
	if r.systemPrompt != "" {
		msgs = append(msgs, llm.NewSystemMessage(r.systemPrompt))
	}
	for _, m := range history {
		if m.Source == r.name {
			msgs = append(msgs, llm.NewAssistantMessage(m.Content))
		} else {
			msgs = append(msgs, llm.NewUserMessage(m.Content))
		}
	}

	req := llm.CompletionRequest{Messages: msgs}
	if r.tools != nil {
		req.Tools = r.tools.Definitions()
	}

	var transcript []string
	for round := 0; ; round++ {
		resp, err := r.client.Complete(ctx, req)
		if err != nil {
			return Message{}, fmt.Errorf("role %s: %w", r.name, err)
		}
		if resp.Content != "" {
			transcript = append(transcript, resp.Content)
		}
		if len(resp.ToolCalls) == 0 || r.tools == nil {
			return NewMessage(r.name, strings.Join(transcript, "\n")), nil
		}
		if round >= r.maxToolRounds {
			r.logger.Warn("tool round limit reached, returning partial reply")
			return NewMessage(r.name, strings.Join(transcript, "\n")), nil
		}

		// Fold the tool exchange back into the conversation as plain text
		// so the same loop works across all backends.
		req.Messages = append(req.Messages, llm.NewAssistantMessage(renderToolRequest(resp)))
		for _, call := range resp.ToolCalls {
			r.logger.Debug("executing tool %s", call.Name)
			result := r.tools.Call(ctx, call.Name, call.Parameters)
			req.Messages = append(req.Messages,
				llm.NewUserMessage(fmt.Sprintf("Result of %s:\n%s", call.Name, result)))
		}
	}
}

func renderToolRequest(resp llm.CompletionResponse) string {
	var sb strings.Builder
	if resp.Content != "" {
		sb.WriteString(resp.Content)
		sb.WriteString("\n")
	}
	for _, call := range resp.ToolCalls {
		fmt.Fprintf(&sb, "[calling tool %s with %v]\n", call.Name, call.Parameters)
	}
	return strings.TrimRight(sb.String(), "\n")
}
