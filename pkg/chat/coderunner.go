package chat

import (
	"context"
	"regexp"
	"strings"
)

// ScriptRunner executes a script and returns its output rendered as text.
// Failures follow the tool error convention ("Error: ..." strings).
type ScriptRunner func(ctx context.Context, script string) string

var codeBlockRe = regexp.MustCompile("(?s)```(?:python|py)?\\n(.*?)```")

// CodeRunnerRole executes fenced code blocks from the previous message and
// replies with their output. It pairs with an implementer role in a session:
// the implementer writes code, the runner executes it, the implementer reads
// the result on its next turn.
type CodeRunnerRole struct {
	name RoleID
	run  ScriptRunner
}

// NewCodeRunnerRole creates a code runner backed by run.
func NewCodeRunnerRole(name RoleID, run ScriptRunner) *CodeRunnerRole {
	return &CodeRunnerRole{name: name, run: run}
}

// Name implements Role.
func (r *CodeRunnerRole) Name() RoleID {
	return r.name
}

// Invoke implements Role. Every fenced code block in the last message is
// executed in order; their outputs are concatenated into one reply. A
// message without code blocks produces an instructive reply rather than an
// error, so the implementer can correct itself.
func (r *CodeRunnerRole) Invoke(ctx context.Context, history []Message) (Message, error) {
	if len(history) == 0 {
		return NewMessage(r.name, "No code blocks found in the previous message."), nil
	}

	blocks := ExtractCodeBlocks(history[len(history)-1].Content)
	if len(blocks) == 0 {
		return NewMessage(r.name, "No code blocks found in the previous message. Provide code in a fenced ```python block to execute it."), nil
	}

	var outputs []string
	for _, block := range blocks {
		if err := ctx.Err(); err != nil {
			return Message{}, err
		}
		outputs = append(outputs, r.run(ctx, block))
	}
	return NewMessage(r.name, strings.Join(outputs, "\n\n")), nil
}

// ExtractCodeBlocks returns the contents of fenced python code blocks.
func ExtractCodeBlocks(content string) []string {
	matches := codeBlockRe.FindAllStringSubmatch(content, -1)
	blocks := make([]string, 0, len(matches))
	for _, m := range matches {
		if block := strings.TrimSpace(m[1]); block != "" {
			blocks = append(blocks, block)
		}
	}
	return blocks
}
