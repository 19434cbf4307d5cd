package session

import (
	"clockwork/pkg/chat"
	"clockwork/pkg/utils"
)

// EstimateTokens sums the per-message heuristic estimate across a transcript.
func EstimateTokens(messages []chat.Message) int {
	total := 0
	for _, m := range messages {
		total += utils.EstimateTokens(m.Content)
	}
	return total
}
