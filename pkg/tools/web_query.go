package tools

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ToolWebQuery is the research web query tool name.
const ToolWebQuery = "web_query"

// DefaultWebQueryBaseURL points at Perplexity's OpenAI-compatible endpoint.
const DefaultWebQueryBaseURL = "https://api.perplexity.ai"

// WebQueryTool answers research questions through an AI search backend
// exposed over the OpenAI-compatible chat completions API.
type WebQueryTool struct {
	client openai.Client
	model  string
}

// NewWebQueryTool creates a web_query tool. An empty baseURL selects the
// default Perplexity endpoint.
func NewWebQueryTool(apiKey, baseURL, model string) *WebQueryTool {
	if baseURL == "" {
		baseURL = DefaultWebQueryBaseURL
	}
	if model == "" {
		model = "sonar"
	}
	client := openai.NewClient(option.WithAPIKey(apiKey), option.WithBaseURL(baseURL))
	return &WebQueryTool{client: client, model: model}
}

// Definition implements Tool.
func (t *WebQueryTool) Definition() Definition {
	return Definition{
		Name:        ToolWebQuery,
		Description: "Query an AI-powered search engine that is great for research and technical questions",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]*Property{
				"query": {Type: "string", Description: "The question to research"},
			},
			Required: []string{"query"},
		},
	}
}

// Exec implements Tool.
func (t *WebQueryTool) Exec(ctx context.Context, args map[string]any) string {
	query, ok := StringArg(args, "query")
	if !ok {
		return Errorf("query is required")
	}

	resp, err := t.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: t.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(query),
		},
	})
	if err != nil {
		return Errorf("web query failed: %v", err)
	}
	if len(resp.Choices) == 0 {
		return Errorf("web query returned no choices")
	}
	return resp.Choices[0].Message.Content
}
