package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"clockwork/pkg/tools"
)

// OllamaDefaultHost is the conventional local Ollama endpoint.
const OllamaDefaultHost = "http://localhost:11434"

// OllamaClient talks to a local Ollama server.
type OllamaClient struct {
	client *api.Client
	model  string
}

// NewOllamaClient creates a client for the given model against hostURL.
// An invalid or empty hostURL falls back to OllamaDefaultHost.
func NewOllamaClient(hostURL, model string) *OllamaClient {
	parsed, err := url.Parse(hostURL)
	if err != nil || hostURL == "" {
		parsed, _ = url.Parse(OllamaDefaultHost)
	}
	return &OllamaClient{
		client: api.NewClient(parsed, http.DefaultClient),
		model:  model,
	}
}

// Complete implements Client.
func (c *OllamaClient) Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error) {
	if len(in.Messages) == 0 {
		return CompletionResponse{}, fmt.Errorf("ollama completion: empty message list")
	}

	messages := make([]api.Message, len(in.Messages))
	for i, m := range in.Messages {
		messages[i] = api.Message{Role: string(m.Role), Content: m.Content}
	}

	stream := false
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": in.Temperature,
			"num_predict": maxTokensOrDefault(in.MaxTokens),
		},
	}
	if len(in.Tools) > 0 {
		req.Tools = toOllamaTools(in.Tools)
	}

	var last api.ChatResponse
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		last = resp
		return nil
	})
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("ollama completion: %w", err)
	}

	out := CompletionResponse{Content: last.Message.Content}
	for i := range last.Message.ToolCalls {
		call := &last.Message.ToolCalls[i]
		id := call.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:         id,
			Name:       call.Function.Name,
			Parameters: fromOllamaArguments(&call.Function.Arguments),
		})
	}
	return out, nil
}

func fromOllamaArguments(args *api.ToolCallFunctionArguments) map[string]any {
	out := make(map[string]any, args.Len())
	for name, value := range args.All() {
		out[name] = value
	}
	return out
}

func toOllamaTools(defs []tools.Definition) api.Tools {
	out := make(api.Tools, len(defs))
	for i := range defs {
		def := &defs[i]
		properties := api.NewToolPropertiesMap()
		for name, prop := range def.InputSchema.Properties {
			if prop != nil {
				properties.Set(name, toOllamaProperty(prop))
			}
		}
		out[i] = api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        def.Name,
				Description: def.Description,
				Parameters: api.ToolFunctionParameters{
					Type:       def.InputSchema.Type,
					Properties: properties,
					Required:   def.InputSchema.Required,
				},
			},
		}
	}
	return out
}

func toOllamaProperty(prop *tools.Property) api.ToolProperty {
	out := api.ToolProperty{
		Type:        api.PropertyType{prop.Type},
		Description: prop.Description,
	}
	if len(prop.Enum) > 0 {
		enum := make([]any, len(prop.Enum))
		for i, v := range prop.Enum {
			enum[i] = v
		}
		out.Enum = enum
	}
	if prop.Items != nil {
		out.Items = toOllamaProperty(prop.Items)
	}
	return out
}
