package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"clockwork/pkg/logx"
	"clockwork/pkg/tools"
)

// OpenAIDefaultModel is used when no model is configured.
const OpenAIDefaultModel = "gpt-4o"

// OpenAIClient talks to the OpenAI Chat Completions API, or any
// OpenAI-compatible endpoint when a base URL is supplied.
type OpenAIClient struct {
	client openai.Client
	model  string
	logger *logx.Logger
}

// NewOpenAIClient creates a client for the given model using apiKey.
// An empty model selects OpenAIDefaultModel.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	return newOpenAIClient(model, option.WithAPIKey(apiKey))
}

// NewOpenAICompatibleClient creates a client against an OpenAI-compatible
// API served at baseURL.
func NewOpenAICompatibleClient(apiKey, model, baseURL string) *OpenAIClient {
	return newOpenAIClient(model, option.WithAPIKey(apiKey), option.WithBaseURL(baseURL))
}

func newOpenAIClient(model string, opts ...option.RequestOption) *OpenAIClient {
	if model == "" {
		model = OpenAIDefaultModel
	}
	return &OpenAIClient{
		client: openai.NewClient(opts...),
		model:  model,
		logger: logx.NewLogger("openai"),
	}
}

// Complete implements Client.
func (c *OpenAIClient) Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: toOpenAIMessages(in.Messages),
	}
	if in.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(in.MaxTokens))
	}
	if in.Temperature > 0 {
		params.Temperature = openai.Float(float64(in.Temperature))
	}
	if len(in.Tools) > 0 {
		params.Tools = toOpenAITools(in.Tools)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return CompletionResponse{}, fmt.Errorf("openai completion: no choices returned")
	}

	choice := resp.Choices[0]
	out := CompletionResponse{Content: choice.Message.Content}
	for _, call := range choice.Message.ToolCalls {
		var args map[string]any
		if call.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
				c.logger.Warn("unparseable tool arguments for %s: %v", call.Function.Name, err)
				args = map[string]any{}
			}
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:         call.ID,
			Name:       call.Function.Name,
			Parameters: args,
		})
	}
	return out, nil
}

func toOpenAIMessages(msgs []CompletionMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func toOpenAITools(defs []tools.Definition) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, def := range defs {
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  openai.FunctionParameters(toOpenAISchema(def.InputSchema)),
			},
		})
	}
	return out
}

func toOpenAISchema(schema tools.InputSchema) map[string]any {
	properties := make(map[string]any, len(schema.Properties))
	for name, prop := range schema.Properties {
		if prop != nil {
			properties[name] = propertySchema(prop)
		}
	}
	required := schema.Required
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func propertySchema(prop *tools.Property) map[string]any {
	out := map[string]any{
		"type":        prop.Type,
		"description": prop.Description,
	}
	if len(prop.Enum) > 0 {
		out["enum"] = prop.Enum
	}
	if prop.Items != nil {
		out["items"] = propertySchema(prop.Items)
	}
	if len(prop.Properties) > 0 {
		nested := make(map[string]any, len(prop.Properties))
		for name, child := range prop.Properties {
			if child != nil {
				nested[name] = propertySchema(child)
			}
		}
		out["properties"] = nested
	}
	return out
}
