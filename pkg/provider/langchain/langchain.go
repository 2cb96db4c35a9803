// Package langchain adapts a langchaingo llms.Model to provider.Provider.
// It lets relay run its planner, reporter and agent brains on any backend
// langchaingo supports; NewOpenAI wires the OpenAI-compatible client.
package langchain

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/rhuss/relay/pkg/api"
	"github.com/rhuss/relay/pkg/debug"
	"github.com/rhuss/relay/pkg/provider"
)

// Provider wraps a langchaingo model.
type Provider struct {
	model llms.Model
}

var _ provider.Provider = (*Provider)(nil)

// New wraps an existing langchaingo model.
func New(model llms.Model) *Provider {
	return &Provider{model: model}
}

// NewOpenAI creates a provider backed by langchaingo's OpenAI client. The
// base URL must point at the /v1 root of an OpenAI-compatible server; an
// empty base URL uses api.openai.com.
func NewOpenAI(baseURL, apiKey, model string) (*Provider, error) {
	opts := []openai.Option{
		openai.WithModel(model),
	}
	// The client refuses to start without a token; local backends ignore it.
	if apiKey == "" {
		apiKey = "unused"
	}
	opts = append(opts, openai.WithToken(apiKey))
	if baseURL != "" {
		baseURL = strings.TrimRight(baseURL, "/")
		if !strings.HasSuffix(baseURL, "/v1") {
			baseURL += "/v1"
		}
		opts = append(opts, openai.WithBaseURL(baseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating langchaingo openai client: %w", err)
	}
	return New(llm), nil
}

// Name returns "langchain".
func (p *Provider) Name() string { return "langchain" }

// Complete translates the request into langchaingo messages and options and
// maps the first choice back.
func (p *Provider) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	messages := toMessageContent(req.Messages)

	var opts []llms.CallOption
	if req.Model != "" {
		opts = append(opts, llms.WithModel(req.Model))
	}
	if req.Temperature != nil {
		opts = append(opts, llms.WithTemperature(*req.Temperature))
	}
	if req.MaxTokens != nil {
		opts = append(opts, llms.WithMaxTokens(*req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		opts = append(opts, llms.WithTools(toTools(req.Tools)))
	}

	debug.Log("providers", "langchain generate", "model", req.Model, "messages", len(messages), "tools", len(req.Tools))

	resp, err := p.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, api.NewModelError(fmt.Sprintf("langchain generate: %s", err.Error()))
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, api.NewModelError("backend returned no choices")
	}

	choice := resp.Choices[0]
	out := &provider.Response{
		Content:      choice.Content,
		FinishReason: choice.StopReason,
		Model:        req.Model,
		Usage:        usageFrom(choice.GenerationInfo),
	}
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		out.ToolCalls = append(out.ToolCalls, provider.ToolCall{
			ID:        tc.ID,
			Name:      tc.FunctionCall.Name,
			Arguments: tc.FunctionCall.Arguments,
		})
	}
	return out, nil
}

// Close is a no-op; langchaingo clients hold no resources that need release.
func (p *Provider) Close() error { return nil }

func toMessageContent(msgs []provider.Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case provider.RoleSystem:
			out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, m.Content))
		case provider.RoleAssistant:
			var parts []llms.ContentPart
			if m.Content != "" {
				parts = append(parts, llms.TextContent{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, llms.ToolCall{
					ID:   tc.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			out = append(out, llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: parts})
		case provider.RoleTool:
			out = append(out, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{
					llms.ToolCallResponse{
						ToolCallID: m.ToolCallID,
						Name:       m.Name,
						Content:    m.Content,
					},
				},
			})
		default:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, m.Content))
		}
	}
	return out
}

func toTools(tools []provider.Tool) []llms.Tool {
	out := make([]llms.Tool, 0, len(tools))
	for _, t := range tools {
		def := &llms.FunctionDefinition{
			Name:        t.Name,
			Description: t.Description,
		}
		if len(t.Parameters) > 0 {
			def.Parameters = t.Parameters
		}
		out = append(out, llms.Tool{Type: "function", Function: def})
	}
	return out
}

func usageFrom(info map[string]any) provider.Usage {
	get := func(key string) int {
		if v, ok := info[key].(int); ok {
			return v
		}
		return 0
	}
	return provider.Usage{
		InputTokens:  get("PromptTokens"),
		OutputTokens: get("CompletionTokens"),
		TotalTokens:  get("TotalTokens"),
	}
}
