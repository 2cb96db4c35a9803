package openaicompat

import (
	"github.com/rhuss/relay/pkg/api"
	"github.com/rhuss/relay/pkg/provider"
)

// TranslateResponse converts a ChatCompletionResponse into a provider.Response.
// It uses only choices[0]. A response without choices or one stopped by the
// content filter is reported as a model error.
func TranslateResponse(resp *ChatCompletionResponse) (*provider.Response, *api.APIError) {
	pr := &provider.Response{
		Model: resp.Model,
	}

	if resp.Usage != nil {
		pr.Usage = provider.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		}
	}

	if len(resp.Choices) == 0 {
		return nil, api.NewModelError("backend returned no choices")
	}

	choice := resp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return nil, api.NewModelError("completion stopped by content filter")
	}

	pr.FinishReason = choice.FinishReason
	pr.Content = ExtractContentString(choice.Message.Content)

	for _, tc := range choice.Message.ToolCalls {
		pr.ToolCalls = append(pr.ToolCalls, provider.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}

	return pr, nil
}

// ExtractContentString attempts to get a plain string from the message content.
// The content field in Chat Completions can be a string or nil.
func ExtractContentString(content any) string {
	if content == nil {
		return ""
	}
	switch v := content.(type) {
	case string:
		return v
	default:
		return ""
	}
}
