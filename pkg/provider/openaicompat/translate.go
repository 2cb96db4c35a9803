package openaicompat

import (
	"github.com/rhuss/relay/pkg/provider"
)

// TranslateToChat converts a provider.Request into a ChatCompletionRequest
// suitable for the /v1/chat/completions endpoint.
func TranslateToChat(req *provider.Request) ChatCompletionRequest {
	cr := ChatCompletionRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		N:           1,
	}

	for _, pm := range req.Messages {
		cm := ChatMessage{
			Role:       pm.Role,
			Content:    pm.Content,
			ToolCallID: pm.ToolCallID,
			Name:       pm.Name,
		}
		// Assistant turns that only carry tool calls send null content.
		if pm.Role == provider.RoleAssistant && pm.Content == "" && len(pm.ToolCalls) > 0 {
			cm.Content = nil
		}
		for _, tc := range pm.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, ChatToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: ChatFunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		cr.Messages = append(cr.Messages, cm)
	}

	for _, t := range req.Tools {
		cr.Tools = append(cr.Tools, ChatTool{
			Type: "function",
			Function: ChatFunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	return cr
}
