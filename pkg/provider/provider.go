package provider

import (
	"context"
	"strings"
)

// Provider abstracts an LLM inference backend.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Provider interface {
	// Name returns the provider identifier (e.g., "openaicompat").
	Name() string

	// Complete performs a single non-streaming chat completion.
	Complete(ctx context.Context, req *Request) (*Response, error)

	// Close releases provider resources (HTTP clients, connections).
	Close() error
}

// Prompt is a convenience wrapper for the common system + user exchange.
// It returns the trimmed text of the completion.
func Prompt(ctx context.Context, p Provider, model, system, user string, temperature *float64) (string, error) {
	req := &Request{
		Model:       model,
		Temperature: temperature,
	}
	if system != "" {
		req.Messages = append(req.Messages, SystemMessage(system))
	}
	req.Messages = append(req.Messages, UserMessage(user))

	resp, err := p.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}
