// Package providertest provides a scripted provider.Provider for tests.
package providertest

import (
	"context"
	"errors"
	"sync"

	"github.com/rhuss/relay/pkg/provider"
)

// ErrExhausted is returned once every scripted reply has been used.
var ErrExhausted = errors.New("providertest: no scripted replies left")

// Reply is one scripted answer. Err takes precedence over Response.
type Reply struct {
	Response *provider.Response
	Err      error
}

// Text is a shorthand for a plain text reply.
func Text(s string) Reply {
	return Reply{Response: &provider.Response{Content: s, FinishReason: "stop"}}
}

// Calls is a shorthand for a reply requesting tool calls.
func Calls(calls ...provider.ToolCall) Reply {
	return Reply{Response: &provider.Response{ToolCalls: calls, FinishReason: "tool_calls"}}
}

// Fail is a shorthand for an error reply.
func Fail(err error) Reply {
	return Reply{Err: err}
}

// Provider replays Replies in order and records every request.
type Provider struct {
	mu       sync.Mutex
	replies  []Reply
	requests []*provider.Request

	// Repeat, when true, keeps returning the last reply instead of
	// ErrExhausted.
	Repeat bool
}

var _ provider.Provider = (*Provider)(nil)

// New creates a Provider with the given replies.
func New(replies ...Reply) *Provider {
	return &Provider{replies: replies}
}

// Name returns "scripted".
func (p *Provider) Name() string { return "scripted" }

// Complete returns the next scripted reply.
func (p *Provider) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cp := *req
	cp.Messages = append([]provider.Message(nil), req.Messages...)
	p.requests = append(p.requests, &cp)

	idx := len(p.requests) - 1
	if idx >= len(p.replies) {
		if !p.Repeat || len(p.replies) == 0 {
			return nil, ErrExhausted
		}
		idx = len(p.replies) - 1
	}
	r := p.replies[idx]
	if r.Err != nil {
		return nil, r.Err
	}
	resp := *r.Response
	return &resp, nil
}

// Close is a no-op.
func (p *Provider) Close() error { return nil }

// Requests returns the recorded requests.
func (p *Provider) Requests() []*provider.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*provider.Request(nil), p.requests...)
}
