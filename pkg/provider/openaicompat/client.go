package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rhuss/relay/pkg/api"
	"github.com/rhuss/relay/pkg/debug"
	"github.com/rhuss/relay/pkg/provider"
)

// Client performs HTTP requests against an OpenAI-compatible Chat Completions
// backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string

	// ModelMapper is an optional function that transforms the model name
	// before sending it to the backend. If nil, the model name is used as-is.
	ModelMapper func(string) string
}

var _ provider.Provider = (*Client)(nil)

// NewClient creates a new Client for an OpenAI-compatible backend. The base
// URL may be given with or without the trailing /v1 segment.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	baseURL = strings.TrimSuffix(baseURL, "/v1")

	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// Name returns "openaicompat".
func (c *Client) Name() string { return "openaicompat" }

// Complete performs non-streaming inference against the Chat Completions endpoint.
func (c *Client) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	reqCopy := *req
	if c.ModelMapper != nil {
		reqCopy.Model = c.ModelMapper(reqCopy.Model)
	}

	chatReq := TranslateToChat(&reqCopy)

	body, err := json.Marshal(chatReq)
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to marshal request: %s", err.Error()))
	}

	url := c.baseURL + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	debug.Log("providers", "chat completion request", "url", url, "model", chatReq.Model, "messages", len(chatReq.Messages), "tools", len(chatReq.Tools))

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, MapNetworkError(err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, MapHTTPError(httpResp)
	}

	var chatResp ChatCompletionResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&chatResp); err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to parse backend response: %s", err.Error()))
	}

	resp, apiErr := TranslateResponse(&chatResp)
	if apiErr != nil {
		return nil, apiErr
	}

	debug.Log("providers", "chat completion response",
		"finish_reason", resp.FinishReason,
		"tool_calls", len(resp.ToolCalls),
		"content", debug.Truncate(resp.Content, 200))
	return resp, nil
}

// Close releases client resources.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
