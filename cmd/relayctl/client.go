package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rhuss/relay/pkg/api"
	"github.com/rhuss/relay/pkg/orchestrator"
)

// client talks to the gateway or directly to the orchestration service.
type client struct {
	base string
	http *http.Client
}

func newClient(base string, hc *http.Client) *client {
	if hc == nil {
		hc = &http.Client{}
	}
	return &client{base: strings.TrimRight(base, "/"), http: hc}
}

func (c *client) query(ctx context.Context, req *api.QueryRequest) (*api.QueryResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	var resp api.QueryResponse
	if err := c.do(ctx, http.MethodPost, "/query", bytes.NewReader(body), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *client) trace(ctx context.Context, id string) (*api.Trace, error) {
	var t api.Trace
	if err := c.do(ctx, http.MethodGet, "/request/"+url.PathEscape(id), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *client) last(ctx context.Context, domainID string) (*api.Trace, error) {
	path := "/trace/last"
	if domainID != "" {
		path += "?domain_id=" + url.QueryEscape(domainID)
	}
	var t api.Trace
	if err := c.do(ctx, http.MethodGet, path, nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *client) list(ctx context.Context, opts orchestrator.ListOptions) (*orchestrator.RequestList, error) {
	q := url.Values{}
	if opts.DomainID != "" {
		q.Set("domain_id", opts.DomainID)
	}
	if opts.Status != "" {
		q.Set("status", string(opts.Status))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.After != "" {
		q.Set("after", opts.After)
	}
	path := "/requests"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var l orchestrator.RequestList
	if err := c.do(ctx, http.MethodGet, path, nil, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// do sends the request and decodes a 2xx body into out. Error bodies are
// decoded as *api.APIError when possible.
func (c *client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		var er api.ErrorResponse
		if json.Unmarshal(data, &er) == nil && er.Error != nil {
			return er.Error
		}
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
