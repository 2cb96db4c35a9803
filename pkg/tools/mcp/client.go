package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rhuss/relay/pkg/debug"
	"github.com/rhuss/relay/pkg/tools"
)

// Client wraps an MCP SDK client session for a single server.
type Client struct {
	cfg     ServerConfig
	client  *mcp.Client
	session *mcp.ClientSession
}

var _ tools.MCPBackend = (*Client)(nil)

// NewClient creates a client for the given server. Call Connect before use.
func NewClient(cfg ServerConfig) *Client {
	return &Client{cfg: cfg}
}

// Connect performs the protocol handshake using a transport built from the
// server configuration.
func (c *Client) Connect(ctx context.Context) error {
	return c.ConnectWithTransport(ctx, nil)
}

// ConnectWithTransport performs the handshake over the given transport. A
// nil transport is built from the server configuration.
func (c *Client) ConnectWithTransport(ctx context.Context, transport mcp.Transport) error {
	c.client = mcp.NewClient(
		&mcp.Implementation{Name: "relay-agent", Version: "1.0.0"},
		&mcp.ClientOptions{Capabilities: &mcp.ClientCapabilities{}},
	)

	if transport == nil {
		t, err := c.createTransport()
		if err != nil {
			return fmt.Errorf("creating transport for %q: %w", c.cfg.Name, err)
		}
		transport = t
	}

	session, err := c.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connecting to MCP server %q: %w", c.cfg.Name, err)
	}
	c.session = session
	return nil
}

func (c *Client) createTransport() (mcp.Transport, error) {
	var httpClient *http.Client
	if len(c.cfg.Headers) > 0 {
		httpClient = &http.Client{Transport: &headerTransport{base: http.DefaultTransport, headers: c.cfg.Headers}}
	}

	switch c.cfg.Transport {
	case "sse":
		t := &mcp.SSEClientTransport{Endpoint: c.cfg.URL}
		if httpClient != nil {
			t.HTTPClient = httpClient
		}
		return t, nil
	case "streamable-http", "":
		t := &mcp.StreamableClientTransport{Endpoint: c.cfg.URL}
		if httpClient != nil {
			t.HTTPClient = httpClient
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unsupported transport type %q", c.cfg.Transport)
	}
}

// headerTransport adds static headers to every request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}

// Discover lists the server's tools and returns one capability per tool,
// each backed by this client.
func (c *Client) Discover(ctx context.Context) ([]tools.Capability, error) {
	if c.session == nil {
		return nil, fmt.Errorf("MCP client %q not connected", c.cfg.Name)
	}

	var caps []tools.Capability
	for tool, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("listing tools from %q: %w", c.cfg.Name, err)
		}
		var params json.RawMessage
		if tool.InputSchema != nil {
			data, err := json.Marshal(tool.InputSchema)
			if err != nil {
				return nil, fmt.Errorf("converting tool %q from %q: %w", tool.Name, c.cfg.Name, err)
			}
			params = data
		}
		caps = append(caps, tools.Capability{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  params,
			Kind:        tools.KindMCP,
			MCP:         c,
		})
	}
	debug.Log("tools", "mcp tools discovered", "server", c.cfg.Name, "count", len(caps))
	return caps, nil
}

// CallTool runs a tool on the server. Text content blocks are joined with
// newlines; isError mirrors the server's error flag.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, bool, error) {
	if c.session == nil {
		return "", false, fmt.Errorf("MCP client %q not connected", c.cfg.Name)
	}

	result, err := c.session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", false, fmt.Errorf("MCP tool call error: %w", err)
	}

	var parts []string
	for _, content := range result.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n"), result.IsError, nil
}

// Close closes the session.
func (c *Client) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

// Attach connects to each server, registers its tools in reg and hands the
// session to reg for closing. A server that cannot be reached is logged and
// skipped; a tool name clash is an error.
func Attach(ctx context.Context, reg *tools.Registry, servers []ServerConfig) error {
	for _, cfg := range servers {
		client := NewClient(cfg)
		if err := client.Connect(ctx); err != nil {
			slog.Warn("MCP server unavailable, skipping", "server", cfg.Name, "error", err)
			continue
		}
		if err := register(ctx, reg, client); err != nil {
			client.Close()
			return err
		}
	}
	return nil
}

func register(ctx context.Context, reg *tools.Registry, client *Client) error {
	caps, err := client.Discover(ctx)
	if err != nil {
		return err
	}
	for _, c := range caps {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("registering MCP tool from %q: %w", client.cfg.Name, err)
		}
	}
	reg.OnClose(client)
	return nil
}
