package mcp

// ServerConfig describes a single MCP server connection.
type ServerConfig struct {
	// Name is the logical name for this server, used in logs and errors.
	Name string `json:"name"`

	// Transport is "sse" or "streamable-http". Empty means streamable-http.
	Transport string `json:"transport"`

	// URL is the MCP server endpoint URL.
	URL string `json:"url"`

	// Headers are sent with every request, typically an API key or
	// bearer token.
	Headers map[string]string `json:"headers,omitempty"`
}
