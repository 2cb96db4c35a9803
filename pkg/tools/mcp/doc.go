// Package mcp exposes tools hosted on MCP (Model Context Protocol) servers
// as agent capabilities. A Client connects to one server, lists its tools
// and registers each of them in a tools.Registry as a KindMCP capability.
//
// The package wraps the official MCP Go SDK
// (github.com/modelcontextprotocol/go-sdk). Servers are reached over SSE or
// streamable HTTP, with optional static headers for authentication.
package mcp
