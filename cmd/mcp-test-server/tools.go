package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// lines is the fixed plant state the tools report.
var lines = map[string]string{
	"1": "running at 98% of target rate",
	"2": "stopped for scheduled maintenance",
	"3": "running; torque sensor reporting intermittent faults",
}

var roster = map[string][]string{
	"early": {"A. Okafor (lead)", "M. Lindqvist", "R. Chen"},
	"late":  {"S. Haddad (lead)", "J. Moreau"},
}

type lineInput struct {
	Line string `json:"line" jsonschema:"production line number, e.g. 3"`
}

type shiftInput struct {
	Shift string `json:"shift" jsonschema:"shift name: early or late"`
}

func newServer() *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "relay-plant-mcp", Version: "v1.0.0"}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "line_status",
		Description: "Returns the current status of a production line",
	}, func(_ context.Context, _ *mcp.CallToolRequest, in lineInput) (*mcp.CallToolResult, struct{}, error) {
		status, ok := lines[strings.TrimSpace(in.Line)]
		if !ok {
			return errorResult(fmt.Sprintf("unknown line %q", in.Line)), struct{}{}, nil
		}
		return textResult(fmt.Sprintf("Line %s: %s", in.Line, status)), struct{}{}, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "shift_roster",
		Description: "Lists the operators on a shift",
	}, func(_ context.Context, _ *mcp.CallToolRequest, in shiftInput) (*mcp.CallToolResult, struct{}, error) {
		names, ok := roster[strings.ToLower(strings.TrimSpace(in.Shift))]
		if !ok {
			return errorResult(fmt.Sprintf("unknown shift %q", in.Shift)), struct{}{}, nil
		}
		return textResult(strings.Join(names, "\n")), struct{}{}, nil
	})

	return server
}

func textResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: s}}}
}

func errorResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{IsError: true, Content: []mcp.Content{&mcp.TextContent{Text: s}}}
}

func newHandler() http.Handler {
	server := newServer()
	mux := http.NewServeMux()
	mux.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	})
	return mux
}
