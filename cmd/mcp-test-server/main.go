// Command mcp-test-server runs a small MCP server with plant-floor tools
// for exercising agent MCP capabilities locally. It provides
// "line_status" and "shift_roster" over streamable HTTP on /mcp.
package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8090"
	}

	srv := &http.Server{Addr: ":" + port, Handler: newHandler(), ReadHeaderTimeout: 10 * time.Second}
	slog.Info("MCP test server starting", "port", port)
	if err := srv.ListenAndServe(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
