// Package gateway is the public facade in front of the orchestration
// service. It forwards the query and trace endpoints verbatim and adds only
// a correlation ID header.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/cors"

	"github.com/rhuss/relay/pkg/api"
	"github.com/rhuss/relay/pkg/debug"
	"github.com/rhuss/relay/pkg/observability"
	"github.com/rhuss/relay/pkg/transport"
)

// forwardedHeaders are copied from the client request to the orchestrator.
var forwardedHeaders = []string{"Content-Type", "Accept", "Prefer"}

// relayedHeaders are copied from the orchestrator response to the client.
var relayedHeaders = []string{"Content-Type", "Location"}

// Gateway forwards client requests to the orchestrator.
type Gateway struct {
	upstream    string
	client      *http.Client
	corsOrigins []string
	mux         *http.ServeMux
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithClient replaces the HTTP client used for upstream calls.
func WithClient(c *http.Client) Option {
	return func(g *Gateway) { g.client = c }
}

// WithCORSOrigins sets the allowed CORS origins. Empty disables CORS.
func WithCORSOrigins(origins []string) Option {
	return func(g *Gateway) { g.corsOrigins = origins }
}

// New creates a gateway for the orchestrator at upstream. The timeout bounds
// one forwarded call and must cover a synchronous query.
func New(upstream string, timeout time.Duration, opts ...Option) *Gateway {
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	g := &Gateway{
		upstream:    strings.TrimRight(upstream, "/"),
		client:      &http.Client{Timeout: timeout},
		corsOrigins: []string{"*"},
		mux:         http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(g)
	}

	g.mux.HandleFunc("POST /query", g.forward)
	g.mux.HandleFunc("GET /request/{id}", g.forward)
	g.mux.HandleFunc("GET /trace/last", g.forward)
	g.mux.HandleFunc("GET /requests", g.forward)
	g.mux.HandleFunc("GET /health", g.handleHealth)
	return g
}

// Handler returns the gateway's root handler.
func (g *Gateway) Handler() http.Handler {
	var h http.Handler = observability.MetricsMiddleware(g.mux)
	if len(g.corsOrigins) > 0 {
		h = cors.New(cors.Options{
			AllowedOrigins: g.corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "X-Request-ID", "Prefer"},
			ExposedHeaders: []string{"X-Request-ID", "Location"},
		}).Handler(h)
	}
	return h
}

// forward relays the request to the same path on the orchestrator and
// copies status and body back unchanged.
func (g *Gateway) forward(w http.ResponseWriter, r *http.Request) {
	correlationID := r.Header.Get("X-Request-ID")
	if correlationID == "" {
		correlationID = api.NewRequestID()
	}
	w.Header().Set("X-Request-ID", correlationID)

	target := g.upstream + r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	upReq, err := http.NewRequestWithContext(r.Context(), r.Method, target, r.Body)
	if err != nil {
		transport.WriteAPIError(w, api.NewServerError(fmt.Sprintf("building upstream request: %v", err)))
		return
	}
	for _, h := range forwardedHeaders {
		if v := r.Header.Get(h); v != "" {
			upReq.Header.Set(h, v)
		}
	}
	upReq.Header.Set("X-Request-ID", correlationID)

	debug.Log("gateway", "forwarding", "method", r.Method, "target", target, "correlation_id", correlationID)

	start := time.Now()
	resp, err := g.client.Do(upReq)
	if err != nil {
		slog.Warn("orchestrator unreachable", "target", target, "correlation_id", correlationID, "error", err)
		transport.WriteAPIError(w, upstreamError(err))
		return
	}
	defer resp.Body.Close()

	for _, h := range relayedHeaders {
		if v := resp.Header.Get(h); v != "" {
			w.Header().Set(h, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		slog.Warn("relaying response failed", "correlation_id", correlationID, "error", err)
	}

	slog.Info("request forwarded",
		"method", r.Method,
		"path", r.URL.Path,
		"status", resp.StatusCode,
		"correlation_id", correlationID,
		"duration", time.Since(start))
}

// upstreamError maps a failed upstream call onto an API error.
func upstreamError(err error) *api.APIError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return api.NewUnavailableError("orchestrator did not answer in time")
	}
	return api.NewUnavailableError("orchestrator unavailable: " + err.Error())
}

// handleHealth reports the gateway's own liveness. The orchestrator is not
// probed so a restarting orchestrator does not take the gateway out of
// rotation.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	io.WriteString(w, `{"status":"ok"}`+"\n")
}
