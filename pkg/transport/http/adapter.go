package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/rhuss/relay/pkg/api"
	"github.com/rhuss/relay/pkg/observability"
	"github.com/rhuss/relay/pkg/orchestrator"
	"github.com/rhuss/relay/pkg/transport"
)

// Adapter serves the orchestration API over HTTP.
// It routes requests to the query handler and the trace reader and
// serializes their results.
type Adapter struct {
	queries transport.QueryHandler
	traces  transport.TraceReader // nil disables the read endpoints
	mux     *http.ServeMux
	config  Config
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	MaxBodySize int64
	MetricsPath string   // empty disables the metrics endpoint
	CORSOrigins []string // empty disables CORS handling
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize: 1 << 20, // 1 MB
		MetricsPath: "/metrics",
		CORSOrigins: []string{"*"},
	}
}

// NewAdapter creates an HTTP adapter. Middleware is applied to the
// QueryHandler in the given order.
func NewAdapter(queries transport.QueryHandler, traces transport.TraceReader, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		queries = transport.Chain(middlewares...)(queries)
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultConfig().MaxBodySize
	}

	a := &Adapter{
		queries: queries,
		traces:  traces,
		mux:     http.NewServeMux(),
		config:  cfg,
	}

	a.mux.HandleFunc("POST /query", a.handleQuery)
	a.mux.HandleFunc("GET /request/{id}", a.handleGetRequest)
	a.mux.HandleFunc("GET /trace/last", a.handleLastTrace)
	a.mux.HandleFunc("GET /requests", a.handleListRequests)
	a.mux.HandleFunc("GET /health", a.handleHealth)
	if cfg.MetricsPath != "" {
		a.mux.Handle("GET "+cfg.MetricsPath, promhttp.Handler())
	}

	return a
}

// Handler returns the http.Handler for this adapter. Use this to integrate
// with an http.Server or test with httptest. The metrics middleware wraps
// the mux directly so it can read the matched route pattern.
func (a *Adapter) Handler() http.Handler {
	h := httpCorrelationIDMiddleware(observability.MetricsMiddleware(a.mux))
	if len(a.config.CORSOrigins) > 0 {
		h = corsHandler(a.config.CORSOrigins).Handler(h)
	}
	return h
}

func corsHandler(origins []string) *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID", "Prefer"},
		ExposedHeaders: []string{"X-Request-ID", "Location"},
	})
}

// httpCorrelationIDMiddleware propagates the X-Request-ID header. A client
// supplied value is kept; otherwise one is generated. The value is stored in
// the context and echoed on the response.
func httpCorrelationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = api.NewRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(transport.ContextWithCorrelationID(r.Context(), id)))
	})
}

// handleQuery handles POST /query.
func (a *Adapter) handleQuery(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if ct != "" && !strings.HasPrefix(ct, "application/json") {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
			http.StatusUnsupportedMediaType,
		)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)

	var req api.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return
		}
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()),
			http.StatusBadRequest,
		)
		return
	}

	if preferAsync(r.Header.Values("Prefer")) {
		req.Async = true
	}

	resp, err := a.queries.Submit(r.Context(), &req)
	if err != nil {
		transport.WriteError(w, err, "")
		return
	}

	status := http.StatusOK
	if req.Async && resp.Status == api.RequestStatusRunning {
		w.Header().Set("Location", "/request/"+resp.RequestID)
		status = http.StatusAccepted
	}
	writeJSON(w, status, resp)
}

// preferAsync reports whether a Prefer header asks for respond-async.
func preferAsync(values []string) bool {
	for _, v := range values {
		for _, pref := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(pref), "respond-async") {
				return true
			}
		}
	}
	return false
}

// handleGetRequest handles GET /request/{id}.
func (a *Adapter) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	if !a.requireTraces(w) {
		return
	}

	id := r.PathValue("id")
	if !api.ValidateRequestID(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "malformed request ID"),
			http.StatusBadRequest,
		)
		return
	}

	trace, err := a.traces.GetTrace(r.Context(), id)
	if err != nil {
		transport.WriteError(w, err, "request "+id+" not found")
		return
	}
	writeJSON(w, http.StatusOK, trace)
}

// handleLastTrace handles GET /trace/last?domain_id=.
func (a *Adapter) handleLastTrace(w http.ResponseWriter, r *http.Request) {
	if !a.requireTraces(w) {
		return
	}

	domainID := r.URL.Query().Get("domain_id")
	trace, err := a.traces.LastTrace(r.Context(), domainID)
	if err != nil {
		msg := "no requests recorded"
		if domainID != "" {
			msg = "no requests recorded for domain " + domainID
		}
		transport.WriteError(w, err, msg)
		return
	}
	writeJSON(w, http.StatusOK, trace)
}

// handleListRequests handles GET /requests.
func (a *Adapter) handleListRequests(w http.ResponseWriter, r *http.Request) {
	if !a.requireTraces(w) {
		return
	}

	opts, apiErr := parseListOptions(r)
	if apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}

	list, err := a.traces.ListRequests(r.Context(), opts)
	if err != nil {
		transport.WriteError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleHealth handles GET /health.
func (a *Adapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	if a.traces != nil {
		if err := a.traces.HealthCheck(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *Adapter) requireTraces(w http.ResponseWriter) bool {
	if a.traces != nil {
		return true
	}
	transport.WriteErrorResponse(w,
		api.NewInvalidRequestError("", "trace retrieval is not available (no store configured)"),
		http.StatusNotImplemented,
	)
	return false
}

// parseListOptions extracts filters and pagination from the query string.
func parseListOptions(r *http.Request) (orchestrator.ListOptions, *api.APIError) {
	q := r.URL.Query()
	opts := orchestrator.ListOptions{
		DomainID: q.Get("domain_id"),
		After:    q.Get("after"),
	}

	if opts.After != "" && !api.ValidateRequestID(opts.After) {
		return opts, api.NewInvalidRequestError("after", "after must be a request ID")
	}

	if s := q.Get("status"); s != "" {
		status := api.RequestStatus(s)
		if !status.Valid() {
			return opts, api.NewInvalidRequestError("status", "status must be one of running, completed, failed, partial")
		}
		opts.Status = status
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			return opts, api.NewInvalidRequestError("limit", "limit must be a positive integer")
		}
		opts.Limit = limit
	}

	return opts, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
