package agent

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/cors"

	"github.com/rhuss/relay/pkg/api"
	"github.com/rhuss/relay/pkg/debug"
	"github.com/rhuss/relay/pkg/observability"
	"github.com/rhuss/relay/pkg/transport"
)

// maxBody bounds an invoke request body.
const maxBody = 1 << 20

// Handler serves the invoke protocol for one agent.
type Handler struct {
	name    string
	runner  Runner
	logger  *slog.Logger
	mux     *http.ServeMux
	handler http.Handler
}

// NewHandler creates a handler for the named agent.
func NewHandler(name string, runner Runner, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{name: name, runner: runner, logger: logger, mux: http.NewServeMux()}
	h.mux.HandleFunc("POST /invoke", h.handleInvoke)
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.handler = cors.AllowAll().Handler(observability.MetricsMiddleware(h.mux))
	return h
}

// ServeHTTP implements http.Handler with CORS and request metrics.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}

// handleInvoke runs the task. A runner error is reported as status
// "failed" with HTTP 200; only malformed requests get an error status.
func (h *Handler) handleInvoke(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)

	var req api.InvokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		transport.WriteAPIError(w, api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()))
		return
	}
	if req.Task == "" {
		transport.WriteAPIError(w, api.NewInvalidRequestError("task", "task is required"))
		return
	}

	log := h.logger.With("agent", h.name, "request_id", req.RequestID)
	log.Info("task received", "task", debug.Truncate(req.Task, 120))

	input := req.Task
	if req.Context != "" {
		input += "\n\nContext:\n" + req.Context
	}

	start := time.Now()
	out, err := h.runner.Run(r.Context(), input)
	latency := time.Since(start).Milliseconds()

	status := string(api.StepStatusSuccess)
	if err != nil {
		status = string(api.StepStatusFailed)
		out = err.Error()
		log.Warn("task failed", "error", err, "latency_ms", latency)
	} else {
		log.Info("task answered", "result", debug.Truncate(out, 120), "latency_ms", latency)
	}

	result, _ := json.Marshal(out)
	writeJSON(w, http.StatusOK, api.InvokeResponse{
		Result:    result,
		Status:    status,
		LatencyMs: &latency,
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "agent": h.name})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
