// Package agentrpc is the orchestrator's client for the agent invoke
// protocol: POST {base}/invoke with {task, context, request_id} and a reply
// of {result, status, latency_ms}.
//
// Every call resolves to exactly one Outcome. Transport problems are values,
// not errors, so the executor can record them as step results.
package agentrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rhuss/relay/pkg/api"
	"github.com/rhuss/relay/pkg/debug"
)

// OutcomeKind classifies how an agent call ended.
type OutcomeKind int

const (
	// Success: the agent answered 2xx and did not report a failure.
	Success OutcomeKind = iota
	// Timeout: no answer within the call deadline.
	Timeout
	// TransportError: connection failure, non-2xx status or an unreadable body.
	TransportError
	// RemoteReportedFailure: the agent answered 2xx with status failed or timeout.
	RemoteReportedFailure
)

// String returns the kind's name.
func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case Timeout:
		return "timeout"
	case TransportError:
		return "transport_error"
	case RemoteReportedFailure:
		return "remote_failure"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the result of one invoke call.
type Outcome struct {
	Kind OutcomeKind

	// Result is the agent's result payload for Success and
	// RemoteReportedFailure.
	Result json.RawMessage

	// RemoteStatus is the status the agent reported.
	RemoteStatus api.StepStatus

	// Err describes Timeout and TransportError outcomes. For non-2xx
	// responses it carries the response body.
	Err error

	// HTTPStatus is the response status code, or 0 when no response arrived.
	HTTPStatus int

	// Latency is the wall time of the call as observed by the caller.
	Latency time.Duration
}

// Invoker dispatches a task to the agent at baseURL.
type Invoker interface {
	Invoke(ctx context.Context, baseURL string, req api.InvokeRequest) Outcome
}

// maxBody bounds how much of an agent reply is read.
const maxBody = 8 << 20

// HTTPInvoker implements Invoker over HTTP.
type HTTPInvoker struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPInvoker creates an invoker whose calls are bounded by timeout.
// A zero timeout defaults to 120 seconds.
func NewHTTPInvoker(timeout time.Duration) *HTTPInvoker {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &HTTPInvoker{
		client:  &http.Client{},
		timeout: timeout,
	}
}

// Invoke posts the task and classifies the reply.
func (h *HTTPInvoker) Invoke(ctx context.Context, baseURL string, req api.InvokeRequest) Outcome {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	out := h.invoke(ctx, baseURL, req)
	out.Latency = time.Since(start)

	debug.Log("agents", "invoke finished",
		"url", baseURL,
		"request_id", req.RequestID,
		"outcome", out.Kind.String(),
		"http_status", out.HTTPStatus,
		"latency_ms", out.Latency.Milliseconds())
	return out
}

func (h *HTTPInvoker) invoke(ctx context.Context, baseURL string, req api.InvokeRequest) Outcome {
	body, err := json.Marshal(req)
	if err != nil {
		return Outcome{Kind: TransportError, Err: fmt.Errorf("encoding invoke request: %w", err)}
	}

	url := strings.TrimRight(baseURL, "/") + "/invoke"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Outcome{Kind: TransportError, Err: fmt.Errorf("building invoke request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.RequestID != "" {
		httpReq.Header.Set("X-Request-ID", req.RequestID)
	}

	debug.Log("agents", "invoke", "url", url, "task", debug.Truncate(req.Task, 100))

	resp, err := h.client.Do(httpReq)
	if err != nil {
		if isTimeout(ctx, err) {
			return Outcome{Kind: Timeout, Err: fmt.Errorf("agent call timed out after %s", h.timeout)}
		}
		return Outcome{Kind: TransportError, Err: fmt.Errorf("agent call failed: %w", err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		if isTimeout(ctx, err) {
			return Outcome{Kind: Timeout, HTTPStatus: resp.StatusCode, Err: fmt.Errorf("agent call timed out after %s", h.timeout)}
		}
		return Outcome{Kind: TransportError, HTTPStatus: resp.StatusCode, Err: fmt.Errorf("reading agent response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Outcome{
			Kind:       TransportError,
			HTTPStatus: resp.StatusCode,
			Err:        fmt.Errorf("agent returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data))),
		}
	}

	return decodeReply(resp.StatusCode, data)
}

// decodeReply classifies a 2xx body. A body without a result field is
// taken as the result itself.
func decodeReply(status int, data []byte) Outcome {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		if json.Valid(data) {
			return Outcome{Kind: Success, Result: json.RawMessage(data), RemoteStatus: api.StepStatusSuccess, HTTPStatus: status}
		}
		return Outcome{Kind: TransportError, HTTPStatus: status, Err: fmt.Errorf("decoding agent response: %w", err)}
	}

	var reply api.InvokeResponse
	// Field-level decode errors fall through to the defaults below.
	_ = json.Unmarshal(data, &reply)

	result := reply.Result
	if _, ok := fields["result"]; !ok {
		result = json.RawMessage(data)
	}
	if len(result) == 0 {
		result = json.RawMessage("null")
	}

	remote := api.ParseStepStatus(reply.Status)
	out := Outcome{Kind: Success, Result: result, RemoteStatus: remote, HTTPStatus: status}
	if remote != api.StepStatusSuccess {
		out.Kind = RemoteReportedFailure
	}
	return out
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
