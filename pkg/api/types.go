package api

import (
	"encoding/json"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Status enums
// ---------------------------------------------------------------------------

// RequestStatus is the lifecycle status of a Request.
type RequestStatus string

const (
	RequestStatusRunning   RequestStatus = "running"
	RequestStatusCompleted RequestStatus = "completed"
	RequestStatusFailed    RequestStatus = "failed"
	RequestStatusPartial   RequestStatus = "partial"
)

// StepStatus is the outcome of attempting a single Step.
type StepStatus string

const (
	StepStatusSuccess StepStatus = "success"
	StepStatusFailed  StepStatus = "failed"
	StepStatusTimeout StepStatus = "timeout"
)

// ParseStepStatus maps an agent-reported status string onto a StepStatus.
// Unknown or empty values are treated as success, matching agents that
// omit the field on a normal answer.
func ParseStepStatus(s string) StepStatus {
	switch StepStatus(strings.ToLower(strings.TrimSpace(s))) {
	case StepStatusFailed:
		return StepStatusFailed
	case StepStatusTimeout:
		return StepStatusTimeout
	default:
		return StepStatusSuccess
	}
}

// ---------------------------------------------------------------------------
// Trace entities
// ---------------------------------------------------------------------------

// Request is the top-level unit of work for one submitted query.
type Request struct {
	ID           string        `json:"request_id"`
	DomainID     string        `json:"domain_id"`
	Query        string        `json:"query"`
	SessionID    string        `json:"session_id,omitempty"`
	Status       RequestStatus `json:"status"`
	FinalAnswer  *string       `json:"final_answer"`
	ErrorMessage *string       `json:"error_message"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Step is one unit of work assigned to a named agent.
type Step struct {
	StepIndex       int    `json:"step_index"`
	AgentName       string `json:"agent_name"`
	TaskDescription string `json:"task_description"`
}

// Plan is the ordered list of Steps produced for one Request.
type Plan struct {
	Steps []Step `json:"steps"`
}

// MarshalJSON ensures steps is always an array, never null.
func (p Plan) MarshalJSON() ([]byte, error) {
	steps := p.Steps
	if steps == nil {
		steps = []Step{}
	}
	return json.Marshal(struct {
		Steps []Step `json:"steps"`
	}{steps})
}

// Step returns the step with the given index.
func (p *Plan) Step(index int) (Step, bool) {
	for _, s := range p.Steps {
		if s.StepIndex == index {
			return s, true
		}
	}
	return Step{}, false
}

// StepResult is the recorded outcome of attempting one Step.
type StepResult struct {
	StepIndex int             `json:"step_index"`
	AgentName string          `json:"agent_name"`
	Input     json.RawMessage `json:"input_payload"`
	Output    json.RawMessage `json:"output_payload"`
	Status    StepStatus      `json:"status"`
	LatencyMs *int64          `json:"latency_ms"`
}

// OutputText renders the output payload as plain text. JSON strings are
// unquoted and {"text": ...} wrappers are unwrapped; any other JSON value
// is returned in its compact encoding.
func (r StepResult) OutputText() string {
	return PayloadText(r.Output)
}

// PayloadText renders a JSON payload as text. See StepResult.OutputText.
func PayloadText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var wrapped struct {
		Text *string `json:"text"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Text != nil {
		return *wrapped.Text
	}
	return strings.TrimSpace(string(raw))
}

// TextPayload encodes a plain string as a JSON payload.
func TextPayload(s string) json.RawMessage {
	data, _ := json.Marshal(s)
	return data
}

// StepInput is the input payload echoed into a StepResult.
type StepInput struct {
	Task    string `json:"task"`
	Context string `json:"context,omitempty"`
}

// Trace combines a Request with its Plan and StepResults.
type Trace struct {
	Request     *Request
	Plan        *Plan // nil when planning failed or has not finished
	StepResults []StepResult
}

// InProgress reports whether the trace belongs to a request that has not
// been finalized. A running request may have a plan and fewer results than
// steps; that is a normal in-flight state, not corruption.
func (t *Trace) InProgress() bool {
	return t.Request != nil && !t.Request.Status.IsTerminal()
}

// MarshalJSON flattens the trace into the wire shape used by
// GET /request/{id} and GET /trace/last.
func (t Trace) MarshalJSON() ([]byte, error) {
	type wire struct {
		*Request
		Plan        Plan         `json:"plan"`
		StepResults []StepResult `json:"step_results"`
	}
	w := wire{Request: t.Request, StepResults: t.StepResults}
	if t.Plan != nil {
		w.Plan = *t.Plan
	}
	if w.StepResults == nil {
		w.StepResults = []StepResult{}
	}
	return json.Marshal(w)
}

// UnmarshalJSON reverses MarshalJSON.
func (t *Trace) UnmarshalJSON(data []byte) error {
	var w struct {
		Request
		Plan        *Plan        `json:"plan"`
		StepResults []StepResult `json:"step_results"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	req := w.Request
	t.Request = &req
	t.Plan = w.Plan
	if t.Plan != nil && len(t.Plan.Steps) == 0 {
		t.Plan = nil
	}
	t.StepResults = w.StepResults
	return nil
}

// ---------------------------------------------------------------------------
// Orchestration service wire types
// ---------------------------------------------------------------------------

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	Query     string `json:"query"`
	DomainID  string `json:"domain_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`

	// Async asks for the request to be executed in the background. The
	// response then carries only the request ID and status running; the
	// trace endpoints report progress.
	Async bool `json:"async,omitempty"`
}

// QueryResponse is the result of POST /query.
type QueryResponse struct {
	RequestID   string        `json:"request_id"`
	Status      RequestStatus `json:"status"`
	FinalAnswer *string       `json:"final_answer,omitempty"`
	Error       *string       `json:"error,omitempty"`
}

// ---------------------------------------------------------------------------
// Agent RPC wire types
// ---------------------------------------------------------------------------

// InvokeRequest is the body of POST {agent}/invoke.
type InvokeRequest struct {
	Task      string `json:"task"`
	Context   string `json:"context"`
	RequestID string `json:"request_id,omitempty"`
}

// InvokeResponse is the reply of POST {agent}/invoke. Result is either a
// JSON string or a structured object.
type InvokeResponse struct {
	Result    json.RawMessage `json:"result"`
	Status    string          `json:"status"`
	LatencyMs *int64          `json:"latency_ms,omitempty"`
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
