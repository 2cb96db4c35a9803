package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/relay/pkg/api"
	"github.com/rhuss/relay/pkg/orchestrator"
)

const testID = "3f2b8c1e-7a4d-4e59-9c1b-2d6f0a8e5b7c"

func ptr[T any](v T) *T { return &v }

func sampleTrace() *api.Trace {
	latency := int64(120)
	return &api.Trace{
		Request: &api.Request{
			ID:          testID,
			DomainID:    "manufacturing",
			Query:       "Why did line 3 stop?",
			Status:      api.RequestStatusCompleted,
			FinalAnswer: ptr("A torque sensor failed."),
			CreatedAt:   time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC),
		},
		Plan: &api.Plan{Steps: []api.Step{
			{StepIndex: 1, AgentName: "researcher", TaskDescription: "Find stoppage reports"},
			{StepIndex: 2, AgentName: "analyst", TaskDescription: "Find the root cause"},
		}},
		StepResults: []api.StepResult{
			{StepIndex: 1, AgentName: "researcher", Output: json.RawMessage(`"Two reports on line 3."`), Status: api.StepStatusSuccess, LatencyMs: &latency},
			{StepIndex: 2, AgentName: "analyst", Output: json.RawMessage(`"agent timed out"`), Status: api.StepStatusTimeout},
		},
	}
}

func newTestServer(t *testing.T, calls *[]string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /query", func(w http.ResponseWriter, r *http.Request) {
		var req api.QueryRequest
		json.NewDecoder(r.Body).Decode(&req)
		*calls = append(*calls, "query:"+req.Query+":"+req.DomainID)
		status := api.RequestStatusCompleted
		if req.Async {
			status = api.RequestStatusRunning
		}
		json.NewEncoder(w).Encode(api.QueryResponse{RequestID: testID, Status: status})
	})
	mux.HandleFunc("GET /request/{id}", func(w http.ResponseWriter, r *http.Request) {
		*calls = append(*calls, "trace:"+r.PathValue("id"))
		if r.PathValue("id") != testID {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(api.ErrorResponse{Error: api.NewNotFoundError("request not found")})
			return
		}
		json.NewEncoder(w).Encode(sampleTrace())
	})
	mux.HandleFunc("GET /trace/last", func(w http.ResponseWriter, r *http.Request) {
		*calls = append(*calls, "last:"+r.URL.Query().Get("domain_id"))
		json.NewEncoder(w).Encode(sampleTrace())
	})
	mux.HandleFunc("GET /requests", func(w http.ResponseWriter, r *http.Request) {
		*calls = append(*calls, "list:"+r.URL.RawQuery)
		json.NewEncoder(w).Encode(orchestrator.RequestList{
			Data:    []*api.Request{sampleTrace().Request},
			HasMore: true,
			LastID:  testID,
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRun_Query(t *testing.T) {
	var calls []string
	srv := newTestServer(t, &calls)

	var out bytes.Buffer
	if err := run([]string{"--url", srv.URL, "query", "--domain", "manufacturing", "Why", "did", "line", "3", "stop?"}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []string{"query:Why did line 3 stop?:manufacturing", "trace:" + testID}
	if strings.Join(calls, ",") != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", calls, want)
	}
	for _, s := range []string{"researcher", "Find the root cause", "Two reports on line 3.", "A torque sensor failed.", "120ms"} {
		if !strings.Contains(out.String(), s) {
			t.Errorf("output missing %q:\n%s", s, out.String())
		}
	}
}

func TestRun_QueryAsync(t *testing.T) {
	var calls []string
	srv := newTestServer(t, &calls)

	var out bytes.Buffer
	if err := run([]string{"--url", srv.URL, "query", "--async", "status?"}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(calls) != 1 {
		t.Errorf("calls = %v, want only the submit", calls)
	}
	if !strings.Contains(out.String(), testID) || !strings.Contains(out.String(), "running") {
		t.Errorf("output = %q", out.String())
	}
}

func TestRun_TraceNotFound(t *testing.T) {
	var calls []string
	srv := newTestServer(t, &calls)

	err := run([]string{"--url", srv.URL, "trace", "00000000-0000-4000-8000-000000000000"}, &bytes.Buffer{})
	var apiErr *api.APIError
	if err == nil || !errors.As(err, &apiErr) || apiErr.Type != api.ErrorTypeNotFound {
		t.Errorf("error = %v, want not_found APIError", err)
	}
}

func TestRun_LastAndList(t *testing.T) {
	var calls []string
	srv := newTestServer(t, &calls)

	var out bytes.Buffer
	if err := run([]string{"--url", srv.URL, "last", "--domain", "manufacturing"}, &out); err != nil {
		t.Fatalf("last: %v", err)
	}
	if err := run([]string{"--url", srv.URL, "list", "--status", "completed", "--limit", "5"}, &out); err != nil {
		t.Fatalf("list: %v", err)
	}
	if calls[0] != "last:manufacturing" {
		t.Errorf("last call = %q", calls[0])
	}
	if calls[1] != "list:limit=5&status=completed" {
		t.Errorf("list call = %q", calls[1])
	}
	if !strings.Contains(out.String(), "--after "+testID) {
		t.Errorf("list output missing continuation hint:\n%s", out.String())
	}
}

func TestRun_Usage(t *testing.T) {
	tests := [][]string{
		{},
		{"bogus"},
		{"trace"},
		{"query"},
	}
	for _, args := range tests {
		if err := run(args, &bytes.Buffer{}); err == nil {
			t.Errorf("run(%v) succeeded, want error", args)
		}
	}
}

func TestRenderTrace_NoPlan(t *testing.T) {
	tr := &api.Trace{Request: &api.Request{
		ID:           testID,
		Status:       api.RequestStatusFailed,
		ErrorMessage: ptr("planning failed: model unavailable"),
	}}
	out := renderTrace(tr)
	for _, s := range []string{"(no plan)", "(none)", "planning failed: model unavailable"} {
		if !strings.Contains(out, s) {
			t.Errorf("output missing %q:\n%s", s, out)
		}
	}
}

func TestRenderTrace_InProgress(t *testing.T) {
	tr := &api.Trace{Request: &api.Request{ID: testID, Status: api.RequestStatusRunning}}
	if out := renderTrace(tr); !strings.Contains(out, "Still running.") {
		t.Errorf("output = %s", out)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("a long\nquery text", 10); got != "a long ..." {
		t.Errorf("truncate = %q, want %q", got, "a long ...")
	}
}
