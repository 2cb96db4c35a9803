package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/relay/pkg/api"
	"github.com/rhuss/relay/pkg/planner"
	"github.com/rhuss/relay/pkg/provider"
	"github.com/rhuss/relay/pkg/provider/openaicompat"
	"github.com/rhuss/relay/pkg/reporter"
	"github.com/rhuss/relay/pkg/tools/vectorsearch"
)

func newMock(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(newHandler())
	t.Cleanup(srv.Close)
	return srv
}

func TestPlannerPrompt(t *testing.T) {
	srv := newMock(t)
	p := &planner.LLMPlanner{
		Provider:     openaicompat.NewClient(srv.URL, "", 5*time.Second),
		Model:        "mock-model",
		Descriptions: map[string]string{"researcher": "finds facts"},
	}

	plan, err := p.Generate(context.Background(), "Why did line 3 stop?", []string{"researcher", "analyst"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(plan.Steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(plan.Steps))
	}
	if plan.Steps[0].AgentName != "researcher" || plan.Steps[1].AgentName != "analyst" {
		t.Errorf("agents = %q, %q", plan.Steps[0].AgentName, plan.Steps[1].AgentName)
	}
	if !strings.Contains(plan.Steps[1].TaskDescription, "Why did line 3 stop?") {
		t.Errorf("task = %q", plan.Steps[1].TaskDescription)
	}
}

func TestReporterPrompt(t *testing.T) {
	srv := newMock(t)
	r := &reporter.LLMReporter{Provider: openaicompat.NewClient(srv.URL, "", 5*time.Second)}

	answer, err := r.Synthesize(context.Background(), "q", []api.StepResult{
		{StepIndex: 1, AgentName: "researcher", Output: json.RawMessage(`"found it"`), Status: api.StepStatusSuccess},
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !strings.HasPrefix(answer, "Report over 1 steps.") || !strings.Contains(answer, "found it") {
		t.Errorf("answer = %q", answer)
	}
}

func TestAgentTurns(t *testing.T) {
	srv := newMock(t)
	c := openaicompat.NewClient(srv.URL, "", 5*time.Second)

	req := &provider.Request{
		Messages: []provider.Message{provider.UserMessage("defects on line 3")},
		Tools:    []provider.Tool{{Name: "query_facts"}},
	}
	resp, err := c.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "query_facts" {
		t.Fatalf("tool calls = %+v", resp.ToolCalls)
	}

	req.Messages = append(req.Messages,
		provider.Message{Role: provider.RoleAssistant, ToolCalls: resp.ToolCalls},
		provider.ToolResultMessage(resp.ToolCalls[0], "2 defects\nmore"),
	)
	resp, err = c.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "Based on the data: 2 defects" {
		t.Errorf("content = %q", resp.Content)
	}

	resp, err = c.Complete(context.Background(), &provider.Request{Messages: []provider.Message{provider.UserMessage("hello")}})
	if err != nil || resp.Content != "Mock answer: hello" {
		t.Errorf("plain = %q, %v", resp.Content, err)
	}
}

func TestEmbeddings(t *testing.T) {
	srv := newMock(t)
	e := vectorsearch.NewOpenAIEmbedder(srv.URL, "mock-embed", "")

	vecs, err := e.Embed(context.Background(), []string{"torque", "torque", "sensor"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 3 || len(vecs[0]) != embeddingDims {
		t.Fatalf("vectors = %v", vecs)
	}
	for i := range vecs[0] {
		if vecs[0][i] != vecs[1][i] {
			t.Fatalf("equal texts embedded differently: %v vs %v", vecs[0], vecs[1])
		}
	}
}

func TestInvoke(t *testing.T) {
	srv := newMock(t)
	resp, err := http.Post(srv.URL+"/invoke", "application/json", strings.NewReader(`{"task":"count","context":""}`))
	if err != nil {
		t.Fatalf("POST /invoke: %v", err)
	}
	defer resp.Body.Close()

	var out api.InvokeResponse
	json.NewDecoder(resp.Body).Decode(&out)
	if out.Status != "success" || api.PayloadText(out.Result) != "Mock result for: count" {
		t.Errorf("response = %s / %s", out.Status, out.Result)
	}
}
