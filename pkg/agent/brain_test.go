package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rhuss/relay/pkg/provider"
	"github.com/rhuss/relay/pkg/provider/providertest"
	"github.com/rhuss/relay/pkg/tools"
)

type fakeSQL struct{ statements []string }

func (f *fakeSQL) Query(_ context.Context, statement string) (string, error) {
	f.statements = append(f.statements, statement)
	return `[{"line":3,"defects":2}]`, nil
}

func registryWithSQL(t *testing.T) (*tools.Registry, *fakeSQL) {
	t.Helper()
	sql := &fakeSQL{}
	r := tools.NewRegistry()
	if err := r.Register(tools.Capability{Name: "query_facts", Kind: tools.KindSQL, SQL: sql}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return r, sql
}

func TestBrain_NoCapabilitiesSingleCompletion(t *testing.T) {
	prov := providertest.New(providertest.Text("  Line 3 is fine.  "))
	b := NewBrain(prov, nil, BrainConfig{Model: "m", SystemPrompt: "You are a researcher."})

	out, err := b.Run(context.Background(), "check line 3")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "Line 3 is fine." {
		t.Errorf("Run() = %q, want %q", out, "Line 3 is fine.")
	}

	reqs := prov.Requests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	if len(reqs[0].Tools) != 0 {
		t.Errorf("tools offered = %d, want 0", len(reqs[0].Tools))
	}
	if len(reqs[0].Messages) != 2 || reqs[0].Messages[0].Role != provider.RoleSystem {
		t.Errorf("messages = %+v", reqs[0].Messages)
	}
}

func TestBrain_ToolLoop(t *testing.T) {
	caps, sql := registryWithSQL(t)
	call := provider.ToolCall{ID: "call_1", Name: "query_facts", Arguments: `{"query":"SELECT * FROM defects"}`}
	prov := providertest.New(
		providertest.Calls(call),
		providertest.Text("Line 3 had 2 defects."),
	)
	b := NewBrain(prov, caps, BrainConfig{Model: "m"})

	out, err := b.Run(context.Background(), "defects on line 3?")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != "Line 3 had 2 defects." {
		t.Errorf("Run() = %q", out)
	}
	if len(sql.statements) != 1 || sql.statements[0] != "SELECT * FROM defects" {
		t.Errorf("statements = %v", sql.statements)
	}

	reqs := prov.Requests()
	if len(reqs) != 2 {
		t.Fatalf("requests = %d, want 2", len(reqs))
	}
	if len(reqs[0].Tools) != 1 || reqs[0].Tools[0].Name != "query_facts" {
		t.Errorf("tools = %+v", reqs[0].Tools)
	}
	msgs := reqs[1].Messages
	last := msgs[len(msgs)-1]
	if last.Role != provider.RoleTool || last.ToolCallID != "call_1" || !strings.Contains(last.Content, `"defects":2`) {
		t.Errorf("tool result message = %+v", last)
	}
	if prev := msgs[len(msgs)-2]; prev.Role != provider.RoleAssistant || len(prev.ToolCalls) != 1 {
		t.Errorf("assistant message = %+v", prev)
	}
}

func TestBrain_UnknownToolIsReportedToModel(t *testing.T) {
	caps, _ := registryWithSQL(t)
	prov := providertest.New(
		providertest.Calls(provider.ToolCall{ID: "c", Name: "launch_rockets", Arguments: `{}`}),
		providertest.Text("I cannot do that."),
	)
	out, err := NewBrain(prov, caps, BrainConfig{}).Run(context.Background(), "x")
	if err != nil || out != "I cannot do that." {
		t.Fatalf("Run() = %q, %v", out, err)
	}
	msgs := prov.Requests()[1].Messages
	if c := msgs[len(msgs)-1].Content; !strings.Contains(c, "launch_rockets") {
		t.Errorf("tool result = %q, want mention of unknown tool", c)
	}
}

func TestBrain_TurnLimit(t *testing.T) {
	caps, _ := registryWithSQL(t)
	prov := providertest.New(providertest.Calls(provider.ToolCall{ID: "c", Name: "query_facts", Arguments: `{"query":"SELECT 1"}`}))
	prov.Repeat = true

	_, err := NewBrain(prov, caps, BrainConfig{MaxTurns: 3}).Run(context.Background(), "loop")
	if !errors.Is(err, ErrTurnLimit) {
		t.Fatalf("error = %v, want ErrTurnLimit", err)
	}
	if n := len(prov.Requests()); n != 3 {
		t.Errorf("requests = %d, want 3", n)
	}
}

func TestBrain_ToolLoopFailureFallsBack(t *testing.T) {
	caps, _ := registryWithSQL(t)
	prov := providertest.New(
		providertest.Fail(errors.New("tools not supported by this model")),
		providertest.Text("plain answer"),
	)
	out, err := NewBrain(prov, caps, BrainConfig{}).Run(context.Background(), "x")
	if err != nil || out != "plain answer" {
		t.Fatalf("Run() = %q, %v", out, err)
	}
	if reqs := prov.Requests(); len(reqs[1].Tools) != 0 {
		t.Errorf("fallback offered %d tools, want 0", len(reqs[1].Tools))
	}
}

func TestBrain_CompletionError(t *testing.T) {
	prov := providertest.New(providertest.Fail(errors.New("backend down")))
	_, err := NewBrain(prov, nil, BrainConfig{}).Run(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "backend down") {
		t.Errorf("error = %v", err)
	}
}

func TestBrain_AppliesGuardrails(t *testing.T) {
	prov := providertest.New(providertest.Text("a b c d e"))
	out, err := NewBrain(prov, nil, BrainConfig{Guardrails: Guardrails{"max 2 words"}}).Run(context.Background(), "x")
	if err != nil || out != "a b..." {
		t.Errorf("Run() = %q, %v", out, err)
	}
}
