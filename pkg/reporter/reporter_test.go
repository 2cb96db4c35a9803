package reporter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rhuss/relay/pkg/api"
	"github.com/rhuss/relay/pkg/provider/providertest"
)

func sampleResults() []api.StepResult {
	return []api.StepResult{
		{StepIndex: 1, AgentName: "data_agent", Output: api.TextPayload("42 orders"), Status: api.StepStatusSuccess},
		{StepIndex: 2, AgentName: "qa_agent", Output: api.TextPayload("connection refused"), Status: api.StepStatusFailed},
		{StepIndex: 3, AgentName: "doc_agent", Output: json.RawMessage(`{"text":"see policy 7"}`), Status: api.StepStatusSuccess},
	}
}

func TestFormatResults(t *testing.T) {
	got := FormatResults(sampleResults())
	want := "Step 1 (data_agent) [success]: 42 orders\n\n" +
		"Step 2 (qa_agent) [failed]: connection refused\n\n" +
		"Step 3 (doc_agent) [success]: see policy 7"
	if got != want {
		t.Errorf("FormatResults =\n%s\nwant\n%s", got, want)
	}
}

func TestLLMReporter_Synthesize(t *testing.T) {
	prov := providertest.New(providertest.Text("  There were 42 orders.  "))
	r := &LLMReporter{Provider: prov, Model: "m"}

	answer, err := r.Synthesize(context.Background(), "how many orders?", sampleResults())
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if answer != "There were 42 orders." {
		t.Errorf("answer = %q", answer)
	}

	reqs := prov.Requests()
	if len(reqs) != 1 || len(reqs[0].Messages) != 1 {
		t.Fatalf("unexpected requests: %+v", reqs)
	}
	msg := reqs[0].Messages[0].Content
	for _, want := range []string{"User query: how many orders?", "Step 2 (qa_agent) [failed]: connection refused"} {
		if !strings.Contains(msg, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestLLMReporter_Failures(t *testing.T) {
	tests := []struct {
		name  string
		reply providertest.Reply
	}{
		{"provider error", providertest.Fail(errors.New("timeout"))},
		{"empty answer", providertest.Text("   ")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &LLMReporter{Provider: providertest.New(tt.reply)}
			_, err := r.Synthesize(context.Background(), "q", sampleResults())
			if !errors.Is(err, api.ErrSynthesisFailed) {
				t.Errorf("err = %v, want ErrSynthesisFailed", err)
			}
		})
	}
}
