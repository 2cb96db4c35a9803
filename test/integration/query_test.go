package integration

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/relay/pkg/api"
	"github.com/rhuss/relay/pkg/orchestrator"
)

func TestQuery_CompletedTwoSteps(t *testing.T) {
	query := "What is the defect rate for line 3?"
	resp := postQuery(t, query, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("gateway did not set X-Request-ID")
	}
	var qr api.QueryResponse
	decode(t, resp, &qr)

	if qr.Status != api.RequestStatusCompleted {
		t.Fatalf("status = %q, want completed (error %v)", qr.Status, qr.Error)
	}
	if qr.FinalAnswer == nil || !strings.Contains(*qr.FinalAnswer, "4 defects") || !strings.Contains(*qr.FinalAnswer, "2%") {
		t.Errorf("final_answer = %v, want both step outputs referenced", qr.FinalAnswer)
	}

	var tr api.Trace
	if code := getJSON(t, "/request/"+qr.RequestID, &tr); code != http.StatusOK {
		t.Fatalf("GET /request status = %d", code)
	}
	if tr.Request.Query != query || tr.Request.DomainID != "manufacturing" {
		t.Errorf("request = %+v", tr.Request)
	}
	if tr.Plan == nil || len(tr.Plan.Steps) != 2 {
		t.Fatalf("plan = %+v, want 2 steps", tr.Plan)
	}
	if len(tr.StepResults) != 2 {
		t.Fatalf("step results = %d, want 2", len(tr.StepResults))
	}
	for i, sr := range tr.StepResults {
		if sr.StepIndex != i+1 || sr.Status != api.StepStatusSuccess {
			t.Errorf("step result %d = index %d status %q", i, sr.StepIndex, sr.Status)
		}
		if sr.LatencyMs == nil {
			t.Errorf("step result %d has no latency", i)
		}
	}
	if got := tr.StepResults[0].OutputText(); got != "Found 4 defects in 200 units on line 3." {
		t.Errorf("researcher output = %q", got)
	}

	// The analyst saw the researcher's output in its context.
	var analystInput string
	for _, in := range testEnv.Model.inputs(analystPrompt) {
		if strings.Contains(in, query) {
			analystInput = in
		}
	}
	for _, want := range []string{"compute rate for:", "\n\nContext:\nOriginal query: " + query, "Step 1 (researcher): Found 4 defects"} {
		if !strings.Contains(analystInput, want) {
			t.Errorf("analyst input missing %q:\n%s", want, analystInput)
		}
	}
}

func TestQuery_PlannerFailure(t *testing.T) {
	resp := postQuery(t, "Summarize everything "+markerPlannerDown, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var qr api.QueryResponse
	decode(t, resp, &qr)

	if qr.Status != api.RequestStatusFailed {
		t.Fatalf("status = %q, want failed", qr.Status)
	}
	if qr.Error == nil || *qr.Error == "" {
		t.Error("error message missing")
	}

	var tr api.Trace
	getJSON(t, "/request/"+qr.RequestID, &tr)
	if tr.Plan != nil && len(tr.Plan.Steps) != 0 {
		t.Errorf("plan = %+v, want none", tr.Plan)
	}
	if len(tr.StepResults) != 0 {
		t.Errorf("step results = %d, want 0", len(tr.StepResults))
	}
}

func TestQuery_StepFailureContinues(t *testing.T) {
	resp := postQuery(t, "Line 3 report "+markerOutage, nil)
	var qr api.QueryResponse
	decode(t, resp, &qr)

	if qr.Status != api.RequestStatusCompleted {
		t.Fatalf("status = %q, want completed (reporter succeeded)", qr.Status)
	}

	var tr api.Trace
	getJSON(t, "/request/"+qr.RequestID, &tr)
	if len(tr.StepResults) != 2 {
		t.Fatalf("step results = %d, want 2", len(tr.StepResults))
	}
	if tr.StepResults[0].Status != api.StepStatusFailed {
		t.Errorf("step 1 status = %q, want failed", tr.StepResults[0].Status)
	}
	if tr.StepResults[1].Status != api.StepStatusSuccess {
		t.Errorf("step 2 status = %q, want success", tr.StepResults[1].Status)
	}
	if qr.FinalAnswer == nil || !strings.Contains(*qr.FinalAnswer, "[failed]") {
		t.Errorf("final_answer = %v, want the failed step reported", qr.FinalAnswer)
	}
}

func TestAsyncQuery(t *testing.T) {
	resp := postQuery(t, "How many units on line 1?", map[string]string{"Prefer": "respond-async"})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	location := resp.Header.Get("Location")
	var qr api.QueryResponse
	decode(t, resp, &qr)

	if qr.Status != api.RequestStatusRunning {
		t.Errorf("status = %q, want running", qr.Status)
	}
	if location != "/request/"+qr.RequestID {
		t.Errorf("Location = %q", location)
	}

	deadline := time.Now().Add(10 * time.Second)
	var tr api.Trace
	for {
		getJSON(t, location, &tr)
		if tr.Request.Status.IsTerminal() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("request still %q after 10s", tr.Request.Status)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if tr.Request.Status != api.RequestStatusCompleted || len(tr.StepResults) != 2 {
		t.Errorf("trace = status %q, %d results", tr.Request.Status, len(tr.StepResults))
	}
}

func TestLastTraceAndList(t *testing.T) {
	postQuery(t, "Earlier question about line 1", nil).Body.Close()
	resp := postQuery(t, "Latest question about line 2", nil)
	var qr api.QueryResponse
	decode(t, resp, &qr)

	var tr api.Trace
	if code := getJSON(t, "/trace/last?domain_id=manufacturing", &tr); code != http.StatusOK {
		t.Fatalf("GET /trace/last status = %d", code)
	}
	if tr.Request.ID != qr.RequestID {
		t.Errorf("last trace = %s, want %s", tr.Request.ID, qr.RequestID)
	}

	if code := getJSON(t, "/trace/last?domain_id=no-such-domain", nil); code != http.StatusNotFound {
		t.Errorf("last trace for unknown domain status = %d, want 404", code)
	}

	r, err := http.Get(testEnv.Gateway.URL + "/requests?limit=1")
	if err != nil {
		t.Fatalf("GET /requests: %v", err)
	}
	var list orchestrator.RequestList
	decode(t, r, &list)
	if len(list.Data) != 1 || list.Data[0].ID != qr.RequestID || !list.HasMore {
		t.Errorf("list = %+v", list)
	}
}

func TestErrors(t *testing.T) {
	resp := postQuery(t, "   ", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty query status = %d, want 400", resp.StatusCode)
	}

	if code := getJSON(t, "/request/not-a-uuid", nil); code != http.StatusBadRequest {
		t.Errorf("malformed id status = %d, want 400", code)
	}
	if code := getJSON(t, "/request/"+api.NewRequestID(), nil); code != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", code)
	}
}

func TestHealth(t *testing.T) {
	for _, srv := range []string{testEnv.Gateway.URL, testEnv.Orchestrator.URL, testEnv.Researcher.URL} {
		resp, err := http.Get(srv + "/health")
		if err != nil {
			t.Fatalf("GET %s/health: %v", srv, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s/health status = %d", srv, resp.StatusCode)
		}
	}
}
