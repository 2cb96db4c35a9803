// Package storagetest provides a conformance suite that every
// orchestrator.TraceStore implementation runs from its own tests.
package storagetest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rhuss/relay/pkg/api"
	"github.com/rhuss/relay/pkg/orchestrator"
	"github.com/rhuss/relay/pkg/storage"
)

// Factory returns an empty store. The suite closes nothing; the factory
// registers its own cleanup.
type Factory func(t *testing.T) orchestrator.TraceStore

// Run executes the full conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s orchestrator.TraceStore)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"CreateDuplicate", testCreateDuplicate},
		{"GetNotFound", testGetNotFound},
		{"PlanWriteOnce", testPlanWriteOnce},
		{"PlanMissing", testPlanMissing},
		{"StepResultsOrdered", testStepResultsOrdered},
		{"StepResultDuplicate", testStepResultDuplicate},
		{"StepResultUnknownStep", testStepResultUnknownStep},
		{"StepResultPayloads", testStepResultPayloads},
		{"FinalizeOnce", testFinalizeOnce},
		{"FinalizeNonTerminal", testFinalizeNonTerminal},
		{"FinalizeNotFound", testFinalizeNotFound},
		{"InProgressTrace", testInProgressTrace},
		{"LatestRequest", testLatestRequest},
		{"ListRequests", testListRequests},
		{"ListCursorLeavesFilter", testListCursorLeavesFilter},
		{"ConcurrentRequests", testConcurrentRequests},
		{"HealthCheck", testHealthCheck},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

// NewRequest returns a running request created at the given time.
func NewRequest(domainID, query string, createdAt time.Time) *api.Request {
	return &api.Request{
		ID:        api.NewRequestID(),
		DomainID:  domainID,
		Query:     query,
		Status:    api.RequestStatusRunning,
		CreatedAt: createdAt.UTC().Truncate(time.Microsecond),
		UpdatedAt: createdAt.UTC().Truncate(time.Microsecond),
	}
}

// TwoStepPlan is the plan used across the suite.
func TwoStepPlan() *api.Plan {
	return &api.Plan{Steps: []api.Step{
		{StepIndex: 0, AgentName: "data_agent", TaskDescription: "count failed tests"},
		{StepIndex: 1, AgentName: "qa_agent", TaskDescription: "summarize failures"},
	}}
}

// Result builds a step result with a JSON string output.
func Result(index int, agent, output string, status api.StepStatus) *api.StepResult {
	ms := int64(10 * (index + 1))
	input, _ := json.Marshal(api.StepInput{Task: fmt.Sprintf("task %d", index), Context: "Original query: q"})
	return &api.StepResult{
		StepIndex: index,
		AgentName: agent,
		Input:     input,
		Output:    api.TextPayload(output),
		Status:    status,
		LatencyMs: &ms,
	}
}

func mustCreate(t *testing.T, s orchestrator.TraceStore, req *api.Request) {
	t.Helper()
	if err := s.CreateRequest(context.Background(), req); err != nil {
		t.Fatalf("CreateRequest: %v", err)
	}
}

func mustPlan(t *testing.T, s orchestrator.TraceStore, id string, plan *api.Plan) {
	t.Helper()
	if err := s.SavePlan(context.Background(), id, plan); err != nil {
		t.Fatalf("SavePlan: %v", err)
	}
}

func testCreateAndGet(t *testing.T, s orchestrator.TraceStore) {
	ctx := context.Background()
	req := NewRequest("qa", "how many tests failed?", time.Now())
	req.SessionID = "session-1"
	mustCreate(t, s, req)

	got, err := s.GetRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	if got.ID != req.ID {
		t.Errorf("ID = %q, want %q", got.ID, req.ID)
	}
	if got.DomainID != "qa" || got.Query != "how many tests failed?" || got.SessionID != "session-1" {
		t.Errorf("GetRequest = %+v, fields not preserved", got)
	}
	if got.Status != api.RequestStatusRunning {
		t.Errorf("Status = %q, want %q", got.Status, api.RequestStatusRunning)
	}
	if got.FinalAnswer != nil || got.ErrorMessage != nil {
		t.Errorf("FinalAnswer/ErrorMessage = %v/%v, want nil", got.FinalAnswer, got.ErrorMessage)
	}
	if !got.CreatedAt.Equal(req.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, req.CreatedAt)
	}
}

func testCreateDuplicate(t *testing.T, s orchestrator.TraceStore) {
	req := NewRequest("qa", "q", time.Now())
	mustCreate(t, s, req)
	err := s.CreateRequest(context.Background(), req)
	if !errors.Is(err, storage.ErrConflict) {
		t.Errorf("second CreateRequest = %v, want ErrConflict", err)
	}
}

func testGetNotFound(t *testing.T, s orchestrator.TraceStore) {
	ctx := context.Background()
	id := api.NewRequestID()
	if _, err := s.GetRequest(ctx, id); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetRequest(unknown) = %v, want ErrNotFound", err)
	}
	if _, err := s.GetPlan(ctx, id); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetPlan(unknown) = %v, want ErrNotFound", err)
	}
	if err := s.SavePlan(ctx, id, TwoStepPlan()); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("SavePlan(unknown) = %v, want ErrNotFound", err)
	}
}

func testPlanWriteOnce(t *testing.T, s orchestrator.TraceStore) {
	ctx := context.Background()
	req := NewRequest("qa", "q", time.Now())
	mustCreate(t, s, req)
	mustPlan(t, s, req.ID, TwoStepPlan())

	other := &api.Plan{Steps: []api.Step{{StepIndex: 0, AgentName: "x", TaskDescription: "y"}}}
	if err := s.SavePlan(ctx, req.ID, other); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("second SavePlan = %v, want ErrConflict", err)
	}

	got, err := s.GetPlan(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetPlan: %v", err)
	}
	if len(got.Steps) != 2 {
		t.Fatalf("len(Steps) = %d, want 2", len(got.Steps))
	}
	if got.Steps[1].AgentName != "qa_agent" || got.Steps[1].TaskDescription != "summarize failures" {
		t.Errorf("Steps[1] = %+v, want original plan", got.Steps[1])
	}
}

func testPlanMissing(t *testing.T, s orchestrator.TraceStore) {
	req := NewRequest("qa", "q", time.Now())
	mustCreate(t, s, req)
	if _, err := s.GetPlan(context.Background(), req.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetPlan(no plan) = %v, want ErrNotFound", err)
	}
}

func testStepResultsOrdered(t *testing.T, s orchestrator.TraceStore) {
	ctx := context.Background()
	req := NewRequest("qa", "q", time.Now())
	mustCreate(t, s, req)
	plan := &api.Plan{Steps: []api.Step{
		{StepIndex: 2, AgentName: "c", TaskDescription: "t"},
		{StepIndex: 0, AgentName: "a", TaskDescription: "t"},
		{StepIndex: 1, AgentName: "b", TaskDescription: "t"},
	}}
	mustPlan(t, s, req.ID, plan)

	for _, idx := range []int{2, 0, 1} {
		agent := string(rune('a' + idx))
		if err := s.SaveStepResult(ctx, req.ID, Result(idx, agent, "out", api.StepStatusSuccess)); err != nil {
			t.Fatalf("SaveStepResult(%d): %v", idx, err)
		}
	}

	got, err := s.GetStepResults(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetStepResults: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(got))
	}
	for i, r := range got {
		if r.StepIndex != i {
			t.Errorf("results[%d].StepIndex = %d, want %d", i, r.StepIndex, i)
		}
	}
}

func testStepResultDuplicate(t *testing.T, s orchestrator.TraceStore) {
	ctx := context.Background()
	req := NewRequest("qa", "q", time.Now())
	mustCreate(t, s, req)
	mustPlan(t, s, req.ID, TwoStepPlan())

	if err := s.SaveStepResult(ctx, req.ID, Result(0, "data_agent", "first", api.StepStatusSuccess)); err != nil {
		t.Fatalf("SaveStepResult: %v", err)
	}
	err := s.SaveStepResult(ctx, req.ID, Result(0, "data_agent", "second", api.StepStatusFailed))
	if !errors.Is(err, storage.ErrConflict) {
		t.Errorf("duplicate SaveStepResult = %v, want ErrConflict", err)
	}

	got, err := s.GetStepResults(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetStepResults: %v", err)
	}
	if len(got) != 1 || got[0].OutputText() != "first" {
		t.Errorf("results = %+v, want the first write only", got)
	}
}

func testStepResultUnknownStep(t *testing.T, s orchestrator.TraceStore) {
	ctx := context.Background()
	req := NewRequest("qa", "q", time.Now())
	mustCreate(t, s, req)

	if err := s.SaveStepResult(ctx, req.ID, Result(0, "data_agent", "x", api.StepStatusSuccess)); !errors.Is(err, storage.ErrUnknownStep) {
		t.Errorf("SaveStepResult before plan = %v, want ErrUnknownStep", err)
	}

	mustPlan(t, s, req.ID, TwoStepPlan())
	if err := s.SaveStepResult(ctx, req.ID, Result(7, "data_agent", "x", api.StepStatusSuccess)); !errors.Is(err, storage.ErrUnknownStep) {
		t.Errorf("SaveStepResult(7) = %v, want ErrUnknownStep", err)
	}
}

func testStepResultPayloads(t *testing.T, s orchestrator.TraceStore) {
	ctx := context.Background()
	req := NewRequest("qa", "q", time.Now())
	mustCreate(t, s, req)
	mustPlan(t, s, req.ID, TwoStepPlan())

	obj := Result(0, "data_agent", "", api.StepStatusSuccess)
	obj.Output = json.RawMessage(`{"rows":[{"line":"L2","failed":3}]}`)
	if err := s.SaveStepResult(ctx, req.ID, obj); err != nil {
		t.Fatalf("SaveStepResult(object): %v", err)
	}
	failed := Result(1, "qa_agent", "connection refused", api.StepStatusFailed)
	failed.LatencyMs = nil
	if err := s.SaveStepResult(ctx, req.ID, failed); err != nil {
		t.Fatalf("SaveStepResult(failed): %v", err)
	}

	got, err := s.GetStepResults(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetStepResults: %v", err)
	}
	var rows struct {
		Rows []struct {
			Line   string `json:"line"`
			Failed int    `json:"failed"`
		} `json:"rows"`
	}
	if err := json.Unmarshal(got[0].Output, &rows); err != nil {
		t.Fatalf("object output not JSON: %v (%s)", err, got[0].Output)
	}
	if len(rows.Rows) != 1 || rows.Rows[0].Failed != 3 {
		t.Errorf("object output = %s, want rows preserved", got[0].Output)
	}
	var input api.StepInput
	if err := json.Unmarshal(got[0].Input, &input); err != nil || input.Task != "task 0" {
		t.Errorf("input payload = %s, want task echo", got[0].Input)
	}
	if got[0].LatencyMs == nil || *got[0].LatencyMs != 10 {
		t.Errorf("LatencyMs = %v, want 10", got[0].LatencyMs)
	}

	if got[1].Status != api.StepStatusFailed {
		t.Errorf("Status = %q, want failed", got[1].Status)
	}
	if got[1].OutputText() != "connection refused" {
		t.Errorf("OutputText() = %q, want %q", got[1].OutputText(), "connection refused")
	}
	if got[1].LatencyMs != nil {
		t.Errorf("LatencyMs = %v, want nil", *got[1].LatencyMs)
	}
}

func testFinalizeNonTerminal(t *testing.T, s orchestrator.TraceStore) {
	ctx := context.Background()
	req := NewRequest("qa", "q", time.Now())
	mustCreate(t, s, req)

	err := s.FinalizeRequest(ctx, req.ID, api.RequestStatusRunning, "", "")
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.Param != "status" {
		t.Errorf("FinalizeRequest(running) = %v, want invalid status transition", err)
	}

	got, err := s.GetRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	if got.Status != api.RequestStatusRunning {
		t.Errorf("Status = %q, want running", got.Status)
	}
}

func testFinalizeOnce(t *testing.T, s orchestrator.TraceStore) {
	ctx := context.Background()
	req := NewRequest("qa", "q", time.Now())
	mustCreate(t, s, req)

	if err := s.FinalizeRequest(ctx, req.ID, api.RequestStatusPartial, "", "synthesis failed: timeout"); err != nil {
		t.Fatalf("FinalizeRequest: %v", err)
	}
	err := s.FinalizeRequest(ctx, req.ID, api.RequestStatusCompleted, "late answer", "")
	if !errors.Is(err, storage.ErrFinalized) {
		t.Errorf("second FinalizeRequest = %v, want ErrFinalized", err)
	}

	got, err := s.GetRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	if got.Status != api.RequestStatusPartial {
		t.Errorf("Status = %q, want partial", got.Status)
	}
	if got.FinalAnswer != nil {
		t.Errorf("FinalAnswer = %q, want nil", *got.FinalAnswer)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != "synthesis failed: timeout" {
		t.Errorf("ErrorMessage = %v, want synthesis error", got.ErrorMessage)
	}
	if got.UpdatedAt.Before(got.CreatedAt) {
		t.Errorf("UpdatedAt %v before CreatedAt %v", got.UpdatedAt, got.CreatedAt)
	}
}

func testFinalizeNotFound(t *testing.T, s orchestrator.TraceStore) {
	err := s.FinalizeRequest(context.Background(), api.NewRequestID(), api.RequestStatusCompleted, "x", "")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("FinalizeRequest(unknown) = %v, want ErrNotFound", err)
	}
}

func testInProgressTrace(t *testing.T, s orchestrator.TraceStore) {
	ctx := context.Background()
	req := NewRequest("qa", "q", time.Now())
	mustCreate(t, s, req)
	mustPlan(t, s, req.ID, TwoStepPlan())
	if err := s.SaveStepResult(ctx, req.ID, Result(0, "data_agent", "42", api.StepStatusSuccess)); err != nil {
		t.Fatalf("SaveStepResult: %v", err)
	}

	got, err := s.GetRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetRequest: %v", err)
	}
	plan, err := s.GetPlan(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetPlan: %v", err)
	}
	results, err := s.GetStepResults(ctx, req.ID)
	if err != nil {
		t.Fatalf("GetStepResults: %v", err)
	}
	trace := &api.Trace{Request: got, Plan: plan, StepResults: results}
	if !trace.InProgress() {
		t.Error("trace with 1 of 2 results and running status should be in progress")
	}
}

func testLatestRequest(t *testing.T, s orchestrator.TraceStore) {
	ctx := context.Background()
	if _, err := s.LatestRequestID(ctx, ""); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("LatestRequestID(empty store) = %v, want ErrNotFound", err)
	}

	base := time.Now().Add(-time.Hour)
	first := NewRequest("qa", "first", base)
	second := NewRequest("ops", "second", base.Add(time.Minute))
	third := NewRequest("qa", "third", base.Add(2*time.Minute))
	for _, r := range []*api.Request{first, second, third} {
		mustCreate(t, s, r)
	}

	tests := []struct {
		domain string
		want   string
	}{
		{"", third.ID},
		{"qa", third.ID},
		{"ops", second.ID},
	}
	for _, tt := range tests {
		got, err := s.LatestRequestID(ctx, tt.domain)
		if err != nil {
			t.Errorf("LatestRequestID(%q): %v", tt.domain, err)
			continue
		}
		if got != tt.want {
			t.Errorf("LatestRequestID(%q) = %q, want %q", tt.domain, got, tt.want)
		}
	}

	if _, err := s.LatestRequestID(ctx, "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("LatestRequestID(unknown domain) = %v, want ErrNotFound", err)
	}
}

func testListRequests(t *testing.T, s orchestrator.TraceStore) {
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	var ids []string
	for i := 0; i < 5; i++ {
		r := NewRequest("qa", fmt.Sprintf("q%d", i), base.Add(time.Duration(i)*time.Minute))
		mustCreate(t, s, r)
		ids = append(ids, r.ID)
	}
	other := NewRequest("ops", "other", base.Add(10*time.Minute))
	mustCreate(t, s, other)
	if err := s.FinalizeRequest(ctx, ids[4], api.RequestStatusCompleted, "done", ""); err != nil {
		t.Fatalf("FinalizeRequest: %v", err)
	}

	page, err := s.ListRequests(ctx, orchestrator.ListOptions{DomainID: "qa", Limit: 2})
	if err != nil {
		t.Fatalf("ListRequests: %v", err)
	}
	if len(page.Data) != 2 || !page.HasMore {
		t.Fatalf("page 1 = %d rows, has_more %v; want 2, true", len(page.Data), page.HasMore)
	}
	if page.Data[0].ID != ids[4] || page.Data[1].ID != ids[3] {
		t.Errorf("page 1 = [%s %s], want newest first", page.Data[0].ID, page.Data[1].ID)
	}

	page, err = s.ListRequests(ctx, orchestrator.ListOptions{DomainID: "qa", Limit: 2, After: page.LastID})
	if err != nil {
		t.Fatalf("ListRequests(after): %v", err)
	}
	if len(page.Data) != 2 || page.Data[0].ID != ids[2] {
		t.Errorf("page 2 starts at %v, want %s", page.FirstID, ids[2])
	}

	page, err = s.ListRequests(ctx, orchestrator.ListOptions{Status: api.RequestStatusCompleted})
	if err != nil {
		t.Fatalf("ListRequests(status): %v", err)
	}
	if len(page.Data) != 1 || page.Data[0].ID != ids[4] || page.HasMore {
		t.Errorf("completed filter = %d rows, want only %s", len(page.Data), ids[4])
	}
}

// testListCursorLeavesFilter pages through running requests while the
// cursor row itself finishes between pages.
func testListCursorLeavesFilter(t *testing.T, s orchestrator.TraceStore) {
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	var ids []string
	for i := 0; i < 3; i++ {
		r := NewRequest("qa", fmt.Sprintf("q%d", i), base.Add(time.Duration(i)*time.Minute))
		mustCreate(t, s, r)
		ids = append(ids, r.ID)
	}

	running := orchestrator.ListOptions{Status: api.RequestStatusRunning, Limit: 1}
	page, err := s.ListRequests(ctx, running)
	if err != nil {
		t.Fatalf("ListRequests: %v", err)
	}
	if len(page.Data) != 1 || page.Data[0].ID != ids[2] || !page.HasMore {
		t.Fatalf("page 1 = %d rows, has_more %v; want %s, true", len(page.Data), page.HasMore, ids[2])
	}

	if err := s.FinalizeRequest(ctx, ids[2], api.RequestStatusCompleted, "done", ""); err != nil {
		t.Fatalf("FinalizeRequest: %v", err)
	}

	running.After = page.LastID
	page, err = s.ListRequests(ctx, running)
	if err != nil {
		t.Fatalf("ListRequests(after): %v", err)
	}
	if len(page.Data) != 1 || page.Data[0].ID != ids[1] || !page.HasMore {
		t.Errorf("page 2 = %d rows, has_more %v; want %s, true", len(page.Data), page.HasMore, ids[1])
	}

	running.After = api.NewRequestID()
	page, err = s.ListRequests(ctx, running)
	if err != nil {
		t.Fatalf("ListRequests(unknown cursor): %v", err)
	}
	if len(page.Data) != 0 || page.HasMore {
		t.Errorf("unknown cursor = %d rows, has_more %v; want empty", len(page.Data), page.HasMore)
	}
}

func testConcurrentRequests(t *testing.T, s orchestrator.TraceStore) {
	ctx := context.Background()
	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := NewRequest("qa", fmt.Sprintf("q%d", i), time.Now())
			if err := s.CreateRequest(ctx, req); err != nil {
				errs <- err
				return
			}
			if err := s.SavePlan(ctx, req.ID, TwoStepPlan()); err != nil {
				errs <- err
				return
			}
			for idx, agent := range []string{"data_agent", "qa_agent"} {
				if err := s.SaveStepResult(ctx, req.ID, Result(idx, agent, "ok", api.StepStatusSuccess)); err != nil {
					errs <- err
					return
				}
			}
			if err := s.FinalizeRequest(ctx, req.ID, api.RequestStatusCompleted, "ok", ""); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent request: %v", err)
	}
}

func testHealthCheck(t *testing.T, s orchestrator.TraceStore) {
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() = %v, want nil", err)
	}
}
