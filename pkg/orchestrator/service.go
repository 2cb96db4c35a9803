// Package orchestrator drives a query through its lifecycle: it creates the
// request, asks the planner for a plan, runs the plan through the executor,
// has the reporter synthesize the answer, and records every stage in a
// TraceStore.
//
// The request status moves from running to exactly one terminal status:
// failed when no valid plan could be produced, partial when the steps ran
// but synthesis failed, completed otherwise. Step failures never change the
// terminal status on their own.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rhuss/relay/pkg/api"
	"github.com/rhuss/relay/pkg/debug"
	"github.com/rhuss/relay/pkg/executor"
	"github.com/rhuss/relay/pkg/observability"
	"github.com/rhuss/relay/pkg/planner"
	"github.com/rhuss/relay/pkg/reporter"
	"github.com/rhuss/relay/pkg/storage"
)

// now is replaced in tests.
var now = func() time.Time { return time.Now().UTC() }

// Service is the orchestration core behind POST /query and the trace
// endpoints.
type Service struct {
	store      TraceStore
	planner    planner.Planner
	executor   *executor.Executor
	reporter   reporter.Reporter
	domainID   string
	validation api.ValidationConfig
	inflight   *InFlight
}

// Option configures a Service.
type Option func(*Service)

// WithDomainID sets the domain used when a query names none.
func WithDomainID(id string) Option {
	return func(s *Service) { s.domainID = id }
}

// WithValidation overrides the query and plan limits.
func WithValidation(cfg api.ValidationConfig) Option {
	return func(s *Service) { s.validation = cfg }
}

// NewService wires the orchestration core.
func NewService(store TraceStore, p planner.Planner, e *executor.Executor, r reporter.Reporter, opts ...Option) *Service {
	s := &Service{
		store:      store,
		planner:    p,
		executor:   e,
		reporter:   r,
		domainID:   "default",
		validation: api.DefaultValidationConfig(),
		inflight:   NewInFlight(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit creates a request for the query and executes it. Invalid queries
// return an *api.APIError before anything is stored. Once the request
// exists, every later failure is reported through the response status, and
// the error return is reserved for failing to create the request.
//
// Execution is detached from ctx cancellation: a client that disconnects
// does not stop the plan. With req.Async the plan runs in the background and
// Submit returns as soon as the request is stored.
func (s *Service) Submit(ctx context.Context, req *api.QueryRequest) (*api.QueryResponse, error) {
	if apiErr := api.ValidateQuery(req, s.validation); apiErr != nil {
		return nil, apiErr
	}

	domainID := req.DomainID
	if domainID == "" {
		domainID = s.domainID
	}

	created := now()
	r := &api.Request{
		ID:        api.NewRequestID(),
		DomainID:  domainID,
		Query:     req.Query,
		SessionID: req.SessionID,
		Status:    api.RequestStatusRunning,
		CreatedAt: created,
		UpdatedAt: created,
	}
	if err := s.store.CreateRequest(ctx, r); err != nil {
		observability.StoreErrorsTotal.WithLabelValues("create_request").Inc()
		return nil, fmt.Errorf("creating request: %w", err)
	}

	slog.Info("query accepted",
		"request_id", r.ID,
		"domain_id", r.DomainID,
		"async", req.Async,
		"query", debug.Truncate(r.Query, 200))

	s.inflight.Add(r.ID)
	runCtx := context.WithoutCancel(ctx)

	if req.Async {
		go s.execute(runCtx, r)
		return &api.QueryResponse{RequestID: r.ID, Status: api.RequestStatusRunning}, nil
	}
	return s.execute(runCtx, r), nil
}

// execute runs a created request to its terminal status. A panic anywhere
// in the run finalizes the request as failed.
func (s *Service) execute(ctx context.Context, r *api.Request) (resp *api.QueryResponse) {
	defer s.inflight.Done(r.ID)
	defer func() {
		if p := recover(); p != nil {
			slog.Error("query execution panicked", "request_id", r.ID, "panic", p)
			resp = s.finalize(ctx, r, api.RequestStatusFailed, "", fmt.Sprintf("internal error: %v", p))
		}
	}()

	plan, err := s.plan(ctx, r)
	if err != nil {
		observability.PlannerFailuresTotal.Inc()
		slog.Warn("planning failed", "request_id", r.ID, "error", err)
		return s.finalize(ctx, r, api.RequestStatusFailed, "", err.Error())
	}

	if err := s.store.SavePlan(ctx, r.ID, plan); err != nil {
		s.storeError("save_plan", r.ID, err)
		return s.finalize(ctx, r, api.RequestStatusFailed, "", fmt.Sprintf("saving plan: %v", err))
	}

	results := s.executor.RunPlan(ctx, executor.Run{
		RequestID: r.ID,
		Query:     r.Query,
		Plan:      plan,
		OnResult: func(sr api.StepResult) {
			if err := s.store.SaveStepResult(ctx, r.ID, &sr); err != nil {
				s.storeError("save_step_result", r.ID, err)
			}
		},
	})

	answer, err := s.synthesize(ctx, r.Query, results)
	if err == nil && strings.TrimSpace(answer) == "" {
		err = fmt.Errorf("%w: empty answer", api.ErrSynthesisFailed)
	}
	if err != nil {
		observability.SynthesisFailuresTotal.Inc()
		slog.Warn("synthesis failed", "request_id", r.ID, "error", err)
		return s.finalize(ctx, r, api.RequestStatusPartial, "", err.Error())
	}

	return s.finalize(ctx, r, api.RequestStatusCompleted, answer, "")
}

// plan asks the planner for a plan and validates it against the roster.
func (s *Service) plan(ctx context.Context, r *api.Request) (*api.Plan, error) {
	roster := s.executor.Roster().Names()

	plan, err := s.generate(ctx, r.Query, roster)
	if err != nil {
		return nil, err
	}
	if err := plan.Validate(roster); err != nil {
		return nil, err
	}
	if limit := s.validation.MaxPlanSteps; limit > 0 && len(plan.Steps) > limit {
		return nil, fmt.Errorf("%w: plan has %d steps, maximum is %d", api.ErrPlanInvalid, len(plan.Steps), limit)
	}

	for _, step := range plan.Steps {
		debug.Log("planner", "plan step",
			"request_id", r.ID,
			"step_index", step.StepIndex,
			"agent", step.AgentName,
			"task", debug.Truncate(step.TaskDescription, 80))
	}
	return plan, nil
}

// generate calls the planner. A panic becomes an error so the request is
// still finalized.
func (s *Service) generate(ctx context.Context, query string, roster []string) (plan *api.Plan, err error) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("planner panicked", "panic", p)
			plan, err = nil, fmt.Errorf("planner panicked: %v", p)
		}
	}()
	return s.planner.Generate(ctx, query, roster)
}

// synthesize calls the reporter. A panic becomes an ErrSynthesisFailed error.
func (s *Service) synthesize(ctx context.Context, query string, results []api.StepResult) (answer string, err error) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("reporter panicked", "panic", p)
			answer, err = "", fmt.Errorf("%w: reporter panicked: %v", api.ErrSynthesisFailed, p)
		}
	}()
	return s.reporter.Synthesize(ctx, query, results)
}

func (s *Service) finalize(ctx context.Context, r *api.Request, status api.RequestStatus, answer, errMsg string) *api.QueryResponse {
	if err := s.store.FinalizeRequest(ctx, r.ID, status, answer, errMsg); err != nil {
		s.storeError("finalize_request", r.ID, err)
	}

	observability.RecordQuery(string(status), now().Sub(r.CreatedAt))
	slog.Info("query finished",
		"request_id", r.ID,
		"status", status,
		"answer", debug.Truncate(answer, 300))

	return &api.QueryResponse{
		RequestID:   r.ID,
		Status:      status,
		FinalAnswer: api.StringPtr(answer),
		Error:       api.StringPtr(errMsg),
	}
}

func (s *Service) storeError(op, requestID string, err error) {
	observability.StoreErrorsTotal.WithLabelValues(op).Inc()
	slog.Error("trace store write failed", "operation", op, "request_id", requestID, "error", err)
}

// GetTrace loads the full trace of a request. A request without a plan
// yields a trace with a nil Plan.
func (s *Service) GetTrace(ctx context.Context, id string) (*api.Trace, error) {
	req, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading request %s: %w", id, err)
	}

	trace := &api.Trace{Request: req}

	plan, err := s.store.GetPlan(ctx, id)
	switch {
	case err == nil:
		trace.Plan = plan
	case errors.Is(err, storage.ErrNotFound):
	default:
		return nil, fmt.Errorf("loading plan %s: %w", id, err)
	}

	results, err := s.store.GetStepResults(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading step results %s: %w", id, err)
	}
	trace.StepResults = results
	return trace, nil
}

// LastTrace loads the trace of the most recently created request,
// optionally restricted to one domain.
func (s *Service) LastTrace(ctx context.Context, domainID string) (*api.Trace, error) {
	id, err := s.store.LatestRequestID(ctx, domainID)
	if err != nil {
		return nil, fmt.Errorf("finding latest request: %w", err)
	}
	return s.GetTrace(ctx, id)
}

// ListRequests pages through requests, newest first.
func (s *Service) ListRequests(ctx context.Context, opts ListOptions) (*RequestList, error) {
	return s.store.ListRequests(ctx, opts.Normalize())
}

// HealthCheck reports whether the trace store is reachable.
func (s *Service) HealthCheck(ctx context.Context) error {
	return s.store.HealthCheck(ctx)
}

// InFlight returns the IDs of requests still executing on this instance.
func (s *Service) InFlight() []string {
	return s.inflight.IDs()
}

// Wait blocks until every detached execution has finished or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	return s.inflight.Wait(ctx)
}
