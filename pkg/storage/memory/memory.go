// Package memory provides an in-memory implementation of orchestrator.TraceStore
// for tests and single-process deployments. Traces are lost when the process
// restarts. An optional cap evicts the oldest finalized requests.
package memory

import (
	"container/list"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rhuss/relay/pkg/api"
	"github.com/rhuss/relay/pkg/orchestrator"
	"github.com/rhuss/relay/pkg/storage"
)

// entry holds one request and everything recorded for it.
type entry struct {
	req     api.Request
	plan    *api.Plan
	results map[int]api.StepResult
	seq     uint64        // creation order, breaks created_at ties
	elem    *list.Element // position in creation order list
}

// Store is an in-memory TraceStore.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   *list.List // front = newest, back = oldest
	seq     uint64
	maxSize int // 0 = unlimited
}

// Ensure Store implements orchestrator.TraceStore at compile time.
var _ orchestrator.TraceStore = (*Store)(nil)

// New creates a new in-memory store. If maxSize is 0 the store grows without
// limit. Otherwise the oldest finalized request is evicted once the cap is
// reached; running requests are never evicted.
func New(maxSize int) *Store {
	return &Store{
		entries: make(map[string]*entry),
		order:   list.New(),
		maxSize: maxSize,
	}
}

// CreateRequest records a new request.
func (s *Store) CreateRequest(_ context.Context, req *api.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[req.ID]; exists {
		return storage.ErrConflict
	}
	if s.maxSize > 0 && len(s.entries) >= s.maxSize {
		s.evictOldest()
	}

	s.seq++
	e := &entry{
		req:     *req,
		results: make(map[int]api.StepResult),
		seq:     s.seq,
	}
	e.elem = s.order.PushFront(req.ID)
	s.entries[req.ID] = e
	return nil
}

// SavePlan stores the plan of a request. Plans are immutable once saved.
func (s *Store) SavePlan(_ context.Context, requestID string, plan *api.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[requestID]
	if !ok {
		return storage.ErrNotFound
	}
	if e.plan != nil {
		return storage.ErrConflict
	}
	cp := api.Plan{Steps: slices.Clone(plan.Steps)}
	e.plan = &cp
	return nil
}

// SaveStepResult stores the result of one step of the request's plan.
func (s *Store) SaveStepResult(_ context.Context, requestID string, result *api.StepResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[requestID]
	if !ok {
		return storage.ErrNotFound
	}
	if e.plan == nil {
		return storage.ErrUnknownStep
	}
	if _, ok := e.plan.Step(result.StepIndex); !ok {
		return storage.ErrUnknownStep
	}
	if _, exists := e.results[result.StepIndex]; exists {
		return storage.ErrConflict
	}
	e.results[result.StepIndex] = cloneResult(*result)
	return nil
}

// FinalizeRequest moves a running request to a terminal status.
func (s *Store) FinalizeRequest(_ context.Context, requestID string, status api.RequestStatus, finalAnswer, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := api.ValidateRequestTransition(api.RequestStatusRunning, status); err != nil {
		return fmt.Errorf("finalizing request: %w", err)
	}
	e, ok := s.entries[requestID]
	if !ok {
		return storage.ErrNotFound
	}
	if !e.req.Status.CanTransitionTo(status) {
		return storage.ErrFinalized
	}
	e.req.Status = status
	e.req.FinalAnswer = api.StringPtr(finalAnswer)
	e.req.ErrorMessage = api.StringPtr(errorMessage)
	e.req.UpdatedAt = time.Now().UTC()
	return nil
}

// GetRequest returns a copy of the request.
func (s *Store) GetRequest(_ context.Context, id string) (*api.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	req := e.req
	return &req, nil
}

// GetPlan returns the saved plan, or ErrNotFound when none was saved.
func (s *Store) GetPlan(_ context.Context, requestID string) (*api.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[requestID]
	if !ok || e.plan == nil {
		return nil, storage.ErrNotFound
	}
	return &api.Plan{Steps: slices.Clone(e.plan.Steps)}, nil
}

// GetStepResults returns the recorded results ordered by step index.
func (s *Store) GetStepResults(_ context.Context, requestID string) ([]api.StepResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[requestID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := make([]api.StepResult, 0, len(e.results))
	for _, r := range e.results {
		out = append(out, cloneResult(r))
	}
	slices.SortFunc(out, func(a, b api.StepResult) int { return a.StepIndex - b.StepIndex })
	return out, nil
}

// LatestRequestID returns the newest request, optionally within one domain.
func (s *Store) LatestRequestID(_ context.Context, domainID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *entry
	for _, e := range s.entries {
		if domainID != "" && e.req.DomainID != domainID {
			continue
		}
		if best == nil || newer(e, best) {
			best = e
		}
	}
	if best == nil {
		return "", storage.ErrNotFound
	}
	return best.req.ID, nil
}

// ListRequests returns requests newest first with cursor pagination.
func (s *Store) ListRequests(_ context.Context, opts orchestrator.ListOptions) (*orchestrator.RequestList, error) {
	opts = opts.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	// The cursor row is looked up unfiltered: it may no longer match the
	// filter after its status changed between pages.
	var cursor *entry
	if opts.After != "" {
		var ok bool
		if cursor, ok = s.entries[opts.After]; !ok {
			return orchestrator.NewRequestList(nil, opts.Limit), nil
		}
	}

	matches := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		if opts.DomainID != "" && e.req.DomainID != opts.DomainID {
			continue
		}
		if opts.Status != "" && e.req.Status != opts.Status {
			continue
		}
		if cursor != nil && !newer(cursor, e) {
			continue
		}
		matches = append(matches, e)
	}
	slices.SortFunc(matches, func(a, b *entry) int {
		if newer(a, b) {
			return -1
		}
		return 1
	})

	n := min(len(matches), opts.Limit+1)
	rows := make([]*api.Request, 0, n)
	for _, e := range matches[:n] {
		req := e.req
		rows = append(rows, &req)
	}
	return orchestrator.NewRequestList(rows, opts.Limit), nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// Len returns the number of stored requests.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// evictOldest removes the oldest finalized request.
// Must be called with s.mu held.
func (s *Store) evictOldest() {
	for el := s.order.Back(); el != nil; el = el.Prev() {
		id := el.Value.(string)
		if s.entries[id].req.Status.IsTerminal() {
			s.order.Remove(el)
			delete(s.entries, id)
			return
		}
	}
}

func newer(a, b *entry) bool {
	if !a.req.CreatedAt.Equal(b.req.CreatedAt) {
		return a.req.CreatedAt.After(b.req.CreatedAt)
	}
	return a.seq > b.seq
}

func cloneResult(r api.StepResult) api.StepResult {
	r.Input = slices.Clone(r.Input)
	r.Output = slices.Clone(r.Output)
	if r.LatencyMs != nil {
		ms := *r.LatencyMs
		r.LatencyMs = &ms
	}
	return r
}
