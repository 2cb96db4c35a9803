package orchestrator

import (
	"context"

	"github.com/rhuss/relay/pkg/api"
)

// TraceStore persists requests, plans and step results. Each method is a
// short unit of work on its own; implementations never hold a connection
// across calls.
//
// Plans and step results are write-once: a second SavePlan, or a second
// SaveStepResult for the same step index, returns storage.ErrConflict.
// SaveStepResult for an index that is not in the saved plan returns
// storage.ErrUnknownStep. FinalizeRequest only succeeds for a running
// request and returns storage.ErrFinalized otherwise.
type TraceStore interface {
	CreateRequest(ctx context.Context, req *api.Request) error
	SavePlan(ctx context.Context, requestID string, plan *api.Plan) error
	SaveStepResult(ctx context.Context, requestID string, result *api.StepResult) error
	FinalizeRequest(ctx context.Context, requestID string, status api.RequestStatus, finalAnswer, errorMessage string) error

	GetRequest(ctx context.Context, id string) (*api.Request, error)
	GetPlan(ctx context.Context, requestID string) (*api.Plan, error)
	GetStepResults(ctx context.Context, requestID string) ([]api.StepResult, error)

	// LatestRequestID returns the most recently created request, optionally
	// restricted to one domain. storage.ErrNotFound when there is none.
	LatestRequestID(ctx context.Context, domainID string) (string, error)

	// ListRequests returns requests newest first.
	ListRequests(ctx context.Context, opts ListOptions) (*RequestList, error)

	HealthCheck(ctx context.Context) error
	Close() error
}

// ListOptions filters and pages ListRequests.
type ListOptions struct {
	DomainID string
	Status   api.RequestStatus
	Limit    int    // default 20, max 100
	After    string // request ID cursor; results start after it
}

// Normalize clamps Limit to its bounds.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 20
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
	return o
}

// RequestList is one page of requests.
type RequestList struct {
	Data    []*api.Request `json:"data"`
	HasMore bool           `json:"has_more"`
	FirstID string         `json:"first_id,omitempty"`
	LastID  string         `json:"last_id,omitempty"`
}

// NewRequestList builds a page from at most limit+1 newest-first rows.
func NewRequestList(rows []*api.Request, limit int) *RequestList {
	list := &RequestList{Data: rows}
	if len(rows) > limit {
		list.Data = rows[:limit]
		list.HasMore = true
	}
	if list.Data == nil {
		list.Data = []*api.Request{}
	}
	if len(list.Data) > 0 {
		list.FirstID = list.Data[0].ID
		list.LastID = list.Data[len(list.Data)-1].ID
	}
	return list
}
