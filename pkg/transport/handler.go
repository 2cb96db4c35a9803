package transport

import (
	"context"

	"github.com/rhuss/relay/pkg/api"
	"github.com/rhuss/relay/pkg/orchestrator"
)

// QueryHandler handles POST /query. Validation failures are returned as
// *api.APIError. Once a request exists, its outcome is carried in the
// response status rather than the error.
type QueryHandler interface {
	Submit(ctx context.Context, req *api.QueryRequest) (*api.QueryResponse, error)
}

// QueryHandlerFunc is an adapter that allows using an ordinary function
// as a QueryHandler.
type QueryHandlerFunc func(ctx context.Context, req *api.QueryRequest) (*api.QueryResponse, error)

// Submit calls f(ctx, req).
func (f QueryHandlerFunc) Submit(ctx context.Context, req *api.QueryRequest) (*api.QueryResponse, error) {
	return f(ctx, req)
}

// TraceReader serves the read side of the trace store.
type TraceReader interface {
	// GetTrace returns the trace of one request. Returns an error wrapping
	// storage.ErrNotFound if the request does not exist.
	GetTrace(ctx context.Context, id string) (*api.Trace, error)

	// LastTrace returns the trace of the most recently created request,
	// optionally restricted to a domain.
	LastTrace(ctx context.Context, domainID string) (*api.Trace, error)

	// ListRequests returns a page of requests, newest first.
	ListRequests(ctx context.Context, opts orchestrator.ListOptions) (*orchestrator.RequestList, error)

	// HealthCheck verifies the backing store is reachable.
	HealthCheck(ctx context.Context) error
}
