package transport

import (
	"context"

	"github.com/google/uuid"

	"github.com/rhuss/relay/pkg/api"
)

// CorrelationID returns middleware that makes sure every query carries a
// correlation ID. An ID already in the context (set by the HTTP adapter from
// the X-Request-ID header) is kept; otherwise a new UUID is generated.
func CorrelationID() Middleware {
	return func(next QueryHandler) QueryHandler {
		return QueryHandlerFunc(func(ctx context.Context, req *api.QueryRequest) (*api.QueryResponse, error) {
			if CorrelationIDFromContext(ctx) == "" {
				ctx = ContextWithCorrelationID(ctx, uuid.NewString())
			}
			return next.Submit(ctx, req)
		})
	}
}
