package transport

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rhuss/relay/pkg/api"
)

// Recovery returns middleware that catches panics in the handler and
// converts them to server error responses. The server continues to
// accept new requests after a panic is recovered.
func Recovery() Middleware {
	return func(next QueryHandler) QueryHandler {
		return QueryHandlerFunc(func(ctx context.Context, req *api.QueryRequest) (resp *api.QueryResponse, retErr error) {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("panic in query handler", "panic", r, "correlation_id", CorrelationIDFromContext(ctx))
					resp = nil
					retErr = api.NewServerError(fmt.Sprintf("internal server error: %v", r))
				}
			}()
			return next.Submit(ctx, req)
		})
	}
}
