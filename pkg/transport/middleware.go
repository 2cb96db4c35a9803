package transport

import "context"

// Middleware wraps a QueryHandler to add cross-cutting behavior.
// Middleware is applied in order: the first middleware in the chain is
// the outermost wrapper (executes first on the way in, last on the way out).
type Middleware func(QueryHandler) QueryHandler

// Chain composes multiple middleware into a single middleware.
// Middleware are applied in order: Chain(a, b, c) produces a(b(c(handler))).
func Chain(middlewares ...Middleware) Middleware {
	return func(next QueryHandler) QueryHandler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

type correlationIDKeyType struct{}

var correlationIDKey = correlationIDKeyType{}

// CorrelationIDFromContext extracts the correlation ID from the context.
// Returns an empty string if none is set.
//
// The correlation ID travels in the X-Request-ID header. It identifies one
// HTTP exchange and is unrelated to the request_id of the stored trace.
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithCorrelationID returns a new context with the given correlation ID.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}
