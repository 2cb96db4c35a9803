// Package transport defines the handler interfaces and middleware chain for
// the relay HTTP transport layer.
//
// The transport layer bridges external clients and the orchestration core.
// It decodes incoming requests into the types defined in pkg/api, dispatches
// them to the orchestrator and encodes the results as JSON.
//
// # Handler Interfaces
//
// Two interfaces define the contract between the transport layer and the
// orchestrator:
//
//   - QueryHandler accepts a query and runs it to a terminal status (or,
//     for async submissions, until it is stored).
//   - TraceReader reads traces back: a single request, the latest request
//     and paged listings.
//
// # Middleware
//
// The middleware chain wraps QueryHandler with cross-cutting concerns.
// Built-in middleware provides panic recovery, correlation ID assignment
// (X-Request-ID) and structured logging via log/slog.
package transport
