// Package storage holds what the trace store adapters share: the sentinel
// errors callers match with errors.Is.
//
// Adapters (memory, postgres, sqlite) implement orchestrator.TraceStore,
// which is defined next to its consumer in pkg/orchestrator.
package storage
