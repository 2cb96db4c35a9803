// Package api defines the core data model of the relay orchestration service.
//
// A submitted query becomes a [Request]. The planner turns it into a [Plan]
// of ordered [Step] values, each assigned to a named worker agent. Executing
// a Step produces exactly one [StepResult]. Together these form a [Trace],
// which is what the trace store persists and the HTTP surface returns.
//
// The package also holds the wire types shared by the orchestrator and the
// agents ([QueryRequest], [InvokeRequest], [InvokeResponse]), the request
// status state machine, structured API errors, and request ID generation.
//
// Apart from github.com/google/uuid for identifiers, the package performs no
// I/O and has no third-party dependencies.
package api
