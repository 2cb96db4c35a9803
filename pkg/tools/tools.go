package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrDuplicate is returned when a capability name is registered twice.
	ErrDuplicate = errors.New("duplicate capability")

	// ErrInvalidCapability is returned for a capability whose kind and
	// backend do not match.
	ErrInvalidCapability = errors.New("invalid capability")
)

// Kind tags the backend that serves a Capability.
type Kind int

const (
	// KindSQL runs read-only statements against a relational database.
	KindSQL Kind = iota + 1
	// KindVector searches a document collection by semantic similarity.
	KindVector
	// KindMCP calls a tool hosted on an MCP server.
	KindMCP
)

// String returns the kind's name.
func (k Kind) String() string {
	switch k {
	case KindSQL:
		return "sql"
	case KindVector:
		return "vector"
	case KindMCP:
		return "mcp"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// SQLBackend runs a read-only statement and renders the rows as text.
type SQLBackend interface {
	Query(ctx context.Context, statement string) (string, error)
}

// VectorBackend returns the k passages most similar to query, rendered as text.
type VectorBackend interface {
	Search(ctx context.Context, query string, k int) (string, error)
}

// MCPBackend calls a named tool on an MCP server. isError reports a
// tool-level failure that the server returned as content.
type MCPBackend interface {
	CallTool(ctx context.Context, name string, args map[string]any) (output string, isError bool, err error)
}

// Capability is one tool the model can call. Exactly the backend field
// matching Kind must be set.
type Capability struct {
	Name        string
	Description string

	// Parameters is the JSON schema of the call arguments. Empty uses the
	// kind's default schema.
	Parameters json.RawMessage

	Kind   Kind
	SQL    SQLBackend
	Vector VectorBackend
	MCP    MCPBackend

	// RemoteName is the tool name on the MCP server when it differs from Name.
	RemoteName string
}

// Schema returns the capability's parameter schema.
func (c Capability) Schema() json.RawMessage {
	if len(c.Parameters) > 0 {
		return c.Parameters
	}
	switch c.Kind {
	case KindSQL:
		return json.RawMessage(`{"type":"object","properties":{"query":{"type":"string","description":"A single SELECT statement"}},"required":["query"]}`)
	case KindVector:
		return json.RawMessage(`{"type":"object","properties":{"query":{"type":"string","description":"What to search for"},"k":{"type":"integer","description":"Number of passages to return"}},"required":["query"]}`)
	default:
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
}

func (c Capability) validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidCapability)
	}
	var ok bool
	switch c.Kind {
	case KindSQL:
		ok = c.SQL != nil
	case KindVector:
		ok = c.Vector != nil
	case KindMCP:
		ok = c.MCP != nil
	default:
		return fmt.Errorf("%w: %s has unknown kind %s", ErrInvalidCapability, c.Name, c.Kind)
	}
	if !ok {
		return fmt.Errorf("%w: %s has kind %s but no %s backend", ErrInvalidCapability, c.Name, c.Kind, c.Kind)
	}
	return nil
}

// Call is a model's request to invoke a capability.
type Call struct {
	// ID is the call identifier assigned by the model.
	ID string

	// Name is the capability name.
	Name string

	// Arguments is the JSON-encoded arguments object.
	Arguments string
}

// Result is the output of one capability call.
type Result struct {
	// CallID matches the originating Call.ID.
	CallID string

	// Output is the text fed back to the model.
	Output string

	// IsError indicates that Output describes a failure.
	IsError bool
}
