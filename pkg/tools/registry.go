package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/rhuss/relay/pkg/debug"
	"github.com/rhuss/relay/pkg/observability"
	"github.com/rhuss/relay/pkg/provider"
)

// Registry holds the capabilities available to one agent.
// All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	byName  map[string]Capability
	closers []io.Closer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Capability)}
}

// Register adds a capability. A second capability with the same name is
// rejected with ErrDuplicate.
func (r *Registry) Register(c Capability) error {
	if err := c.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[c.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, c.Name)
	}
	r.order = append(r.order, c.Name)
	r.byName[c.Name] = c

	debug.Log("tools", "registered capability", "name", c.Name, "kind", c.Kind.String())
	return nil
}

// OnClose registers a resource released by Close, typically a connection
// pool or MCP session shared by several capabilities.
func (r *Registry) OnClose(c io.Closer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closers = append(r.closers, c)
}

// Get returns the named capability.
func (r *Registry) Get(name string) (Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[name]
	return c, ok
}

// List returns the capabilities in registration order.
func (r *Registry) List() []Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Capability, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Len returns the number of registered capabilities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Tools returns the capabilities as tool definitions for a model request.
func (r *Registry) Tools() []provider.Tool {
	caps := r.List()
	out := make([]provider.Tool, 0, len(caps))
	for _, c := range caps {
		out = append(out, provider.Tool{
			Name:        c.Name,
			Description: c.Description,
			Parameters:  c.Schema(),
		})
	}
	return out
}

// Invoke runs a call against the named capability. Failures, including
// unknown names, bad arguments and backend panics, are reported in the
// Result rather than as an error.
func (r *Registry) Invoke(ctx context.Context, call Call) (result Result) {
	c, ok := r.Get(call.Name)
	if !ok {
		observability.CapabilityInvocationsTotal.WithLabelValues("unknown", "error").Inc()
		return Result{CallID: call.ID, Output: fmt.Sprintf("unknown capability %q", call.Name), IsError: true}
	}

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("capability panicked", "capability", c.Name, "panic", rec)
			result = Result{CallID: call.ID, Output: fmt.Sprintf("internal error: capability %q panicked", c.Name), IsError: true}
			observability.CapabilityInvocationsTotal.WithLabelValues(c.Name, "panic").Inc()
		}
	}()

	debug.Log("tools", "invoke", "capability", c.Name, "kind", c.Kind.String(), "args", debug.Truncate(call.Arguments, 200))

	output, isError, err := dispatch(ctx, c, call.Arguments)

	status := "success"
	switch {
	case err != nil:
		status = "error"
		output = fmt.Sprintf("%s failed: %v", c.Name, err)
		isError = true
	case isError:
		status = "tool_error"
	}
	observability.CapabilityInvocationsTotal.WithLabelValues(c.Name, status).Inc()

	debug.Log("tools", "result", "capability", c.Name, "status", status, "output", debug.Truncate(output, 200))
	return Result{CallID: call.ID, Output: output, IsError: isError}
}

// dispatch decodes the arguments for the capability's kind and calls its
// backend.
func dispatch(ctx context.Context, c Capability, arguments string) (string, bool, error) {
	args, err := decodeArgs(arguments)
	if err != nil {
		return "", false, err
	}

	switch c.Kind {
	case KindSQL:
		query, err := stringArg(args, "query")
		if err != nil {
			return "", false, err
		}
		out, err := c.SQL.Query(ctx, query)
		return out, false, err

	case KindVector:
		query, err := stringArg(args, "query")
		if err != nil {
			return "", false, err
		}
		out, err := c.Vector.Search(ctx, query, intArg(args, "k"))
		return out, false, err

	case KindMCP:
		name := c.RemoteName
		if name == "" {
			name = c.Name
		}
		return c.MCP.CallTool(ctx, name, args)

	default:
		return "", false, fmt.Errorf("%w: unknown kind %s", ErrInvalidCapability, c.Kind)
	}
}

func decodeArgs(arguments string) (map[string]any, error) {
	args := map[string]any{}
	if strings.TrimSpace(arguments) == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return nil, fmt.Errorf("invalid arguments JSON: %w", err)
	}
	return args, nil
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("argument %q is required", key)
	}
	return v, nil
}

// intArg returns a numeric argument, or 0 when absent or not a number.
func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case string:
		var n int
		fmt.Sscanf(v, "%d", &n)
		return n
	}
	return 0
}

// Close releases every resource registered with OnClose, returning the last
// error encountered.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			slog.Warn("failed to close capability backend", "error", err)
			lastErr = err
		}
	}
	r.closers = nil
	return lastErr
}
