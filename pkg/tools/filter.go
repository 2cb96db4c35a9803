package tools

import "log/slog"

// Select returns a registry holding only the named capabilities, in the
// given order. Names that are not registered are skipped with a warning so
// an agent whose data source is not configured still starts. An empty
// names list selects nothing.
//
// The returned registry shares backends with r; closing it is a no-op.
func (r *Registry) Select(names []string) *Registry {
	out := NewRegistry()
	for _, name := range names {
		c, ok := r.Get(name)
		if !ok {
			slog.Warn("capability not available, skipping", "capability", name)
			continue
		}
		if err := out.Register(c); err != nil {
			slog.Warn("capability listed twice, skipping", "capability", name)
		}
	}
	return out
}
