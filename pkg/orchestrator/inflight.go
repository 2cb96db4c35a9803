package orchestrator

import (
	"context"
	"sort"
	"sync"
)

// InFlight tracks requests whose plan is still executing. The server uses
// it to wait for detached executions before shutting down.
//
// All methods are safe for concurrent access.
type InFlight struct {
	mu      sync.Mutex
	entries map[string]struct{}
	wg      sync.WaitGroup
}

// NewInFlight creates an empty tracker.
func NewInFlight() *InFlight {
	return &InFlight{entries: make(map[string]struct{})}
}

// Add registers a running request.
func (r *InFlight) Add(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; ok {
		return
	}
	r.entries[id] = struct{}{}
	r.wg.Add(1)
}

// Done removes a request once it has been finalized. Unknown IDs are ignored.
func (r *InFlight) Done(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return
	}
	delete(r.entries, id)
	r.wg.Done()
}

// Len returns the number of running requests.
func (r *InFlight) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// IDs returns the running request IDs in sorted order.
func (r *InFlight) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Wait blocks until no request is running or ctx is done.
func (r *InFlight) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
