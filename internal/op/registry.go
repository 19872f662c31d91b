// Package op tracks in-flight operations so they can be cancelled by an
// externally visible identifier (a job record id, a chat message index).
package op

import (
	"context"
	"fmt"
	"sync"
)

// Registry maps operation ids to cancel handles. Entries are added when an
// operation starts and removed on any terminal transition, including
// cancellation. This is the only shared mutable state between independent
// operations, and it is keyed, never globally aliased.
type Registry struct {
	mu  sync.Mutex
	ops map[string]context.CancelFunc
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]context.CancelFunc)}
}

// Begin derives a cancellable context for the operation and registers its
// cancel handle under id. It fails if id is already active.
func (r *Registry) Begin(ctx context.Context, id string) (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ops[id]; exists {
		return nil, fmt.Errorf("operation %q already active", id)
	}
	opCtx, cancel := context.WithCancel(ctx)
	r.ops[id] = cancel
	return opCtx, nil
}

// Cancel fires the operation's cancel signal and removes it from the
// registry. It reports whether the operation was active.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	cancel, ok := r.ops[id]
	delete(r.ops, id)
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Finish removes the operation and releases its context. Called by the
// operation itself on any terminal transition; safe to call after Cancel.
func (r *Registry) Finish(id string) {
	r.mu.Lock()
	cancel, ok := r.ops[id]
	delete(r.ops, id)
	r.mu.Unlock()
	if ok {
		cancel()
	}
}

// Active reports whether the operation is currently registered.
func (r *Registry) Active(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.ops[id]
	return ok
}
