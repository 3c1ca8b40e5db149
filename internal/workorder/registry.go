package workorder

import (
	"context"
	"sync"
)

// Registry keeps one session per work order so concurrent requests for the
// same work order share state.
type Registry struct {
	store Store
	opts  Options

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry(store Store, opts Options) *Registry {
	return &Registry{store: store, opts: opts, sessions: make(map[string]*Session)}
}

// Get returns the session of a work order, loading it on first use.
func (r *Registry) Get(ctx context.Context, id string) (*Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if ok {
		return s, nil
	}

	loaded, err := Open(ctx, r.store, id, r.opts)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another request may have loaded it meanwhile; keep the first.
	if s, ok := r.sessions[id]; ok {
		return s, nil
	}
	r.sessions[id] = loaded
	return loaded, nil
}

// Evict drops a session so the next Get reloads it. Completed work orders
// are evicted so the registry only holds work in progress.
func (r *Registry) Evict(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}
