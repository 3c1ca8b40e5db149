// Package optimistic implements the snapshot, apply, confirm-or-revert update
// used by every mutating engine operation.
//
// A Value holds local state. Update applies a mutation to a copy, publishes it
// immediately so readers see the optimistic result, then persists it. When
// persistence fails the exact pre-mutation snapshot is restored. Updates on the
// same Value are serialized: a second mutation is not started until the prior
// one has confirmed or rolled back, so a revert never clobbers a newer change.
package optimistic

import (
	"context"
	"sync"
)

// Value is an optimistically updated piece of state.
type Value[T any] struct {
	opMu  sync.Mutex // held from apply until confirm or revert
	mu    sync.RWMutex
	cur   T
	clone func(T) T
}

// New returns a Value holding initial. clone must return a deep copy.
func New[T any](initial T, clone func(T) T) *Value[T] {
	if clone == nil {
		clone = func(v T) T { return v }
	}
	return &Value[T]{cur: clone(initial), clone: clone}
}

// Get returns a copy of the current state.
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.clone(v.cur)
}

// Update runs mutate against a copy of the current state. A mutate error
// leaves the state untouched and is returned as is. Otherwise the mutated copy
// becomes visible and persist is called with it; a persist error restores the
// snapshot taken before mutate ran and is returned as is.
func (v *Value[T]) Update(ctx context.Context, mutate func(*T) error, persist func(context.Context, T) error) (T, error) {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	v.mu.RLock()
	prev := v.cur
	next := v.clone(prev)
	v.mu.RUnlock()

	if err := mutate(&next); err != nil {
		return v.clone(prev), err
	}

	v.set(next)
	if persist != nil {
		if err := persist(ctx, v.clone(next)); err != nil {
			v.set(prev)
			return v.clone(prev), err
		}
	}
	return v.clone(next), nil
}

func (v *Value[T]) set(state T) {
	v.mu.Lock()
	v.cur = state
	v.mu.Unlock()
}
