package memorystore

import "sync"

// Ring keeps the most recent items up to a fixed capacity, newest first.
type Ring[T any] struct {
	mu    sync.RWMutex
	cap   int
	items []T
}

func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{cap: capacity, items: make([]T, 0, capacity)}
}

// Push adds v at the front and drops the oldest item once full.
func (r *Ring[T]) Push(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.items) < r.cap {
		r.items = append(r.items, v)
	}
	copy(r.items[1:], r.items[:len(r.items)-1])
	r.items[0] = v
}

// Snapshot returns a copy, newest first.
func (r *Ring[T]) Snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, len(r.items))
	copy(out, r.items)
	return out
}

// RemoveFunc drops every item for which fn returns true and reports how many went.
func (r *Ring[T]) RemoveFunc(fn func(T) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.items[:0]
	for _, it := range r.items {
		if !fn(it) {
			kept = append(kept, it)
		}
	}
	removed := len(r.items) - len(kept)
	var zero T
	for i := len(kept); i < len(r.items); i++ {
		r.items[i] = zero
	}
	r.items = kept
	return removed
}

func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = r.items[:0]
}
