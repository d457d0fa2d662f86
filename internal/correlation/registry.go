// Package correlation keeps the outstanding calls of a gate.
package correlation

import (
	"github.com/hashicorp/golang-lru/simplelru"
)

// Registry is a fixed capacity map from generated ids to values, ordered by
// insertion. Adding to a full registry evicts the oldest entry.
//
// Registry is not safe for concurrent use.
type Registry[V any] struct {
	lru    *simplelru.LRU
	cap    int
	nextID uint64
}

// New creates a registry holding at most capacity entries. Capacities below
// one are raised to one.
func New[V any](capacity int) *Registry[V] {
	if capacity < 1 {
		capacity = 1
	}
	// Only fails for a non positive size.
	lru, _ := simplelru.NewLRU(capacity, nil)
	return &Registry[V]{lru: lru, cap: capacity}
}

// Add stores v under a fresh id. When the registry was full, the oldest
// value is evicted and returned with didEvict set.
func (r *Registry[V]) Add(v V) (id uint64, evicted V, didEvict bool) {
	if r.lru.Len() >= r.cap {
		if _, old, ok := r.lru.RemoveOldest(); ok {
			evicted, didEvict = old.(V), true
		}
	}

	r.nextID++
	id = r.nextID
	r.lru.Add(id, v)
	return id, evicted, didEvict
}

// Remove deletes and returns the value stored under id.
func (r *Registry[V]) Remove(id uint64) (V, bool) {
	var zero V
	raw, ok := r.lru.Peek(id)
	if !ok {
		return zero, false
	}
	r.lru.Remove(id)
	return raw.(V), true
}

// Len returns the number of stored entries.
func (r *Registry[V]) Len() int {
	return r.lru.Len()
}

// Cap returns the capacity.
func (r *Registry[V]) Cap() int {
	return r.cap
}

// Drain removes every entry, oldest first, and returns their values.
func (r *Registry[V]) Drain() []V {
	values := make([]V, 0, r.lru.Len())
	for {
		_, raw, ok := r.lru.RemoveOldest()
		if !ok {
			return values
		}
		values = append(values, raw.(V))
	}
}
