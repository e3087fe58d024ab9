// Package buffer implements a generic fixed-capacity ring that overwrites
// its oldest entry once full.
//
// Ring is not safe for concurrent use; callers guard it with their own lock.
package buffer

import "fmt"

// Ring is a fixed-capacity circular buffer
type Ring[T any] struct {
	items []T
	head  int // index of the next write
	count int
}

// NewRing creates a ring holding at most capacity items
func NewRing[T any](capacity int) (*Ring[T], error) {
	if capacity < 1 {
		return nil, fmt.Errorf("ring capacity must be positive, got %d", capacity)
	}
	return &Ring[T]{items: make([]T, capacity)}, nil
}

// MustNewRing is NewRing for capacities known to be valid
func MustNewRing[T any](capacity int) *Ring[T] {
	r, err := NewRing[T](capacity)
	if err != nil {
		panic(err)
	}
	return r
}

// Add appends item, evicting the oldest entry when the ring is full
func (r *Ring[T]) Add(item T) {
	r.items[r.head] = item
	r.head = (r.head + 1) % len(r.items)
	if r.count < len(r.items) {
		r.count++
	}
}

// Items returns the retained entries from oldest to newest
func (r *Ring[T]) Items() []T {
	out := make([]T, 0, r.count)
	start := r.oldest()
	for i := 0; i < r.count; i++ {
		out = append(out, r.items[(start+i)%len(r.items)])
	}
	return out
}

// Latest returns the most recently added entry
func (r *Ring[T]) Latest() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	idx := (r.head - 1 + len(r.items)) % len(r.items)
	return r.items[idx], true
}

// Clear drops every entry
func (r *Ring[T]) Clear() {
	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head = 0
	r.count = 0
}

// Count returns the number of retained entries
func (r *Ring[T]) Count() int {
	return r.count
}

// Capacity returns the maximum number of retained entries
func (r *Ring[T]) Capacity() int {
	return len(r.items)
}

// IsFull reports whether the next Add will evict an entry
func (r *Ring[T]) IsFull() bool {
	return r.count == len(r.items)
}

func (r *Ring[T]) oldest() int {
	if r.count < len(r.items) {
		return 0
	}
	return r.head
}
