// Package ring provides a fixed-capacity buffer that evicts its oldest
// entry on overflow. It backs the bounded histories kept by the
// complexity assessor and the router.
package ring

import "sync"

// Buffer is a bounded, oldest-evicted buffer safe for concurrent use.
type Buffer[T any] struct {
	mu    sync.Mutex
	items []T
	head  int
	size  int
}

// New creates a buffer with the given capacity. Capacity must be >= 1;
// smaller values are raised to 1.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// Append adds v, evicting the oldest entry when full.
func (b *Buffer[T]) Append(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	tail := (b.head + b.size) % len(b.items)
	b.items[tail] = v
	if b.size < len(b.items) {
		b.size++
	} else {
		b.head = (b.head + 1) % len(b.items)
	}
}

// Len returns the number of buffered entries.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Cap returns the buffer capacity.
func (b *Buffer[T]) Cap() int { return len(b.items) }

// Items returns a copy of the entries, oldest first.
func (b *Buffer[T]) Items() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]T, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.items[(b.head+i)%len(b.items)]
	}
	return out
}
