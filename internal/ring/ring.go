// Package ring provides a fixed-capacity FIFO buffer that evicts the oldest
// entry on overflow. A Buffer is not safe for concurrent use; owners guard it
// with their own lock.
package ring

// Buffer is a circular buffer holding at most Cap() items
type Buffer[T any] struct {
	entries []T
	size    int
	head    int
	count   int
}

// New creates a buffer with the given capacity. Capacities below one are
// raised to one.
func New[T any](size int) *Buffer[T] {
	if size < 1 {
		size = 1
	}
	return &Buffer[T]{
		entries: make([]T, size),
		size:    size,
	}
}

// Append adds item at the end, evicting the oldest entry when full.
// It returns the evicted entry and whether one was evicted.
func (b *Buffer[T]) Append(item T) (evicted T, ok bool) {
	if b.count == b.size {
		evicted = b.entries[b.head]
		ok = true
	}
	b.entries[b.head] = item
	b.head = (b.head + 1) % b.size
	if b.count < b.size {
		b.count++
	}
	return evicted, ok
}

// Items returns the entries in chronological order. The slice is a copy.
func (b *Buffer[T]) Items() []T {
	return b.Last(b.count)
}

// Last returns up to n most recent entries in chronological order
func (b *Buffer[T]) Last(n int) []T {
	if n > b.count {
		n = b.count
	}
	if n <= 0 {
		return []T{}
	}
	result := make([]T, n)
	start := (b.head - n + b.size) % b.size
	for i := 0; i < n; i++ {
		result[i] = b.entries[(start+i)%b.size]
	}
	return result
}

// Newest returns the most recently appended entry
func (b *Buffer[T]) Newest() (T, bool) {
	var zero T
	if b.count == 0 {
		return zero, false
	}
	return b.entries[(b.head-1+b.size)%b.size], true
}

// Len returns the number of stored entries
func (b *Buffer[T]) Len() int {
	return b.count
}

// Cap returns the maximum number of entries
func (b *Buffer[T]) Cap() int {
	return b.size
}

// Clear drops every entry, keeping the capacity
func (b *Buffer[T]) Clear() {
	var zero T
	for i := range b.entries {
		b.entries[i] = zero
	}
	b.head = 0
	b.count = 0
}

// Resize changes the capacity, keeping the newest entries that still fit
func (b *Buffer[T]) Resize(size int) {
	if size < 1 {
		size = 1
	}
	if size == b.size {
		return
	}
	kept := b.Last(size)
	b.entries = make([]T, size)
	b.size = size
	b.count = copy(b.entries, kept)
	b.head = b.count % size
}
