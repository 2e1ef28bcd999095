// Package retention provides bounded append-only sequences used to cap the
// memory held by historical records.
package retention

// Buffer is an append-only sequence that keeps at most Cap items.
// When a push overflows the cap, the oldest items are evicted first.
// A Buffer is not safe for concurrent use; the owner serializes access.
type Buffer[T any] struct {
	items    []T
	head     int // index of the oldest item once the ring is full
	capacity int
}

// New creates a Buffer holding at most capacity items.
// A capacity <= 0 means unbounded.
func New[T any](capacity int) *Buffer[T] {
	return &Buffer[T]{capacity: capacity}
}

// Push appends items, evicting the oldest ones once the buffer is at cap.
func (b *Buffer[T]) Push(items ...T) {
	for _, it := range items {
		if b.capacity <= 0 || len(b.items) < b.capacity {
			b.items = append(b.items, it)
			continue
		}
		b.items[b.head] = it
		b.head = (b.head + 1) % b.capacity
	}
}

// Len returns the number of retained items.
func (b *Buffer[T]) Len() int { return len(b.items) }

// Cap returns the configured capacity (<= 0 means unbounded).
func (b *Buffer[T]) Cap() int { return b.capacity }

// at returns the i-th oldest item.
func (b *Buffer[T]) at(i int) T {
	return b.items[(b.head+i)%len(b.items)]
}

// Items returns a copy of the retained items, oldest first.
func (b *Buffer[T]) Items() []T {
	out := make([]T, len(b.items))
	for i := range b.items {
		out[i] = b.at(i)
	}
	return out
}

// Reverse returns a copy of the retained items, newest first.
func (b *Buffer[T]) Reverse() []T {
	return b.Last(len(b.items))
}

// Last returns at most n of the newest items, newest first.
func (b *Buffer[T]) Last(n int) []T {
	if n > len(b.items) {
		n = len(b.items)
	}
	if n <= 0 {
		return []T{}
	}
	out := make([]T, 0, n)
	for i := len(b.items) - 1; i >= len(b.items)-n; i-- {
		out = append(out, b.at(i))
	}
	return out
}

// Filter returns the retained items matching keep, oldest first.
func (b *Buffer[T]) Filter(keep func(T) bool) []T {
	out := []T{}
	for i := range b.items {
		if it := b.at(i); keep(it) {
			out = append(out, it)
		}
	}
	return out
}

// Clear drops every retained item.
func (b *Buffer[T]) Clear() {
	b.items = nil
	b.head = 0
}
