// Package ring provides a fixed-capacity FIFO that overwrites its oldest
// entry when full.
package ring

// Buffer holds up to Cap items in insertion order.
// Not safe for concurrent use; callers synchronize.
type Buffer[T any] struct {
	buf      []T
	head     int // next write position
	count    int
	overflow bool // an item was dropped since the last Drain
}

// New returns an empty buffer. Capacity below 1 is raised to 1.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{buf: make([]T, capacity)}
}

// Push appends item, dropping the oldest item if the buffer is full.
// It reports whether an item was dropped.
func (r *Buffer[T]) Push(item T) (dropped bool) {
	if r.count == len(r.buf) {
		// head already points at the oldest item.
		r.buf[r.head] = item
		r.head = (r.head + 1) % len(r.buf)
		r.overflow = true
		return true
	}
	r.buf[r.head] = item
	r.head = (r.head + 1) % len(r.buf)
	r.count++
	return false
}

// Items returns the buffered items, oldest first, without removing them.
func (r *Buffer[T]) Items() []T {
	if r.count == 0 {
		return nil
	}
	out := make([]T, r.count)
	start := (r.head - r.count + len(r.buf)) % len(r.buf)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}

// Drain returns all items, oldest first, and empties the buffer.
func (r *Buffer[T]) Drain() []T {
	out := r.Items()
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.count = 0
	r.head = 0
	r.overflow = false
	return out
}

// Len returns the number of buffered items.
func (r *Buffer[T]) Len() int { return r.count }

// Cap returns the capacity.
func (r *Buffer[T]) Cap() int { return len(r.buf) }

// Overflowed reports whether any item was dropped since the last Drain.
func (r *Buffer[T]) Overflowed() bool { return r.overflow }
