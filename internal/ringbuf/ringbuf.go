// Package ringbuf implements a single-producer/single-consumer bounded ring
// buffer, generic over its element type (the engine uses one for
// orders.ExecutionReport and one for orders.Trade). Capacity is rounded up to a power
// of two so index wraparound is a mask instead of a modulo, and the head and
// tail cursors are padded onto separate cache lines so producer and consumer
// never fight over the same cache line under contention.
package ringbuf

import "sync/atomic"

const cacheLinePad = 64 - 8 // one uint64 already occupies 8 bytes of the line

// Ring is a bounded SPSC queue. Exactly one goroutine may call TryPush and
// exactly one (possibly different) goroutine may call TryPop; calling either
// method from more than one goroutine concurrently is undefined, matching
// the disruptor-style ring buffers this is modeled on.
type Ring[T any] struct {
	buf  []T
	mask uint64

	head    atomic.Uint64
	_padh   [cacheLinePad]byte
	tail    atomic.Uint64
	_padt   [cacheLinePad]byte
}

// New returns a ring sized to the next power of two at or above capacity.
func New[T any](capacity int) *Ring[T] {
	size := nextPowerOfTwo(capacity)
	return &Ring[T]{
		buf:  make([]T, size),
		mask: uint64(size - 1),
	}
}

func nextPowerOfTwo(n int) int {
	if n < 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// TryPush attempts to enqueue value. It returns false if the ring is full;
// the caller decides whether that means drop, overwrite-oldest, or retry.
func (r *Ring[T]) TryPush(value T) bool {
	head := r.head.Load()
	tail := r.tail.Load()
	if head-tail >= uint64(len(r.buf)) {
		return false
	}
	r.buf[head&r.mask] = value
	r.head.Store(head + 1)
	return true
}

// TryPop attempts to dequeue the oldest value. It returns the zero value and
// false if the ring is empty.
func (r *Ring[T]) TryPop() (T, bool) {
	tail := r.tail.Load()
	head := r.head.Load()
	if tail >= head {
		var zero T
		return zero, false
	}
	v := r.buf[tail&r.mask]
	r.tail.Store(tail + 1)
	return v, true
}

// Len returns the number of queued-but-unconsumed items. It is a snapshot
// and may be stale by the time the caller reads it.
func (r *Ring[T]) Len() int {
	return int(r.head.Load() - r.tail.Load())
}

// Cap returns the ring's fixed capacity.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Full reports whether the ring is currently at capacity.
func (r *Ring[T]) Full() bool {
	return r.Len() >= len(r.buf)
}
