// Package eventqueue implements the multiple-producer/single-consumer queue
// that feeds the matching engine. Every client connection goroutine pushes
// ClientRequests into the same queue; the single matching goroutine drains
// it. Unlike internal/ringbuf, this queue is unbounded and Push never fails
// — the engine's correctness depends on no order ever being silently
// dropped on the way in, only on the way out to side channels like the
// trade tape.
package eventqueue

import (
	"sync"

	"github.com/rishav/lob-engine/internal/orders"
)

// Queue is a condition-variable-protected FIFO of *orders.ClientRequest.
type Queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []*orders.ClientRequest
	head     int // index of the oldest unpopped item
	shutdown bool
}

// New returns an empty queue.
func New() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends req and wakes one waiter. It never blocks and never drops.
func (q *Queue) Push(req *orders.ClientRequest) {
	q.mu.Lock()
	q.items = append(q.items, req)
	q.mu.Unlock()
	q.cond.Signal()
}

// TryPop removes and returns the oldest item without blocking. The second
// return value is false if the queue was empty.
func (q *Queue) TryPop() (*orders.ClientRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head >= len(q.items) {
		return nil, false
	}
	return q.pop(), true
}

// WaitPop blocks until an item is available or Shutdown is called. It
// returns false only when the queue has drained and shutdown has been
// signaled (and on every call after that) — callers should stop looping at
// that point.
func (q *Queue) WaitPop() (*orders.ClientRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.head >= len(q.items) && !q.shutdown {
		q.cond.Wait()
	}
	if q.head >= len(q.items) {
		return nil, false
	}
	return q.pop(), true
}

// Shutdown wakes every blocked WaitPop caller. Items already queued are
// still returned by WaitPop/TryPop before it reports empty; shutdown only
// stops the wait once the backlog is drained.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	q.shutdown = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Len returns the number of queued items. Snapshot only.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// pop must be called with mu held. It advances head rather than shifting the
// backing array, and compacts periodically once the dead prefix dominates so
// the array doesn't grow without bound under sustained load.
func (q *Queue) pop() *orders.ClientRequest {
	item := q.items[q.head]
	q.items[q.head] = nil
	q.head++
	if q.head > 64 && q.head*2 > len(q.items) {
		remaining := copy(q.items, q.items[q.head:])
		q.items = q.items[:remaining]
		q.head = 0
	}
	return item
}
