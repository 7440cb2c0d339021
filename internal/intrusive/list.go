// Package intrusive implements the per-price-level FIFO used by the order
// book: a circular doubly-linked list whose nodes are the Prev/Next fields
// embedded directly inside orders.ClientRequest, not separately allocated
// wrappers. Splicing a request in or out is a pure pointer swap — no
// allocation, no copy — and a partial fill never changes a resting order's
// node identity, which is what lets the book preserve queue position.
package intrusive

import "github.com/rishav/lob-engine/internal/orders"

// List is a circular doubly-linked FIFO with an address-stable sentinel.
// The zero value is not ready to use; call New.
type List struct {
	sentinel orders.ClientRequest
	size     int
}

// New returns an empty list.
func New() *List {
	l := &List{}
	l.sentinel.Next = &l.sentinel
	l.sentinel.Prev = &l.sentinel
	return l
}

// Size returns the number of linked elements. O(1).
func (l *List) Size() int {
	return l.size
}

// Empty reports whether the list has no elements.
func (l *List) Empty() bool {
	return l.size == 0
}

// Front returns the first (highest-priority) element, or nil if empty.
func (l *List) Front() *orders.ClientRequest {
	if l.size == 0 {
		return nil
	}
	return l.sentinel.Next
}

// Back returns the last (lowest-priority) element, or nil if empty.
func (l *List) Back() *orders.ClientRequest {
	if l.size == 0 {
		return nil
	}
	return l.sentinel.Prev
}

// PushBack links elem at the tail. O(1), no allocation. elem must not
// already be linked into any list.
func (l *List) PushBack(elem *orders.ClientRequest) {
	tail := l.sentinel.Prev
	elem.Prev = tail
	elem.Next = &l.sentinel
	tail.Next = elem
	l.sentinel.Prev = elem
	l.size++
}

// PushFront links elem at the head. O(1), no allocation.
func (l *List) PushFront(elem *orders.ClientRequest) {
	head := l.sentinel.Next
	elem.Next = head
	elem.Prev = &l.sentinel
	head.Prev = elem
	l.sentinel.Next = elem
	l.size++
}

// Erase unlinks elem and returns what was next, so callers can continue
// iterating across a removal. O(1). Erasing an element not currently linked
// into this list is undefined — callers are expected to track membership
// via the index maps described in internal/orderbook.
func (l *List) Erase(elem *orders.ClientRequest) *orders.ClientRequest {
	next := elem.Next
	prev := elem.Prev
	prev.Next = next
	next.Prev = prev
	elem.Prev = nil
	elem.Next = nil
	l.size--
	if next == &l.sentinel {
		return nil
	}
	return next
}

// PopFront unlinks and returns the first element, or nil if empty. O(1).
func (l *List) PopFront() *orders.ClientRequest {
	front := l.Front()
	if front == nil {
		return nil
	}
	l.Erase(front)
	return front
}

// Iterate calls fn for every element in FIFO order, stopping early if fn
// returns false.
func (l *List) Iterate(fn func(*orders.ClientRequest) bool) {
	for n := l.sentinel.Next; n != &l.sentinel; n = n.Next {
		if !fn(n) {
			return
		}
	}
}

// Advance returns the element after node in FIFO order, or nil if node is
// the last element. Lets callers walk a level manually (e.g. to skip a
// self-trade candidate without erasing it) without exposing the sentinel.
func (l *List) Advance(node *orders.ClientRequest) *orders.ClientRequest {
	next := node.Next
	if next == &l.sentinel {
		return nil
	}
	return next
}

// Rebase repoints the first and last real nodes at this list's sentinel.
// Call it after copying a List by value (e.g. out of a struct that is about
// to be moved) — a naive struct copy leaves stale pointers into the old
// sentinel's address. A copied empty list needs repair too: its sentinel
// still points at the old sentinel, so Rebase re-closes the ring onto the
// new sentinel when size is zero.
func (l *List) Rebase() {
	if l.size == 0 {
		l.sentinel.Next = &l.sentinel
		l.sentinel.Prev = &l.sentinel
		return
	}
	l.sentinel.Next.Prev = &l.sentinel
	l.sentinel.Prev.Next = &l.sentinel
}
