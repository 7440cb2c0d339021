// Package arena provides stable-address storage for resting orders. It owns
// every ClientRequest the order book keeps alive; the book's intrusive FIFOs
// and flat-map indices only ever hold pointers into arena slots, never
// copies.
//
// Growth never invalidates an existing slot's address: the arena is a
// slab-of-slabs (a slice of fixed-size pages). Appending a new page cannot
// move the bytes of any previously allocated page, so a *orders.ClientRequest
// handed out by Allocate stays valid for the arena's whole lifetime, exactly
// as the design notes require for languages without manual address pinning.
package arena

import "github.com/rishav/lob-engine/internal/orders"

const pageSize = 4096

// Index addresses a slot. It is stable across arena growth.
type Index uint64

type slot struct {
	req    orders.ClientRequest
	active bool
}

type page = [pageSize]slot

// Arena is a growing, page-based pool of ClientRequest slots with a
// free-list stack for recycling cancelled/filled slots.
type Arena struct {
	pages    []*page
	freeList []Index
	next     Index // next never-yet-allocated index
}

// New returns an empty arena.
func New() *Arena {
	return &Arena{}
}

// Allocate copies req into a free slot and returns its stable index. If the
// free-list is non-empty it recycles the most recently freed slot; otherwise
// it grows the arena by exactly one slot.
func (a *Arena) Allocate(req orders.ClientRequest) Index {
	var idx Index
	if n := len(a.freeList); n > 0 {
		idx = a.freeList[n-1]
		a.freeList = a.freeList[:n-1]
	} else {
		idx = a.next
		a.next++
		a.ensurePage(idx)
	}
	s := a.slotAt(idx)
	s.req = req
	s.active = true
	return idx
}

// Get returns the slot's ClientRequest pointer. The pointer is stable until
// the slot is Freed. Calling Get on an inactive slot is a caller error; the
// returned pointer still points at stale data rather than panicking, since
// the engine never does this on the hot path (callers consult the flat-map
// indices first).
func (a *Arena) Get(idx Index) *orders.ClientRequest {
	return &a.slotAt(idx).req
}

// Active reports whether idx currently holds a live request.
func (a *Arena) Active(idx Index) bool {
	return a.slotAt(idx).active
}

// Free clears the slot and pushes idx onto the free-list for recycling.
// Callers must have already erased every OrderId->index mapping that
// referenced idx — the arena does not know about those maps, and recycling
// before erasure would let a stale lookup resurface a reused slot (the ABA
// hazard the design notes call out).
func (a *Arena) Free(idx Index) {
	s := a.slotAt(idx)
	if !s.active {
		return
	}
	s.active = false
	s.req = orders.ClientRequest{}
	a.freeList = append(a.freeList, idx)
}

// Len returns the number of slots ever allocated, active or not.
func (a *Arena) Len() int {
	return int(a.next)
}

// ActiveCount returns the number of currently active slots.
func (a *Arena) ActiveCount() int {
	return int(a.next) - len(a.freeList) - freedButNeverRecycled(a)
}

// freedButNeverRecycled is always zero in this implementation — every freed
// index is pushed to freeList immediately — but is kept as a named hook so
// ActiveCount stays correct if that invariant ever needs to loosen.
func freedButNeverRecycled(*Arena) int {
	return 0
}

func (a *Arena) ensurePage(idx Index) {
	pageNum := int(idx) / pageSize
	for len(a.pages) <= pageNum {
		a.pages = append(a.pages, new(page))
	}
}

func (a *Arena) slotAt(idx Index) *slot {
	pageNum := int(idx) / pageSize
	offset := int(idx) % pageSize
	return &a.pages[pageNum][offset]
}
