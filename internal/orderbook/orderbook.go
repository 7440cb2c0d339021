// Package orderbook implements the price-time priority limit order book: a
// pair of dense, price-bucketed arrays of FIFOs (one for bids, one for
// asks), each level backed by an internal/intrusive.List of requests that
// live in an internal/arena.Arena. Two indices — an internal/flatmap from
// OrderId to arena slot and a map from OrderId to (side, price) — let Cancel
// find a resting order without walking any level.
//
// Architecture:
//
//	                     Book
//	                       │
//	      ┌────────────────┴────────────────┐
//	      │                                  │
//	   bids []Level                      asks []Level
//	   index = price - priceFloor        index = price - priceFloor
//	   best tracked via bidBest          best tracked via askBest
//	      │                                  │
//	   intrusive.List                    intrusive.List
//	   (FIFO of *ClientRequest)          (FIFO of *ClientRequest)
//
// Levels are indexed directly by price, not kept in a balanced tree: the
// admissible price range is bounded ([priceFloor, priceCeiling]), so level
// access, occupancy tracking, and best-price advancement are all O(1) or
// O(range) amortized, never O(log levels).
package orderbook

import (
	"github.com/rishav/lob-engine/internal/arena"
	"github.com/rishav/lob-engine/internal/flatmap"
	"github.com/rishav/lob-engine/internal/intrusive"
	"github.com/rishav/lob-engine/internal/orders"
)

// Level is one price level's resting FIFO.
type Level struct {
	fifo     *intrusive.List
	occupied bool
}

// location is the C3 "OrderId -> (side, price)" index's value. It holds no
// node pointer: the node is the arena slot found through orderIndex, which
// intrusive lists treat as the splice target directly — no separate
// iterator type is needed because the hook lives on the node itself.
type location struct {
	side  orders.Side
	price orders.Price
}

// Book is the price-time priority matching structure. Bids and asks, the
// arena backing every resting request, and the two lookup indices are all
// owned here; nothing outside the single matching goroutine may touch a
// Book concurrently (see internal/matching).
type Book struct {
	priceFloor   orders.Price
	priceCeiling orders.Price

	bids []Level
	asks []Level

	bidBest    int // index of the highest occupied bid level, or -1
	bidBestSet bool
	askBest    int // index of the lowest occupied ask level, or -1
	askBestSet bool

	arena *arena.Arena

	// orderIndex maps OrderId -> arena.Index (C3, first index).
	orderIndex *flatmap.Map
	// locationIndex maps OrderId -> (side, price) so Cancel can find the
	// level without scanning (C3, second index). The arena slot itself is
	// still the node that the level's intrusive.List splices.
	locationIndex map[orders.OrderId]location

	// sequence counts every Add/Match/Cancel call; tradeCount counts every
	// fill Match produces. Exposed via Stats for diagnostics only.
	sequence   uint64
	tradeCount uint64
}

// New returns an empty book admitting prices in [priceFloor, priceCeiling].
func New(priceFloor, priceCeiling orders.Price) *Book {
	levels := int(priceCeiling-priceFloor) + 1
	b := &Book{
		priceFloor:    priceFloor,
		priceCeiling:  priceCeiling,
		bids:          make([]Level, levels),
		asks:          make([]Level, levels),
		bidBest:       -1,
		askBest:       -1,
		arena:         arena.New(),
		orderIndex:    flatmap.New(),
		locationIndex: make(map[orders.OrderId]location),
	}
	for i := range b.bids {
		b.bids[i].fifo = intrusive.New()
		b.asks[i].fifo = intrusive.New()
	}
	return b
}

func (b *Book) levelIndex(price orders.Price) (int, bool) {
	if price < b.priceFloor || price > b.priceCeiling {
		return 0, false
	}
	return int(price - b.priceFloor), true
}

func (b *Book) levelsFor(side orders.Side) []Level {
	if side == orders.SideBid {
		return b.bids
	}
	return b.asks
}

// Add inserts req onto the book for its side/price. Callers must have
// already matched req against the opposite side (see Match) — Add never
// matches, it only rests. Returns false with PriceInvalid if the price is
// outside the admissible range.
func (b *Book) Add(req *orders.ClientRequest) (ok bool, reason orders.RejectReason) {
	b.sequence++
	idx, inRange := b.levelIndex(req.Order.Price)
	if !inRange {
		return false, orders.RejectReasonPriceInvalid
	}

	slotIdx := b.arena.Allocate(*req)
	node := b.arena.Get(slotIdx)
	// Allocate copied req by value, hooks included; req is linked nowhere,
	// so node.Prev/Next are nil and the node is safe to splice.

	levels := b.levelsFor(req.Order.Side)
	levels[idx].fifo.PushBack(node)
	if !levels[idx].occupied {
		levels[idx].occupied = true
		b.bumpBestOnOccupy(req.Order.Side, idx)
	}

	b.orderIndex.Put(uint64(req.Order.OrderId), uint64(slotIdx))
	b.locationIndex[req.Order.OrderId] = location{side: req.Order.Side, price: req.Order.Price}
	return true, orders.RejectReasonNone
}

func (b *Book) bumpBestOnOccupy(side orders.Side, idx int) {
	if side == orders.SideBid {
		if !b.bidBestSet || idx > b.bidBest {
			b.bidBest = idx
			b.bidBestSet = true
		}
	} else {
		if !b.askBestSet || idx < b.askBest {
			b.askBest = idx
			b.askBestSet = true
		}
	}
}

// priceCrosses reports whether a resting order at makerPrice would trade
// against an incoming order at takerPrice, given the incoming order's side.
func priceCrosses(aggressorSide orders.Side, makerPrice, takerPrice orders.Price) bool {
	if aggressorSide == orders.SideBid {
		return takerPrice >= makerPrice
	}
	return takerPrice <= makerPrice
}

// Match runs incoming against the opposite side of the book, appending a
// Trade (and the maker's ClientRequest snapshot, for the logger) for every
// fill to tradesOut. incoming.Order.Quantity is decremented in place as it
// fills; callers inspect the remaining quantity afterward to decide whether
// to Add the residual (GTC) or drop it (IOC). now stamps every trade.
func (b *Book) Match(incoming *orders.ClientRequest, now orders.TimeStamp, tradesOut *[]MatchedTrade) {
	b.sequence++
	opposite := incoming.Order.Side.Opposite()
	levels := b.levelsFor(opposite)

	bestIdx, ok := b.bestLevel(opposite)
	if !ok {
		return
	}
	// cursor walks outward from the persistent best level for the duration
	// of this single Match call. It only gets written back to b.bidBest/
	// b.askBest when a level actually empties — a level that still holds
	// self-trade-only liquidity stays the book's best level for the next
	// incoming order, even though this aggressor has nothing left to take
	// from it.
	cursor := bestIdx

	for incoming.Order.Quantity > 0 {
		if cursor < 0 || cursor >= len(levels) {
			return
		}
		level := &levels[cursor]
		if !level.occupied {
			// A gap between a self-trade-exhausted level and the next real
			// one — keep ticking through it rather than stopping here, same
			// as the original matcher's bounds-only outer loop.
			cursor = nextLevelIndex(opposite, cursor)
			continue
		}
		levelPrice := b.priceFloor + orders.Price(cursor)
		if !priceCrosses(incoming.Order.Side, levelPrice, incoming.Order.Price) {
			return
		}

		node := level.fifo.Front()
		for node != nil && incoming.Order.Quantity > 0 {
			if node.ClientId == incoming.ClientId {
				// Self-trade skip-and-continue: do not trade against our own
				// resting order, but keep matching later orders at this
				// level and beyond.
				node = level.fifo.Advance(node)
				continue
			}

			tradeQty := min32(node.Order.Quantity, incoming.Order.Quantity)
			node.Order.Quantity -= tradeQty
			incoming.Order.Quantity -= tradeQty

			*tradesOut = append(*tradesOut, MatchedTrade{
				Trade: orders.Trade{
					MakerOrderId:  node.Order.OrderId,
					TakerOrderId:  incoming.Order.OrderId,
					TimeStamp:     now,
					Price:         node.Order.Price,
					Quantity:      tradeQty,
					AggressorSide: incoming.Order.Side,
				},
				Maker: *node,
			})
			b.tradeCount++

			if node.Order.Quantity == 0 {
				filled := node
				node = level.fifo.Erase(filled)
				b.releaseOrder(filled.Order.OrderId)
			}
		}

		if level.fifo.Empty() {
			level.occupied = false
			if best, ok := b.bestLevel(opposite); ok && best == cursor {
				b.advanceBestAfterEmpty(opposite, cursor)
				cursor = b.cursorAfterEmpty(opposite, cursor)
			} else {
				// A level beyond the persistent best emptied; the best level
				// (still holding self-trade-only liquidity) stays the best.
				cursor = nextLevelIndex(opposite, cursor)
			}
			continue
		}

		if incoming.Order.Quantity == 0 {
			return
		}

		// Level still holds liquidity (all self-trade) but this aggressor
		// exhausted what it can take from it. Move the local search cursor
		// past it without disturbing the persistent best-level pointer.
		cursor = nextLevelIndex(opposite, cursor)
	}
}

// nextLevelIndex returns the next index to examine when scanning away from
// the best price on side: ascending for asks, descending for bids.
func nextLevelIndex(side orders.Side, idx int) int {
	if side == orders.SideAsk {
		return idx + 1
	}
	return idx - 1
}

// cursorAfterEmpty returns the book's new best index on side after the
// level at emptiedIdx was just vacated, so Match's local scan can resume
// from the same place advanceBestAfterEmpty already recomputed.
func (b *Book) cursorAfterEmpty(side orders.Side, emptiedIdx int) int {
	idx, ok := b.bestLevel(side)
	if !ok {
		return -1
	}
	return idx
}

func min32(a, b orders.Quantity) orders.Quantity {
	if a < b {
		return a
	}
	return b
}

func (b *Book) bestLevel(side orders.Side) (int, bool) {
	if side == orders.SideBid {
		return b.bidBest, b.bidBestSet && b.bidBest >= 0
	}
	return b.askBest, b.askBestSet && b.askBest >= 0
}

// advanceBestAfterEmpty scans outward from the now-empty level to find the
// next occupied one. The scan is bounded by the admissible price range, so
// it is O(range) only in the pathological case of a fully drained side;
// amortized it is O(1) per call since consecutive calls continue from where
// the last one stopped.
func (b *Book) advanceBestAfterEmpty(side orders.Side, emptiedIdx int) {
	levels := b.levelsFor(side)
	if side == orders.SideBid {
		for i := emptiedIdx - 1; i >= 0; i-- {
			if levels[i].occupied {
				b.bidBest = i
				return
			}
		}
		b.bidBestSet = false
		b.bidBest = -1
		return
	}
	for i := emptiedIdx + 1; i < len(levels); i++ {
		if levels[i].occupied {
			b.askBest = i
			return
		}
	}
	b.askBestSet = false
	b.askBest = -1
}

// releaseOrder erases both index entries for an order that has just left
// the book (filled or canceled) and frees its arena slot, which it finds
// through the arena index recovered here. The arena-index entry is erased
// before the slot is freed.
func (b *Book) releaseOrder(id orders.OrderId) {
	if idx64, ok := b.orderIndex.Get(uint64(id)); ok {
		b.orderIndex.Delete(uint64(id))
		b.arena.Free(arena.Index(idx64))
	}
	delete(b.locationIndex, id)
}

// Cancel looks up id, removes it from its FIFO and both indices, frees its
// arena slot, and returns a copy of the canceled request. ok is false if
// the order was not found (already filled, canceled, or never existed).
func (b *Book) Cancel(id orders.OrderId) (out orders.ClientRequest, ok bool) {
	b.sequence++
	loc, found := b.locationIndex[id]
	if !found {
		return orders.ClientRequest{}, false
	}
	idx64, foundIdx := b.orderIndex.Get(uint64(id))
	if !foundIdx {
		// Structural inconsistency: location index has an entry the arena
		// index doesn't. Repair by erasing the stale entry and reporting
		// not-found rather than propagating the inconsistency.
		delete(b.locationIndex, id)
		return orders.ClientRequest{}, false
	}

	node := b.arena.Get(arena.Index(idx64))
	snapshot := *node

	levelIdx, inRange := b.levelIndex(loc.price)
	if !inRange {
		b.releaseOrder(id)
		return orders.ClientRequest{}, false
	}
	level := &b.levelsFor(loc.side)[levelIdx]
	level.fifo.Erase(node)
	if level.fifo.Empty() {
		level.occupied = false
		if best, ok := b.bestLevel(loc.side); ok && best == levelIdx {
			b.advanceBestAfterEmpty(loc.side, levelIdx)
		}
	}

	b.releaseOrder(id)
	snapshot.Prev = nil
	snapshot.Next = nil
	return snapshot, true
}

// MatchedTrade pairs the Trade record with a snapshot of the maker order at
// the instant of the fill, since the logger needs both the maker's
// remaining quantity and the trade itself to emit two execution reports.
type MatchedTrade struct {
	Trade orders.Trade
	Maker orders.ClientRequest
}

// BestBid returns the highest occupied bid price and true, or (0, false) if
// the bid side is empty. Diagnostics/tests only; never consulted by Match.
func (b *Book) BestBid() (orders.Price, bool) {
	if !b.bidBestSet || b.bidBest < 0 {
		return 0, false
	}
	return b.priceFloor + orders.Price(b.bidBest), true
}

// BestAsk returns the lowest occupied ask price and true, or (0, false) if
// the ask side is empty. Diagnostics/tests only.
func (b *Book) BestAsk() (orders.Price, bool) {
	if !b.askBestSet || b.askBest < 0 {
		return 0, false
	}
	return b.priceFloor + orders.Price(b.askBest), true
}

// DepthLevel is one row of a depth snapshot.
type DepthLevel struct {
	Price    orders.Price
	Quantity orders.Quantity
	Orders   int
}

// Depth returns up to n occupied levels on side, best price first.
// Diagnostics/tests only, never on the matching hot path.
func (b *Book) Depth(side orders.Side, n int) []DepthLevel {
	levels := b.levelsFor(side)
	out := make([]DepthLevel, 0, n)

	step := 1
	start := 0
	end := len(levels)
	if side == orders.SideBid {
		step = -1
		start = len(levels) - 1
		end = -1
	}
	for i := start; i != end && len(out) < n; i += step {
		lvl := &levels[i]
		if !lvl.occupied {
			continue
		}
		var qty orders.Quantity
		var count int
		lvl.fifo.Iterate(func(r *orders.ClientRequest) bool {
			qty += r.Order.Quantity
			count++
			return true
		})
		out = append(out, DepthLevel{
			Price:    b.priceFloor + orders.Price(i),
			Quantity: qty,
			Orders:   count,
		})
	}
	return out
}

// ActiveOrderCount returns the number of orders currently resting anywhere
// on the book. Diagnostics/tests only.
func (b *Book) ActiveOrderCount() int {
	return b.arena.ActiveCount()
}

// Stats is a snapshot of book-level counters: total resting orders, the
// occupied level count on each side, and the running trade/call-sequence
// counters. Diagnostics/tests only, never consulted by Match.
type Stats struct {
	RestingOrders int
	BidLevels     int
	AskLevels     int
	TradeCount    uint64
	Sequence      uint64
}

// Stats returns the current counter snapshot.
func (b *Book) Stats() Stats {
	return Stats{
		RestingOrders: b.arena.ActiveCount(),
		BidLevels:     b.occupiedLevelCount(orders.SideBid),
		AskLevels:     b.occupiedLevelCount(orders.SideAsk),
		TradeCount:    b.tradeCount,
		Sequence:      b.sequence,
	}
}

func (b *Book) occupiedLevelCount(side orders.Side) int {
	count := 0
	for _, lvl := range b.levelsFor(side) {
		if lvl.occupied {
			count++
		}
	}
	return count
}
