// Package matching implements the single-threaded matching engine loop: the
// sole mutator of order book state and the sole source of time_stamp
// values. It drains the ingress event queue, dispatches each request on
// (time-in-force, order type), calls into the order book, and emits
// execution reports and trades onto the two egress ring buffers that feed
// the dispatcher and the trade-tape logger.
//
// Why single-threaded:
//
//  1. Determinism — the same request sequence always produces the same
//     reports and trades, since there is never more than one goroutine
//     mutating book state.
//  2. No locks on the hot path — the book, arena, and indices are
//     goroutine-local to this loop.
//  3. time_stamp is assigned here, on dequeue, so ordering across producers
//     collapses onto a single monotonic clock.
package matching

import (
	"log/slog"
	"sync/atomic"

	"github.com/rishav/lob-engine/internal/eventqueue"
	"github.com/rishav/lob-engine/internal/orderbook"
	"github.com/rishav/lob-engine/internal/orders"
	"github.com/rishav/lob-engine/internal/ringbuf"
)

// extremeBidPrice/extremeAskPrice are substituted for IOC-MARKET orders so
// the same limit-matching routine sweeps the book: a market buy behaves
// exactly like a limit buy at the highest representable price, and a market
// sell like a limit sell at the lowest.
const (
	extremeAskPrice orders.Price = 0
)

// Clock returns nanoseconds from a steady/monotonic source. Swappable in
// tests so scenarios can assert exact, reproducible time_stamps.
type Clock func() orders.TimeStamp

// Engine is the matching thread's state. Callers run Run in its own
// goroutine and never touch the embedded Book concurrently.
type Engine struct {
	book     *orderbook.Book
	queue    *eventqueue.Queue
	execOut  *ringbuf.Ring[orders.ExecutionReport]
	tradeOut *ringbuf.Ring[orders.Trade]

	clock Clock
	log   *slog.Logger

	extremeBidPrice orders.Price

	// keepRunning latches false the instant Run's drain loop observes
	// shutdown; done closes only after that loop has fully returned, so a
	// caller that waits on done never races the last emitted report/trade.
	keepRunning atomic.Bool
	done        chan struct{}
}

// New builds an engine over book, draining requests from queue and
// publishing execution reports / trades to execOut / tradeOut. priceCeiling
// is used as the extreme sweep price for IOC-MARKET buys.
func New(book *orderbook.Book, queue *eventqueue.Queue, execOut *ringbuf.Ring[orders.ExecutionReport], tradeOut *ringbuf.Ring[orders.Trade], priceCeiling orders.Price, clock Clock, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		book:            book,
		queue:           queue,
		execOut:         execOut,
		tradeOut:        tradeOut,
		clock:           clock,
		log:             log,
		extremeBidPrice: priceCeiling,
		done:            make(chan struct{}),
	}
	return e
}

// Run blocks, processing requests until the queue is shut down and drained.
// Call it from the single dedicated matching goroutine. Run closes Done
// only after the last request has been fully processed and its reports
// pushed onto execOut/tradeOut — callers that join on Done before shutting
// the dispatcher down never lose trailing output.
func (e *Engine) Run() {
	e.keepRunning.Store(true)
	defer func() {
		e.keepRunning.Store(false)
		close(e.done)
	}()
	for {
		req, ok := e.queue.WaitPop()
		if !ok {
			return
		}
		e.process(req)
	}
}

// KeepRunning reports whether Run's drain loop is still active. Diagnostics
// only; Run's own exit condition is the queue's shutdown-and-drained state,
// not this flag.
func (e *Engine) KeepRunning() bool {
	return e.keepRunning.Load()
}

// Done returns a channel that closes once Run has returned. The owner joins
// on it after calling queue.Shutdown() and before tearing down anything Run
// still writes to, so shutdown never drops trailing execution reports or
// trades.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Stats returns the current book-level counter snapshot. Diagnostics/tests
// only; the engine itself never consults it.
func (e *Engine) Stats() orderbook.Stats {
	return e.book.Stats()
}

// Step processes exactly one request if one is queued, without blocking.
// Used by tests that want deterministic single-step control.
func (e *Engine) Step() bool {
	req, ok := e.queue.TryPop()
	if !ok {
		return false
	}
	e.process(req)
	return true
}

func (e *Engine) process(req *orders.ClientRequest) {
	now := e.clock()
	req.TimeStamp = now

	switch req.Type {
	case orders.RequestTypeNew:
		e.processNew(req, now)
	case orders.RequestTypeCancel:
		e.processCancel(req, now)
	}
}

func (e *Engine) processNew(req *orders.ClientRequest, now orders.TimeStamp) {
	if req.Order.Quantity == 0 {
		e.reject(req, now, orders.RejectReasonQuantityInvalid)
		return
	}

	e.emitReport(orders.ExecutionReport{
		ClientId:     req.ClientId,
		OrderId:      req.Order.OrderId,
		Price:        req.Order.Price,
		RemainingQty: req.Order.Quantity,
		Type:         orders.ExecTypeNew,
		Side:         req.Order.Side,
	})

	switch {
	case req.Order.TIF == orders.TimeInForceGTC && req.Order.OrderType == orders.OrderTypeMarket:
		e.reject(req, now, orders.RejectReasonInvalidOrderType)
	case req.Order.TIF == orders.TimeInForceGTC && req.Order.OrderType == orders.OrderTypeLimit:
		e.handleGtcLimit(req, now)
	case req.Order.TIF == orders.TimeInForceIOC && req.Order.OrderType == orders.OrderTypeLimit:
		e.handleIocLimit(req, now)
	case req.Order.TIF == orders.TimeInForceIOC && req.Order.OrderType == orders.OrderTypeMarket:
		req.Order.Price = e.extremeSweepPrice(req.Order.Side)
		e.handleIocLimit(req, now)
	}
}

// extremeSweepPrice returns the price that guarantees an IOC-MARKET order
// crosses every occupied level on the opposite side: the ceiling for a buy,
// zero for a sell.
func (e *Engine) extremeSweepPrice(side orders.Side) orders.Price {
	if side == orders.SideBid {
		return e.extremeBidPrice
	}
	return extremeAskPrice
}

func (e *Engine) handleGtcLimit(req *orders.ClientRequest, now orders.TimeStamp) {
	e.matchAndReport(req, now)
	if req.Order.Quantity > 0 {
		if ok, reason := e.book.Add(req); !ok {
			e.reject(req, now, reason)
		}
	}
}

func (e *Engine) handleIocLimit(req *orders.ClientRequest, now orders.TimeStamp) {
	e.matchAndReport(req, now)
	// Residual quantity on an IOC order is discarded, never rested.
}

func (e *Engine) matchAndReport(req *orders.ClientRequest, now orders.TimeStamp) {
	var trades []orderbook.MatchedTrade
	e.book.Match(req, now, &trades)

	for _, mt := range trades {
		e.emitTrade(mt.Trade)

		e.emitReport(orders.ExecutionReport{
			ClientId:     mt.Maker.ClientId,
			OrderId:      mt.Trade.MakerOrderId,
			Price:        mt.Trade.Price,
			LastQuantity: mt.Trade.Quantity,
			RemainingQty: mt.Maker.Order.Quantity,
			Type:         orders.ExecTypeTrade,
			Side:         mt.Maker.Order.Side,
		})
		e.emitReport(orders.ExecutionReport{
			ClientId:     req.ClientId,
			OrderId:      mt.Trade.TakerOrderId,
			Price:        mt.Trade.Price,
			LastQuantity: mt.Trade.Quantity,
			RemainingQty: req.Order.Quantity,
			Type:         orders.ExecTypeTrade,
			Side:         req.Order.Side,
		})
	}
}

func (e *Engine) processCancel(req *orders.ClientRequest, now orders.TimeStamp) {
	canceled, ok := e.book.Cancel(req.CancelOrderId)
	if !ok {
		e.reject(req, now, orders.RejectReasonOrderNotFound)
		return
	}
	e.emitReport(orders.ExecutionReport{
		ClientId:     canceled.ClientId,
		OrderId:      canceled.Order.OrderId,
		Price:        canceled.Order.Price,
		RemainingQty: canceled.Order.Quantity,
		Type:         orders.ExecTypeCanceled,
		Side:         canceled.Order.Side,
	})
}

func (e *Engine) reject(req *orders.ClientRequest, now orders.TimeStamp, reason orders.RejectReason) {
	e.emitReport(orders.ExecutionReport{
		ClientId:     req.ClientId,
		OrderId:      req.OrderId(),
		Price:        req.Order.Price,
		RemainingQty: req.Order.Quantity,
		Type:         orders.ExecTypeRejected,
		Reason:       reason,
		Side:         req.Order.Side,
	})
}

func (e *Engine) emitReport(r orders.ExecutionReport) {
	if !e.execOut.TryPush(r) {
		e.log.Warn("execution report egress ring full, dropping oldest",
			"client_id", r.ClientId, "order_id", r.OrderId, "type", r.Type.String())
		e.execOut.TryPop()
		e.execOut.TryPush(r)
	}
}

func (e *Engine) emitTrade(t orders.Trade) {
	if !e.tradeOut.TryPush(t) {
		e.log.Warn("trade tape egress ring full, dropping oldest",
			"maker_id", t.MakerOrderId, "taker_id", t.TakerOrderId)
		e.tradeOut.TryPop()
		e.tradeOut.TryPush(t)
	}
}
