// Package logexec turns matching-engine outcomes into the exchange's two
// durable artifacts (the process-events log and the trade tape) and fans
// execution reports back out to the client that owns each order.
//
// It runs as a small set of dedicated goroutines, mirroring the teacher's
// batching-writer design: a dispatcher drains the matching engine's two
// SPSC egress rings, hands bytes to a per-connection sink, and two logger
// goroutines batch writes to append-only text files, flushing either when
// their queue passes a high-water mark or when shutdown is signaled.
package logexec

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rishav/lob-engine/internal/orders"
	"github.com/rishav/lob-engine/internal/protocol"
	"github.com/rishav/lob-engine/internal/ringbuf"
)

// ReportSink delivers an already-encoded wire frame to the connection
// owning clientID. Implemented by internal/gateway; logexec never touches
// a net.Conn directly.
type ReportSink interface {
	Send(clientID orders.ClientId, frame []byte)
}

// fileAppender is a batched, append-only text writer. It is not safe for
// concurrent use; each instance is owned by exactly one logger goroutine.
type fileAppender struct {
	file   *os.File
	writer *bufio.Writer
	sync   bool
}

func newFileAppender(path string, syncOnWrite bool) (*fileAppender, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logexec: open %s: %w", path, err)
	}
	return &fileAppender{file: f, writer: bufio.NewWriter(f), sync: syncOnWrite}, nil
}

func (a *fileAppender) writeLine(line string) {
	// Log I/O errors degrade to a dropped write; they never propagate back
	// into the matching thread, which never blocks on logging.
	_, _ = a.writer.WriteString(line)
	_, _ = a.writer.WriteString("\n")
}

func (a *fileAppender) flush() {
	_ = a.writer.Flush()
	if a.sync {
		_ = a.file.Sync()
	}
}

func (a *fileAppender) close() {
	a.flush()
	_ = a.file.Close()
}

// Dispatcher is the C8 logger/dispatcher. Construct with New, then run
// RunExecReports and RunTrades each in their own goroutine.
type Dispatcher struct {
	runID uuid.UUID

	execIn  *ringbuf.Ring[orders.ExecutionReport]
	tradeIn *ringbuf.Ring[orders.Trade]
	sink    ReportSink

	eventsLog *fileAppender
	tradesLog *fileAppender

	highWater int

	clientLogsMu sync.Mutex
	clientLogs   map[orders.ClientId]*fileAppender
	logDir       string
	syncOnWrite  bool

	stop chan struct{}
	done sync.WaitGroup
}

// New builds a Dispatcher. logDir is created if missing; highWater is the
// in-memory pending-line count past which a logger goroutine flushes
// immediately instead of waiting for its idle tick.
func New(execIn *ringbuf.Ring[orders.ExecutionReport], tradeIn *ringbuf.Ring[orders.Trade], sink ReportSink, logDir string, highWater int, syncOnWrite bool) (*Dispatcher, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("logexec: create log dir: %w", err)
	}
	events, err := newFileAppender(filepath.Join(logDir, "processed_events"), syncOnWrite)
	if err != nil {
		return nil, err
	}
	trades, err := newFileAppender(filepath.Join(logDir, "processed_trades"), syncOnWrite)
	if err != nil {
		events.close()
		return nil, err
	}
	if highWater <= 0 {
		highWater = 256
	}
	d := &Dispatcher{
		runID:       uuid.New(),
		execIn:      execIn,
		tradeIn:     tradeIn,
		sink:        sink,
		eventsLog:   events,
		tradesLog:   trades,
		highWater:   highWater,
		clientLogs:  make(map[orders.ClientId]*fileAppender),
		logDir:      logDir,
		syncOnWrite: syncOnWrite,
		stop:        make(chan struct{}),
	}
	// Both runner goroutines are accounted for up front so Shutdown can be
	// called safely even before RunExecReports/RunTrades have started.
	d.done.Add(2)
	return d, nil
}

// RunID identifies this process's log session. The server logs it once in
// its startup diagnostic line; it is not written into any of the files this
// package appends to.
func (d *Dispatcher) RunID() uuid.UUID {
	return d.runID
}

// RunExecReports drains the execution-report egress ring until Shutdown is
// called and the ring is empty. Run it in its own goroutine.
func (d *Dispatcher) RunExecReports() {
	defer d.done.Done()

	pending := 0
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-d.stop:
			d.drainExecReports(&pending)
			d.eventsLog.flush()
			d.flushClientLogs()
			return
		case <-ticker.C:
			if pending > 0 {
				d.eventsLog.flush()
				d.flushClientLogs()
				pending = 0
			}
		default:
			report, ok := d.execIn.TryPop()
			if !ok {
				time.Sleep(time.Microsecond * 50)
				continue
			}
			d.handleExecReport(report)
			pending++
			if pending >= d.highWater {
				d.eventsLog.flush()
				d.flushClientLogs()
				pending = 0
			}
		}
	}
}

func (d *Dispatcher) drainExecReports(pending *int) {
	for {
		report, ok := d.execIn.TryPop()
		if !ok {
			return
		}
		d.handleExecReport(report)
		*pending++
	}
}

func (d *Dispatcher) handleExecReport(r orders.ExecutionReport) {
	d.eventsLog.writeLine(formatExecReport(r))
	d.clientLog(r.ClientId).writeLine(formatExecReport(r))
	d.sink.Send(r.ClientId, protocol.EncodeExecReport(r))
}

// RunTrades drains the trade-tape egress ring until Shutdown and empty.
// Run it in its own goroutine, separate from RunExecReports, matching the
// one-thread-per-log design.
func (d *Dispatcher) RunTrades() {
	defer d.done.Done()

	pending := 0
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-d.stop:
			for {
				t, ok := d.tradeIn.TryPop()
				if !ok {
					break
				}
				d.tradesLog.writeLine(formatTrade(t))
			}
			d.tradesLog.flush()
			return
		case <-ticker.C:
			if pending > 0 {
				d.tradesLog.flush()
				pending = 0
			}
		default:
			t, ok := d.tradeIn.TryPop()
			if !ok {
				time.Sleep(time.Microsecond * 50)
				continue
			}
			d.tradesLog.writeLine(formatTrade(t))
			pending++
			if pending >= d.highWater {
				d.tradesLog.flush()
				pending = 0
			}
		}
	}
}

// Shutdown signals both logger goroutines to drain their ring and exit, and
// blocks until they do.
func (d *Dispatcher) Shutdown() {
	close(d.stop)
	d.done.Wait()
	d.eventsLog.close()
	d.tradesLog.close()
	d.clientLogsMu.Lock()
	for _, l := range d.clientLogs {
		l.close()
	}
	d.clientLogsMu.Unlock()
}

func (d *Dispatcher) clientLog(id orders.ClientId) *fileAppender {
	d.clientLogsMu.Lock()
	defer d.clientLogsMu.Unlock()
	if l, ok := d.clientLogs[id]; ok {
		return l
	}
	path := filepath.Join(d.logDir, fmt.Sprintf("execution_reports_client_%d", id))
	l, err := newFileAppender(path, d.syncOnWrite)
	if err != nil {
		// Degrade: fall back to the shared events log only for this client.
		return d.eventsLog
	}
	d.clientLogs[id] = l
	return l
}

func (d *Dispatcher) flushClientLogs() {
	d.clientLogsMu.Lock()
	defer d.clientLogsMu.Unlock()
	for _, l := range d.clientLogs {
		l.flush()
	}
}

func formatExecReport(r orders.ExecutionReport) string {
	return fmt.Sprintf("client=%d order=%d price=%d last_qty=%d remaining_qty=%d type=%s reason=%s side=%s",
		r.ClientId, r.OrderId, r.Price, r.LastQuantity, r.RemainingQty, r.Type, r.Reason, r.Side)
}

func formatTrade(t orders.Trade) string {
	return fmt.Sprintf("maker=%d taker=%d ts=%d price=%d qty=%d aggressor=%s",
		t.MakerOrderId, t.TakerOrderId, t.TimeStamp, t.Price, t.Quantity, t.AggressorSide)
}
