// Package gateway owns the TCP accept loop: it assigns each connecting
// client an ID, decodes incoming frames into orders.ClientRequest values
// for the matching engine's event queue, and implements logexec.ReportSink
// by writing encoded frames back to each client's socket through a
// per-connection bufio.Writer that is flushed after every frame. The write
// and flush are ordinary blocking socket calls made on the caller's
// goroutine; there is no non-blocking send path and no partial-send offset
// tracking.
package gateway

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/rishav/lob-engine/internal/eventqueue"
	"github.com/rishav/lob-engine/internal/orders"
	"github.com/rishav/lob-engine/internal/protocol"
)

// errUnexpectedClientTag marks a frame whose tag is well-formed but not one
// a client is allowed to send (EXEC_REPORT/TRADE/LOGIN_RESPONSE are
// server-to-client only). Treated the same as a malformed frame: close, no
// retry.
var errUnexpectedClientTag = errors.New("gateway: unexpected message type from client")

// connection tracks one client socket's egress buffering. Writes happen
// from whichever goroutine calls Send (the dispatcher); a mutex guards the
// buffer since several reports for the same client can arrive back to
// back.
type connection struct {
	clientID orders.ClientId
	conn     net.Conn
	mu       sync.Mutex
	writer   *bufio.Writer
}

func (c *connection) send(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Flush pushes the buffered frame to the kernel and may block this
	// goroutine until the socket accepts it; that never blocks the matching
	// thread, since this call only ever happens on the dispatcher goroutine
	// (or the connection's own goroutine for the login response).
	if _, err := c.writer.Write(frame); err != nil {
		return
	}
	_ = c.writer.Flush()
}

// Gateway accepts TCP connections, assigns client IDs, and bridges wire
// frames to/from the matching engine's event queue.
type Gateway struct {
	listener net.Listener
	queue    *eventqueue.Queue
	log      *slog.Logger

	nextClientID atomic.Uint32

	connsMu sync.RWMutex
	conns   map[orders.ClientId]*connection

	wg sync.WaitGroup
}

// New binds addr and returns a Gateway that will push decoded requests onto
// queue. Call Serve to start accepting.
func New(addr string, queue *eventqueue.Queue, log *slog.Logger) (*Gateway, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		listener: ln,
		queue:    queue,
		log:      log,
		conns:    make(map[orders.ClientId]*connection),
	}, nil
}

// Addr returns the listener's bound address (useful in tests that bind to
// port 0).
func (g *Gateway) Addr() net.Addr {
	return g.listener.Addr()
}

// Serve accepts connections until the listener is closed by Shutdown. Run
// it in its own goroutine.
func (g *Gateway) Serve() {
	for {
		conn, err := g.listener.Accept()
		if err != nil {
			return
		}
		g.wg.Add(1)
		go g.handleConn(conn)
	}
}

// Shutdown closes the listener (unblocking Serve) and every open
// connection, then waits for all per-connection goroutines to exit.
func (g *Gateway) Shutdown() {
	_ = g.listener.Close()
	g.connsMu.RLock()
	for _, c := range g.conns {
		_ = c.conn.Close()
	}
	g.connsMu.RUnlock()
	g.wg.Wait()
}

func (g *Gateway) handleConn(conn net.Conn) {
	defer g.wg.Done()
	defer conn.Close()

	clientID := orders.ClientId(g.nextClientID.Add(1))
	c := &connection{clientID: clientID, conn: conn, writer: bufio.NewWriter(conn)}

	g.connsMu.Lock()
	g.conns[clientID] = c
	g.connsMu.Unlock()
	defer func() {
		g.connsMu.Lock()
		delete(g.conns, clientID)
		g.connsMu.Unlock()
	}()

	c.send(protocol.EncodeLoginResponse(clientID))
	g.log.Info("client connected", "client_id", clientID, "remote", conn.RemoteAddr())

	reader := bufio.NewReader(conn)
	for {
		req, err := g.readRequest(reader, clientID)
		if err != nil {
			g.log.Info("client disconnected", "client_id", clientID, "reason", err)
			return
		}
		g.queue.Push(req)
	}
}

// readRequest blocks until a complete frame is buffered, decodes it, and
// returns the corresponding ClientRequest. A malformed frame or unknown tag
// is a protocol error: the connection is closed, no retry, per the error
// taxonomy.
func (g *Gateway) readRequest(r *bufio.Reader, clientID orders.ClientId) (*orders.ClientRequest, error) {
	tagByte, err := r.Peek(1)
	if err != nil {
		return nil, err
	}
	tag := protocol.MessageType(tagByte[0])
	frameLen, err := protocol.FrameLen(tag)
	if err != nil {
		return nil, err
	}

	frame := make([]byte, frameLen)
	if _, err := readFull(r, frame); err != nil {
		return nil, err
	}
	payload := frame[1:]

	switch tag {
	case protocol.MessageOrderNew:
		o, err := protocol.DecodeOrderNew(payload)
		if err != nil {
			return nil, err
		}
		return &orders.ClientRequest{
			Type:     orders.RequestTypeNew,
			ClientId: clientID,
			Order:    o,
		}, nil
	case protocol.MessageOrderCancel:
		id, err := protocol.DecodeOrderCancel(payload)
		if err != nil {
			return nil, err
		}
		return &orders.ClientRequest{
			Type:          orders.RequestTypeCancel,
			ClientId:      clientID,
			CancelOrderId: id,
		}, nil
	default:
		return nil, errUnexpectedClientTag
	}
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Send implements logexec.ReportSink: look up clientID's connection and
// hand it the frame. Unknown or disconnected clients are silently dropped —
// the dispatcher has already written the report to the process-events log
// (buffered until that log's next flush).
func (g *Gateway) Send(clientID orders.ClientId, frame []byte) {
	g.connsMu.RLock()
	c, ok := g.conns[clientID]
	g.connsMu.RUnlock()
	if !ok {
		return
	}
	c.send(frame)
}
