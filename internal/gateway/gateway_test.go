package gateway

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rishav/lob-engine/internal/eventqueue"
	"github.com/rishav/lob-engine/internal/orders"
	"github.com/rishav/lob-engine/internal/protocol"
)

func newTestGateway(t *testing.T) (*Gateway, *eventqueue.Queue) {
	t.Helper()
	queue := eventqueue.New()
	gw, err := New("127.0.0.1:0", queue, nil)
	require.NoError(t, err)
	go gw.Serve()
	t.Cleanup(gw.Shutdown)
	return gw, queue
}

func dial(t *testing.T, gw *Gateway) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", gw.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, bufio.NewReader(conn)
}

func readFrame(t *testing.T, r *bufio.Reader) []byte {
	t.Helper()
	tagByte, err := r.Peek(1)
	require.NoError(t, err)
	n, err := protocol.FrameLen(protocol.MessageType(tagByte[0]))
	require.NoError(t, err)
	buf := make([]byte, n)
	_, err = readFull(r, buf)
	require.NoError(t, err)
	return buf
}

func TestHandshakeAssignsClientIDAndSendsLoginResponse(t *testing.T) {
	gw, _ := newTestGateway(t)
	_, r := dial(t, gw)

	frame := readFrame(t, r)
	require.Equal(t, byte(protocol.MessageLoginResponse), frame[0])
	id, err := protocol.DecodeLoginResponse(frame[1:])
	require.NoError(t, err)
	require.Equal(t, orders.ClientId(1), id)
}

func TestSecondClientGetsDistinctID(t *testing.T) {
	gw, _ := newTestGateway(t)
	_, r1 := dial(t, gw)
	_, r2 := dial(t, gw)

	f1 := readFrame(t, r1)
	f2 := readFrame(t, r2)
	id1, _ := protocol.DecodeLoginResponse(f1[1:])
	id2, _ := protocol.DecodeLoginResponse(f2[1:])
	require.NotEqual(t, id1, id2)
}

func TestOrderNewFrameIsPushedToQueue(t *testing.T) {
	gw, queue := newTestGateway(t)
	conn, r := dial(t, gw)
	readFrame(t, r) // discard login response

	o := orders.Order{OrderId: 7, Price: 100, Quantity: 10, Side: orders.SideBid, OrderType: orders.OrderTypeLimit, TIF: orders.TimeInForceGTC}
	_, err := conn.Write(protocol.EncodeOrderNew(o))
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if req, ok := queue.TryPop(); ok {
			require.Equal(t, orders.RequestTypeNew, req.Type)
			require.Equal(t, orders.OrderId(7), req.Order.OrderId)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("order was never pushed to the queue")
}

func TestOrderCancelFrameIsPushedToQueue(t *testing.T) {
	gw, queue := newTestGateway(t)
	conn, r := dial(t, gw)
	readFrame(t, r)

	_, err := conn.Write(protocol.EncodeOrderCancel(42))
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if req, ok := queue.TryPop(); ok {
			require.Equal(t, orders.RequestTypeCancel, req.Type)
			require.Equal(t, orders.OrderId(42), req.CancelOrderId)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("cancel was never pushed to the queue")
}

func TestSendDeliversFrameToTheRightClient(t *testing.T) {
	gw, _ := newTestGateway(t)
	_, r1 := dial(t, gw)
	f1 := readFrame(t, r1)
	id1, _ := protocol.DecodeLoginResponse(f1[1:])

	gw.Send(id1, protocol.EncodeLoginResponse(id1))
	frame := readFrame(t, r1)
	require.Equal(t, byte(protocol.MessageLoginResponse), frame[0])
}

func TestSendToUnknownClientDoesNotPanic(t *testing.T) {
	gw, _ := newTestGateway(t)
	require.NotPanics(t, func() {
		gw.Send(orders.ClientId(99999), protocol.EncodeLoginResponse(1))
	})
}

func TestServerSentTagFromClientClosesConnection(t *testing.T) {
	gw, _ := newTestGateway(t)
	conn, r := dial(t, gw)
	readFrame(t, r)

	_, err := conn.Write(protocol.EncodeLoginResponse(1)) // clients may never send this tag
	require.NoError(t, err)

	buf := make([]byte, 1)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = r.Read(buf)
	require.Error(t, err, "gateway should close the connection on an unexpected tag")
}
