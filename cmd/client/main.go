// Command client is a CLI smoke-test client that speaks the exchange's
// binary wire protocol directly over TCP: submit NEW/CANCEL requests and
// print whatever EXEC_REPORT/TRADE/LOGIN_RESPONSE frames come back.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/rishav/lob-engine/internal/orders"
	"github.com/rishav/lob-engine/internal/protocol"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	newCmd := flag.NewFlagSet("new", flag.ExitOnError)
	newServer := newCmd.String("server", "localhost:9090", "exchange TCP address")
	newOrderID := newCmd.Uint64("order-id", 0, "local order counter; combined with the assigned client ID")
	newPrice := newCmd.Uint64("price", 0, "limit price")
	newQty := newCmd.Uint("qty", 0, "quantity")
	newSide := newCmd.String("side", "bid", "bid|ask")
	newType := newCmd.String("type", "limit", "limit|market")
	newTIF := newCmd.String("tif", "gtc", "gtc|ioc")

	cancelCmd := flag.NewFlagSet("cancel", flag.ExitOnError)
	cancelServer := cancelCmd.String("server", "localhost:9090", "exchange TCP address")
	cancelOrderID := cancelCmd.Uint64("order-id", 0, "global order ID to cancel")

	switch os.Args[1] {
	case "new":
		newCmd.Parse(os.Args[2:])
		runSubmit(*newServer, *newOrderID, *newPrice, uint32(*newQty), *newSide, *newType, *newTIF)
	case "cancel":
		cancelCmd.Parse(os.Args[2:])
		runCancel(*cancelServer, *cancelOrderID)
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: client new|cancel [-server addr] [flags]")
}

func parseSide(s string) orders.Side {
	if s == "ask" {
		return orders.SideAsk
	}
	return orders.SideBid
}

func parseOrderType(s string) orders.OrderType {
	if s == "market" {
		return orders.OrderTypeMarket
	}
	return orders.OrderTypeLimit
}

func parseTIF(s string) orders.TimeInForce {
	if s == "ioc" {
		return orders.TimeInForceIOC
	}
	return orders.TimeInForceGTC
}

func runSubmit(addr string, localOrderID, price uint64, qty uint32, side, orderType, tif string) {
	conn, clientID := dial(addr)
	defer conn.Close()

	// OrderId convention: high 32 bits are the client ID the gateway
	// assigned at login, low 32 bits a local counter the client owns.
	orderID := orders.OrderId(uint64(clientID)<<32 | (localOrderID & 0xFFFFFFFF))

	frame := protocol.EncodeOrderNew(orders.Order{
		OrderId:   orderID,
		Price:     orders.Price(price),
		Quantity:  orders.Quantity(qty),
		Side:      parseSide(side),
		OrderType: parseOrderType(orderType),
		TIF:       parseTIF(tif),
	})
	if _, err := conn.Write(frame); err != nil {
		fmt.Fprintln(os.Stderr, "write failed:", err)
		os.Exit(1)
	}
	fmt.Printf("submitted order_id=%d client_id=%d\n", orderID, clientID)
	readReports(conn, 2*time.Second)
}

func runCancel(addr string, orderID uint64) {
	conn, clientID := dial(addr)
	defer conn.Close()

	frame := protocol.EncodeOrderCancel(orders.OrderId(orderID))
	if _, err := conn.Write(frame); err != nil {
		fmt.Fprintln(os.Stderr, "write failed:", err)
		os.Exit(1)
	}
	fmt.Printf("cancel sent order_id=%d client_id=%d\n", orderID, clientID)
	readReports(conn, 2*time.Second)
}

// dial connects and reads the server's LOGIN_RESPONSE to learn the assigned
// client ID, per the login handshake in the wire protocol.
func dial(addr string) (net.Conn, orders.ClientId) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "dial failed:", err)
		os.Exit(1)
	}
	reader := bufio.NewReader(conn)
	frameLen, _ := protocol.FrameLen(protocol.MessageLoginResponse)
	frame := make([]byte, frameLen)
	if _, err := readFull(reader, frame); err != nil {
		fmt.Fprintln(os.Stderr, "login failed:", err)
		os.Exit(1)
	}
	clientID, err := protocol.DecodeLoginResponse(frame[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "login decode failed:", err)
		os.Exit(1)
	}
	return conn, clientID
}

// readReports prints whatever EXEC_REPORT/TRADE frames arrive within
// timeout, then returns. A CLI smoke-test client has no long-lived reader
// loop; it is meant for one-shot submit/cancel calls.
func readReports(conn net.Conn, timeout time.Duration) {
	conn.SetReadDeadline(time.Now().Add(timeout))
	reader := bufio.NewReader(conn)
	for {
		tagByte, err := reader.Peek(1)
		if err != nil {
			return
		}
		tag := protocol.MessageType(tagByte[0])
		frameLen, err := protocol.FrameLen(tag)
		if err != nil {
			return
		}
		frame := make([]byte, frameLen)
		if _, err := readFull(reader, frame); err != nil {
			return
		}
		printFrame(tag, frame[1:])
	}
}

func printFrame(tag protocol.MessageType, payload []byte) {
	switch tag {
	case protocol.MessageExecReport:
		r, err := protocol.DecodeExecReport(payload)
		if err == nil {
			fmt.Printf("EXEC_REPORT client=%d order=%d price=%d last_qty=%d remaining=%d type=%s reason=%s\n",
				r.ClientId, r.OrderId, r.Price, r.LastQuantity, r.RemainingQty, r.Type, r.Reason)
		}
	case protocol.MessageTrade:
		t, err := protocol.DecodeTrade(payload)
		if err == nil {
			fmt.Printf("TRADE maker=%d taker=%d price=%d qty=%d\n",
				t.MakerOrderId, t.TakerOrderId, t.Price, t.Quantity)
		}
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
