// Package protocol implements the binary wire format: every message is
// fixed-layout and big-endian, with a one-byte MessageType tag identifying
// which fixed length follows. There is no length prefix because the tag
// alone determines the payload size — callers must not advance their read
// cursor until a whole message is buffered.
package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/rishav/lob-engine/internal/orders"
)

// MessageType tags the first byte of every frame.
type MessageType uint8

const (
	MessageOrderNew      MessageType = 1
	MessageOrderCancel   MessageType = 2
	MessageExecReport    MessageType = 3
	MessageTrade         MessageType = 4
	MessageLoginResponse MessageType = 5
)

// payloadLen returns the number of bytes after the tag for each message
// type, or 0/false if the tag is unknown.
func payloadLen(t MessageType) (int, bool) {
	switch t {
	case MessageOrderNew:
		return 8 + 8 + 4 + 1 + 1 + 1, true // order_id price quantity side order_type tif
	case MessageOrderCancel:
		return 8, true // order_id
	case MessageExecReport:
		return 4 + 8 + 8 + 4 + 4 + 1 + 1 + 1, true // client_id order_id price last_qty remaining_qty type reason side
	case MessageTrade:
		return 8 + 8 + 8 + 8 + 4 + 1, true // maker_id taker_id time_stamp price quantity aggressor_side
	case MessageLoginResponse:
		return 4, true // client_id
	default:
		return 0, false
	}
}

// FrameLen returns the total frame length (tag included) for t, or an error
// if t is not a known message type.
func FrameLen(t MessageType) (int, error) {
	n, ok := payloadLen(t)
	if !ok {
		return 0, fmt.Errorf("protocol: unknown message type %d", t)
	}
	return n + 1, nil
}

// errShortBuffer/errUnknownType name the two ways decoding can fail; callers
// that see either must treat the connection as protocol-broken and close it
// per the error taxonomy — there is no retry for a malformed frame.
var (
	errShortBuffer  = fmt.Errorf("protocol: buffer shorter than frame")
	errUnknownType  = fmt.Errorf("protocol: unknown message type")
)

// Peek inspects buf[0] without consuming anything and reports the frame
// length the caller should wait to accumulate before calling the matching
// Decode function. It returns an error if buf is empty or the tag is
// unrecognized.
func Peek(buf []byte) (MessageType, int, error) {
	if len(buf) < 1 {
		return 0, 0, errShortBuffer
	}
	t := MessageType(buf[0])
	n, err := FrameLen(t)
	if err != nil {
		return 0, 0, errUnknownType
	}
	return t, n, nil
}

// EncodeOrderNew writes an ORDER_NEW frame.
func EncodeOrderNew(o orders.Order) []byte {
	buf := make([]byte, 1+23)
	buf[0] = byte(MessageOrderNew)
	binary.BigEndian.PutUint64(buf[1:9], uint64(o.OrderId))
	binary.BigEndian.PutUint64(buf[9:17], uint64(o.Price))
	binary.BigEndian.PutUint32(buf[17:21], uint32(o.Quantity))
	buf[21] = byte(o.Side)
	buf[22] = byte(o.OrderType)
	buf[23] = byte(o.TIF)
	return buf
}

// DecodeOrderNew parses an ORDER_NEW frame's payload (tag already stripped).
func DecodeOrderNew(payload []byte) (orders.Order, error) {
	n, _ := payloadLen(MessageOrderNew)
	if len(payload) < n {
		return orders.Order{}, errShortBuffer
	}
	return orders.Order{
		OrderId:   orders.OrderId(binary.BigEndian.Uint64(payload[0:8])),
		Price:     orders.Price(binary.BigEndian.Uint64(payload[8:16])),
		Quantity:  orders.Quantity(binary.BigEndian.Uint32(payload[16:20])),
		Side:      orders.Side(payload[20]),
		OrderType: orders.OrderType(payload[21]),
		TIF:       orders.TimeInForce(payload[22]),
	}, nil
}

// EncodeOrderCancel writes an ORDER_CANCEL frame.
func EncodeOrderCancel(id orders.OrderId) []byte {
	buf := make([]byte, 1+8)
	buf[0] = byte(MessageOrderCancel)
	binary.BigEndian.PutUint64(buf[1:9], uint64(id))
	return buf
}

// DecodeOrderCancel parses an ORDER_CANCEL frame's payload.
func DecodeOrderCancel(payload []byte) (orders.OrderId, error) {
	if len(payload) < 8 {
		return 0, errShortBuffer
	}
	return orders.OrderId(binary.BigEndian.Uint64(payload[0:8])), nil
}

// EncodeExecReport writes an EXEC_REPORT frame.
func EncodeExecReport(r orders.ExecutionReport) []byte {
	buf := make([]byte, 1+31)
	buf[0] = byte(MessageExecReport)
	binary.BigEndian.PutUint32(buf[1:5], uint32(r.ClientId))
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.OrderId))
	binary.BigEndian.PutUint64(buf[13:21], uint64(r.Price))
	binary.BigEndian.PutUint32(buf[21:25], uint32(r.LastQuantity))
	binary.BigEndian.PutUint32(buf[25:29], uint32(r.RemainingQty))
	buf[29] = byte(r.Type)
	buf[30] = byte(r.Reason)
	buf[31] = byte(r.Side)
	return buf
}

// DecodeExecReport parses an EXEC_REPORT frame's payload.
func DecodeExecReport(payload []byte) (orders.ExecutionReport, error) {
	n, _ := payloadLen(MessageExecReport)
	if len(payload) < n {
		return orders.ExecutionReport{}, errShortBuffer
	}
	return orders.ExecutionReport{
		ClientId:     orders.ClientId(binary.BigEndian.Uint32(payload[0:4])),
		OrderId:      orders.OrderId(binary.BigEndian.Uint64(payload[4:12])),
		Price:        orders.Price(binary.BigEndian.Uint64(payload[12:20])),
		LastQuantity: orders.Quantity(binary.BigEndian.Uint32(payload[20:24])),
		RemainingQty: orders.Quantity(binary.BigEndian.Uint32(payload[24:28])),
		Type:         orders.ExecType(payload[28]),
		Reason:       orders.RejectReason(payload[29]),
		Side:         orders.Side(payload[30]),
	}, nil
}

// EncodeTrade writes a TRADE frame.
func EncodeTrade(t orders.Trade) []byte {
	buf := make([]byte, 1+37)
	buf[0] = byte(MessageTrade)
	binary.BigEndian.PutUint64(buf[1:9], uint64(t.MakerOrderId))
	binary.BigEndian.PutUint64(buf[9:17], uint64(t.TakerOrderId))
	binary.BigEndian.PutUint64(buf[17:25], uint64(t.TimeStamp))
	binary.BigEndian.PutUint64(buf[25:33], uint64(t.Price))
	binary.BigEndian.PutUint32(buf[33:37], uint32(t.Quantity))
	buf[37] = byte(t.AggressorSide)
	return buf
}

// DecodeTrade parses a TRADE frame's payload.
func DecodeTrade(payload []byte) (orders.Trade, error) {
	n, _ := payloadLen(MessageTrade)
	if len(payload) < n {
		return orders.Trade{}, errShortBuffer
	}
	return orders.Trade{
		MakerOrderId:  orders.OrderId(binary.BigEndian.Uint64(payload[0:8])),
		TakerOrderId:  orders.OrderId(binary.BigEndian.Uint64(payload[8:16])),
		TimeStamp:     orders.TimeStamp(binary.BigEndian.Uint64(payload[16:24])),
		Price:         orders.Price(binary.BigEndian.Uint64(payload[24:32])),
		Quantity:      orders.Quantity(binary.BigEndian.Uint32(payload[32:36])),
		AggressorSide: orders.Side(payload[36]),
	}, nil
}

// EncodeLoginResponse writes a LOGIN_RESPONSE frame.
func EncodeLoginResponse(clientID orders.ClientId) []byte {
	buf := make([]byte, 1+4)
	buf[0] = byte(MessageLoginResponse)
	binary.BigEndian.PutUint32(buf[1:5], uint32(clientID))
	return buf
}

// DecodeLoginResponse parses a LOGIN_RESPONSE frame's payload.
func DecodeLoginResponse(payload []byte) (orders.ClientId, error) {
	if len(payload) < 4 {
		return 0, errShortBuffer
	}
	return orders.ClientId(binary.BigEndian.Uint32(payload[0:4])), nil
}
