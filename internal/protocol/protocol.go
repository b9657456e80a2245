// Package protocol implements the binary control-message codec spoken to the
// APBA over its UART link. Every message is a 4-byte header {type:u16,
// size:u16} followed by size payload bytes; all multi-byte fields are
// little-endian on the wire regardless of host byte order.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Message types.
const (
	TypeIntReason   uint16 = 0x01 // APBA -> host: interrupt reason notification
	TypePMWakeAck   uint16 = 0x02 // APBA -> host: wake handshake ack
	TypePMSleepAck  uint16 = 0x03 // APBA -> host: sleep handshake ack
	TypePMSleepInd  uint16 = 0x04 // APBA -> host: sleep indication
	TypeLogInd      uint16 = 0x05 // APBA -> host: log payload
	TypeLogRequest  uint16 = 0x06 // host -> APBA request; echoed back as the ack
	TypeModeRequest uint16 = 0x07 // host -> APBA request; echoed back as the ack
	TypeBaudRequest uint16 = 0x08 // host -> APBA: baud rate change request
	TypeBaudAck     uint16 = 0x09 // APBA -> host: baud rate change ack
)

const (
	// HeaderLen is the fixed message header size.
	HeaderLen = 4

	// MaxPayload is the largest payload the APBA sends in a single message.
	MaxPayload = 2048
)

var (
	// ErrShort is returned when a buffer is smaller than the message header.
	ErrShort = errors.New("protocol: message shorter than header")

	// ErrTruncated is returned when the declared size exceeds the buffer.
	ErrTruncated = errors.New("protocol: payload truncated")

	// ErrBadPayload is returned when a payload does not match its type.
	ErrBadPayload = errors.New("protocol: payload size mismatch")
)

// BaudAck is the payload of a TypeBaudAck message.
type BaudAck struct {
	Baud     uint32
	Accepted bool
}

func appendHeader(b []byte, typ uint16, size int) []byte {
	b = binary.LittleEndian.AppendUint16(b, typ)
	b = binary.LittleEndian.AppendUint16(b, uint16(size))
	return b
}

// EncodeHeaderOnly builds a bare-header message such as a log request.
func EncodeHeaderOnly(typ uint16) []byte {
	return appendHeader(make([]byte, 0, HeaderLen), typ, 0)
}

// EncodeModeRequest builds a mode change request.
func EncodeModeRequest(mode uint8) []byte {
	b := appendHeader(make([]byte, 0, HeaderLen+1), TypeModeRequest, 1)
	return append(b, mode)
}

// EncodeBaudRequest builds a baud rate change request.
func EncodeBaudRequest(baud uint32) []byte {
	b := appendHeader(make([]byte, 0, HeaderLen+4), TypeBaudRequest, 4)
	return binary.LittleEndian.AppendUint32(b, baud)
}

// Message is a decoded inbound message. Payload aliases the decode buffer.
type Message struct {
	Type    uint16
	Payload []byte
}

// Decode parses one message from buf. The declared size must fit within the
// buffer; trailing bytes beyond it are ignored.
func Decode(buf []byte) (Message, error) {
	if len(buf) < HeaderLen {
		return Message{}, ErrShort
	}
	typ := binary.LittleEndian.Uint16(buf)
	size := int(binary.LittleEndian.Uint16(buf[2:]))
	if size > len(buf)-HeaderLen {
		return Message{}, fmt.Errorf("%w: declared %d, have %d", ErrTruncated, size, len(buf)-HeaderLen)
	}
	return Message{Type: typ, Payload: buf[HeaderLen : HeaderLen+size]}, nil
}

// IntReason extracts the reason code from a TypeIntReason payload.
func (m Message) IntReason() (uint16, error) {
	if len(m.Payload) < 2 {
		return 0, ErrBadPayload
	}
	return binary.LittleEndian.Uint16(m.Payload), nil
}

// BaudAck extracts the payload of a TypeBaudAck message.
func (m Message) BaudAck() (BaudAck, error) {
	if len(m.Payload) < 5 {
		return BaudAck{}, ErrBadPayload
	}
	return BaudAck{
		Baud:     binary.LittleEndian.Uint32(m.Payload),
		Accepted: m.Payload[4] != 0,
	}, nil
}
