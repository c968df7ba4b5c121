// Package packet implements the wire codec for the transport: a fixed
// 16-byte header (four 32-bit words) plus a variable control/payload body,
// big-endian on the wire. It mirrors the Frame-over-[]byte idiom used
// throughout this codebase's protocol codecs: a thin value type wrapping a
// byte slice with accessor/mutator pairs, no hidden allocation, validated
// once up front by the caller.
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/udtproto/udt/seq"
)

// HeaderSize is the size in bytes of the four-word packet header.
const HeaderSize = 16

var (
	// ErrShort is returned when a buffer is too small to hold a header.
	ErrShort = errors.New("packet: buffer shorter than header")
)

// Type identifies a control packet's purpose. The zero value is Handshake; data
// packets do not carry a Type (they carry a sequence number in word 0 instead).
type Type uint8

// Control packet types, matching the 3-bit field at bits 30-28 of word 0.
const (
	Handshake       Type = 0b000
	Keepalive       Type = 0b001
	Ack             Type = 0b010
	Nak             Type = 0b011
	CongestionWarn  Type = 0b100
	Shutdown        Type = 0b101
	Ack2            Type = 0b110
	Ext             Type = 0b111
)

func (t Type) String() string {
	switch t {
	case Handshake:
		return "HANDSHAKE"
	case Keepalive:
		return "KEEPALIVE"
	case Ack:
		return "ACK"
	case Nak:
		return "NAK"
	case CongestionWarn:
		return "CONGESTION_WARN"
	case Shutdown:
		return "SHUTDOWN"
	case Ack2:
		return "ACK2"
	case Ext:
		return "EXT"
	default:
		return "TYPE(" + fmt.Sprint(uint8(t)) + ")"
	}
}

// Message boundary flags, packed into the top 3 bits of word 1 on data
// packets in message mode.
const (
	MsgFirst  uint8 = 1 << 2
	MsgLast   uint8 = 1 << 1
	MsgOrder  uint8 = 1 << 0
	msgFlagsShift    = 29
	msgFlagsMask     = 0b111
)

const (
	kindBit       = uint32(1) << 31
	ctrlTypeShift = 28
	ctrlTypeMask  = 0b111
	extTypeShift  = 16
	extTypeMask   = 0xFFF
	ackSeqMask    = 0xFFFF
)

// Packet is a thin view over a caller-owned byte slice holding one wire
// packet: header plus body. A Packet never owns or copies its buffer.
type Packet struct {
	buf []byte
}

// New wraps buf as a Packet. buf must be at least HeaderSize bytes.
func New(buf []byte) (Packet, error) {
	if len(buf) < HeaderSize {
		return Packet{}, ErrShort
	}
	return Packet{buf: buf}, nil
}

// RawData returns the underlying buffer, header and body included.
func (p Packet) RawData() []byte { return p.buf }

// IsControl reports whether the kind bit (word 0, bit 31) marks this as a
// control packet.
func (p Packet) IsControl() bool {
	return binary.BigEndian.Uint32(p.buf[0:4])&kindBit != 0
}

// Seq returns the data packet's sequence number. Only meaningful if
// !IsControl().
func (p Packet) Seq() seq.Value {
	return seq.Value(binary.BigEndian.Uint32(p.buf[0:4]) &^ kindBit)
}

// SetDataHeader writes a data-packet header: sequence number in word 0,
// timestamp (and, in message mode, boundary flags) in word 1, message
// number in word 2, destination socket id in word 3. timestampUs must
// already be masked to 29 bits by the caller if msgFlags/inOrder are
// meaningful; the top 3 bits are always overwritten here.
func (p Packet) SetDataHeader(s seq.Value, timestampUs uint32, msgFlags uint8, inOrder bool, msgNo seq.Msg, destSocketID uint32) {
	binary.BigEndian.PutUint32(p.buf[0:4], uint32(s.Mask()))
	flags := msgFlags & 0b110
	if inOrder {
		flags |= MsgOrder
	}
	w1 := (timestampUs &^ (msgFlagsMask << msgFlagsShift)) | (uint32(flags) << msgFlagsShift)
	binary.BigEndian.PutUint32(p.buf[4:8], w1)
	binary.BigEndian.PutUint32(p.buf[8:12], uint32(msgNo))
	binary.BigEndian.PutUint32(p.buf[12:16], destSocketID)
}

// MsgNo returns the message number carried in word 2 of a data packet.
func (p Packet) MsgNo() seq.Msg {
	return seq.Msg(binary.BigEndian.Uint32(p.buf[8:12]))
}

// Timestamp returns word 1 of a data packet, masked of any message-boundary
// flag bits.
func (p Packet) Timestamp() uint32 {
	return binary.BigEndian.Uint32(p.buf[4:8]) &^ (msgFlagsMask << msgFlagsShift)
}

// MsgFlags returns the message-boundary flags carried in the top bits of
// word 1 of a data packet in message mode.
func (p Packet) MsgFlags() (flags uint8, inOrder bool) {
	w1 := binary.BigEndian.Uint32(p.buf[4:8])
	top := uint8(w1>>msgFlagsShift) & msgFlagsMask
	return top &^ MsgOrder, top&MsgOrder != 0
}

// Payload returns the bytes following the header.
func (p Packet) Payload() []byte {
	return p.buf[HeaderSize:]
}

// ControlType returns the control type field (bits 30-28 of word 0). Only
// meaningful if IsControl().
func (p Packet) ControlType() Type {
	w0 := binary.BigEndian.Uint32(p.buf[0:4])
	return Type((w0 >> ctrlTypeShift) & ctrlTypeMask)
}

// AckSeq returns the ACK-sequence sub-field (bits 15-0) carried by ACK/ACK2
// control packets.
func (p Packet) AckSeq() uint32 {
	return binary.BigEndian.Uint32(p.buf[0:4]) & ackSeqMask
}

// ExtType returns the extended-subtype sub-field (bits 27-16) carried by EXT
// control packets.
func (p Packet) ExtType() uint16 {
	return uint16((binary.BigEndian.Uint32(p.buf[0:4]) >> extTypeShift) & extTypeMask)
}

// DestSocketID returns word 3: the destination socket id, carried in the
// same position on both data and control packets so the receiver dispatcher
// can route on it without first checking IsControl().
func (p Packet) DestSocketID() uint32 {
	return binary.BigEndian.Uint32(p.buf[12:16])
}

// Pack constructs a control packet header in place. subfield carries the
// ACK-sequence for Ack/Ack2, or the extended subtype for Ext; it is ignored
// for the remaining types. Word 1 (reserved for control packets) and word 2
// (data-only message number) are zeroed.
func Pack(buf []byte, typ Type, subfield uint32, destSocketID uint32) (Packet, error) {
	p, err := New(buf)
	if err != nil {
		return Packet{}, err
	}
	w0 := kindBit | (uint32(typ)&ctrlTypeMask)<<ctrlTypeShift
	switch typ {
	case Ack, Ack2:
		w0 |= subfield & ackSeqMask
	case Ext:
		w0 |= (subfield & extTypeMask) << extTypeShift
	}
	binary.BigEndian.PutUint32(buf[0:4], w0)
	binary.BigEndian.PutUint32(buf[4:8], 0)
	binary.BigEndian.PutUint32(buf[8:12], 0)
	binary.BigEndian.PutUint32(buf[12:16], destSocketID)
	return p, nil
}

// Body returns the control-packet body (everything past the 16-byte header).
func (p Packet) Body() []byte { return p.buf[HeaderSize:] }
