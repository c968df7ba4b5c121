package packet

import (
	"encoding/binary"
	"errors"

	"github.com/udtproto/udt/seq"
)

var errShortBody = errors.New("packet: control body too short")

// HandshakeBody is the decoded control body of a Handshake packet (§4.5, §6).
type HandshakeBody struct {
	Version        uint32
	ReqType        int32 // 1=caller request, -1=caller confirm, 0=rendezvous/listener reply
	InitialSeq     seq.Value
	MSS            uint32
	FlightFlagSize uint32
	ConnType       uint32
	SocketID       uint32
	Cookie         uint32
	// PeerAddress is 4 bytes for IPv4, 16 for IPv6.
	PeerAddress []byte
}

const handshakeFixedSize = 4 * 8 // eight 32-bit words before the variable address.

// PutHandshake encodes a handshake body into buf (which must be at least
// handshakeFixedSize+len(b.PeerAddress) bytes) and returns the bytes written.
func PutHandshake(buf []byte, b HandshakeBody) (int, error) {
	if len(buf) < handshakeFixedSize+len(b.PeerAddress) {
		return 0, errShortBody
	}
	binary.BigEndian.PutUint32(buf[0:4], b.Version)
	binary.BigEndian.PutUint32(buf[4:8], uint32(b.ReqType))
	binary.BigEndian.PutUint32(buf[8:12], uint32(b.InitialSeq))
	binary.BigEndian.PutUint32(buf[12:16], b.MSS)
	binary.BigEndian.PutUint32(buf[16:20], b.FlightFlagSize)
	binary.BigEndian.PutUint32(buf[20:24], b.ConnType)
	binary.BigEndian.PutUint32(buf[24:28], b.SocketID)
	binary.BigEndian.PutUint32(buf[28:32], b.Cookie)
	n := handshakeFixedSize + copy(buf[handshakeFixedSize:], b.PeerAddress)
	return n, nil
}

// ParseHandshake decodes a handshake body. addrLen must be 4 or 16.
func ParseHandshake(buf []byte, addrLen int) (HandshakeBody, error) {
	if len(buf) < handshakeFixedSize+addrLen {
		return HandshakeBody{}, errShortBody
	}
	b := HandshakeBody{
		Version:        binary.BigEndian.Uint32(buf[0:4]),
		ReqType:        int32(binary.BigEndian.Uint32(buf[4:8])),
		InitialSeq:     seq.Value(binary.BigEndian.Uint32(buf[8:12])),
		MSS:            binary.BigEndian.Uint32(buf[12:16]),
		FlightFlagSize: binary.BigEndian.Uint32(buf[16:20]),
		ConnType:       binary.BigEndian.Uint32(buf[20:24]),
		SocketID:       binary.BigEndian.Uint32(buf[24:28]),
		Cookie:         binary.BigEndian.Uint32(buf[28:32]),
	}
	b.PeerAddress = append([]byte(nil), buf[handshakeFixedSize:handshakeFixedSize+addrLen]...)
	return b, nil
}

// AckBody is the decoded body of a (full) Ack control packet.
type AckBody struct {
	DataAck      seq.Value
	RTT          uint32 // microseconds
	RTTVar       uint32 // microseconds
	AvailBuf     uint32 // bytes
	RecvSpeed    uint32 // packets/sec
	Bandwidth    uint32 // packets/sec
	Lite         bool   // Lite ACKs omit everything after DataAck.
}

const ackFullSize = 4 * 6
const ackLiteSize = 4

// PutAck encodes an Ack body. If b.Lite, only DataAck is written.
func PutAck(buf []byte, b AckBody) (int, error) {
	if b.Lite {
		if len(buf) < ackLiteSize {
			return 0, errShortBody
		}
		binary.BigEndian.PutUint32(buf[0:4], uint32(b.DataAck))
		return ackLiteSize, nil
	}
	if len(buf) < ackFullSize {
		return 0, errShortBody
	}
	binary.BigEndian.PutUint32(buf[0:4], uint32(b.DataAck))
	binary.BigEndian.PutUint32(buf[4:8], b.RTT)
	binary.BigEndian.PutUint32(buf[8:12], b.RTTVar)
	binary.BigEndian.PutUint32(buf[12:16], b.AvailBuf)
	binary.BigEndian.PutUint32(buf[16:20], b.RecvSpeed)
	binary.BigEndian.PutUint32(buf[20:24], b.Bandwidth)
	return ackFullSize, nil
}

// ParseAck decodes an Ack body of the given length (ackLiteSize or ackFullSize).
func ParseAck(buf []byte) (AckBody, error) {
	if len(buf) < ackLiteSize {
		return AckBody{}, errShortBody
	}
	b := AckBody{DataAck: seq.Value(binary.BigEndian.Uint32(buf[0:4]))}
	if len(buf) < ackFullSize {
		b.Lite = true
		return b, nil
	}
	b.RTT = binary.BigEndian.Uint32(buf[4:8])
	b.RTTVar = binary.BigEndian.Uint32(buf[8:12])
	b.AvailBuf = binary.BigEndian.Uint32(buf[12:16])
	b.RecvSpeed = binary.BigEndian.Uint32(buf[16:20])
	b.Bandwidth = binary.BigEndian.Uint32(buf[20:24])
	return b, nil
}

// PutNak encodes a loss-range list into a NAK body. A single missing
// sequence m is one word `m`; a range [a,b] is two words `a|0x80000000`
// then `b`. Ranges with a==b are encoded as a single word to save space.
func PutNak(buf []byte, ranges [][2]seq.Value) (int, error) {
	n := 0
	for _, r := range ranges {
		if r[0] == r[1] {
			if n+4 > len(buf) {
				return n, errShortBody
			}
			binary.BigEndian.PutUint32(buf[n:n+4], uint32(r[0]))
			n += 4
			continue
		}
		if n+8 > len(buf) {
			return n, errShortBody
		}
		binary.BigEndian.PutUint32(buf[n:n+4], uint32(r[0])|0x80000000)
		binary.BigEndian.PutUint32(buf[n+4:n+8], uint32(r[1]))
		n += 8
	}
	return n, nil
}

// ParseNak decodes a NAK body into loss ranges.
func ParseNak(buf []byte) ([][2]seq.Value, error) {
	var out [][2]seq.Value
	for i := 0; i < len(buf); {
		if i+4 > len(buf) {
			return nil, errShortBody
		}
		w := binary.BigEndian.Uint32(buf[i : i+4])
		if w&0x80000000 != 0 {
			if i+8 > len(buf) {
				return nil, errShortBody
			}
			a := seq.Value(w &^ 0x80000000)
			b := seq.Value(binary.BigEndian.Uint32(buf[i+4 : i+8]))
			out = append(out, [2]seq.Value{a, b})
			i += 8
		} else {
			out = append(out, [2]seq.Value{seq.Value(w), seq.Value(w)})
			i += 4
		}
	}
	return out, nil
}
