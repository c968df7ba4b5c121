package buffer

import (
	"errors"

	"github.com/udtproto/udt/seq"
)

var (
	errOutOfWindow = errors.New("buffer: sequence number outside receive window")
	errBufferFull  = errors.New("buffer: receive buffer full")
)

// rcvUnit is one slot of the receive ring, addressed modulo capacity like a
// byte ring but specialized to whole packets: occupied reports whether a
// packet has landed in the slot.
type rcvUnit struct {
	occupied bool
	data     []byte
	msgNo    seq.Msg
	first    bool
	last     bool
	inOrder  bool
}

// RcvBuffer reassembles incoming data packets, which may arrive out of
// order or with gaps, back into delivery-ordered application messages. It
// is a ring of capacity slots addressed by sequence number modulo
// capacity, with base tracking the oldest not-yet-delivered sequence (the
// receive window's low edge, i.e. the application's read cursor).
type RcvBuffer struct {
	units    []rcvUnit
	base     seq.Value
	occupied int
	readOff  int // bytes already consumed from the unit at base, for stream Read
}

// NewRcvBuffer returns an RcvBuffer with room for capacity packets,
// addressing sequence numbers starting at startSeq.
func NewRcvBuffer(capacity int, startSeq seq.Value) *RcvBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &RcvBuffer{units: make([]rcvUnit, capacity), base: startSeq}
}

// Capacity returns the maximum number of in-flight packets the buffer can
// hold.
func (b *RcvBuffer) Capacity() int { return len(b.units) }

// Free returns how many more packets can be accepted before the buffer is
// full, used to advertise flow-window size in outgoing ACKs.
func (b *RcvBuffer) Free() int { return len(b.units) - b.occupied }

// Base returns the lowest sequence number not yet delivered to the
// application: everything below it has been read out. It is not the
// data-ack value; the connection tracks that separately.
func (b *RcvBuffer) Base() seq.Value { return b.base }

// Insert places a data packet's payload into the ring at its sequence
// number. Insertion of an already-occupied or out-of-window slot is a
// duplicate/too-far-ahead packet and is rejected; the caller is expected to
// have already checked against the loss list before calling Insert.
func (b *RcvBuffer) Insert(s seq.Value, data []byte, msgNo seq.Msg, first, last, inOrder bool) error {
	off := seq.Sub(s, b.base)
	if int(off) >= len(b.units) {
		return errOutOfWindow
	}
	idx := b.ringIndex(int(off))
	if b.units[idx].occupied {
		return nil // duplicate, already have it
	}
	if b.occupied == len(b.units) {
		return errBufferFull
	}
	b.units[idx] = rcvUnit{occupied: true, data: data, msgNo: msgNo, first: first, last: last, inOrder: inOrder}
	b.occupied++
	return nil
}

// Read drains stream-mode bytes from the readable prefix into p, ignoring
// message boundaries: a send call's payload is reassembled strictly in
// sequence-number order regardless of where the framing said a message
// started or ended (§4.7's recv, as opposed to the atomic recvmsg). It
// returns ok=false if the unit at base is still a gap (nothing ready yet).
func (b *RcvBuffer) Read(p []byte) (n int, ok bool) {
	for n < len(p) {
		idx := b.ringIndex(0)
		u := &b.units[idx]
		if !u.occupied {
			break
		}
		avail := u.data[b.readOff:]
		m := copy(p[n:], avail)
		n += m
		b.readOff += m
		if b.readOff >= len(u.data) {
			b.units[idx] = rcvUnit{}
			b.occupied--
			b.base = seq.Add(b.base, 1)
			b.readOff = 0
			continue
		}
		break // p is full but the unit has more; next Read resumes mid-unit
	}
	return n, n > 0
}

// Readable reports whether at least one byte is available to Read without
// blocking.
func (b *RcvBuffer) Readable() bool {
	return b.units[b.ringIndex(0)].occupied
}

func (b *RcvBuffer) ringIndex(off int) int {
	idx := int(uint32(b.base)%uint32(len(b.units))) + off
	if idx >= len(b.units) {
		idx -= len(b.units)
	}
	return idx
}

// ReadMessage drains the next complete, contiguous message starting at
// base, if one is fully present. It returns ok=false if base's slot is
// still empty (a gap) or the message isn't fully received yet.
func (b *RcvBuffer) ReadMessage() (data []byte, ok bool) {
	startIdx := b.ringIndex(0)
	if !b.units[startIdx].occupied || !b.units[startIdx].first {
		return nil, false
	}
	// Scan forward for the unit carrying the "last" flag, verifying every
	// intermediate slot is occupied and shares the same message number.
	msgNo := b.units[startIdx].msgNo
	n := 1
	for {
		idx := b.ringIndex(n - 1)
		if !b.units[idx].occupied || b.units[idx].msgNo != msgNo {
			return nil, false
		}
		if b.units[idx].last {
			break
		}
		n++
		if n > len(b.units) {
			return nil, false // malformed: no terminating block within window
		}
	}
	var out []byte
	for i := 0; i < n; i++ {
		idx := b.ringIndex(i)
		out = append(out, b.units[idx].data...)
		b.units[idx] = rcvUnit{}
	}
	b.occupied -= n
	b.base = seq.Add(b.base, seq.Size(n))
	return out, true
}
