// Package window implements the two sliding-window estimators the
// connection engine uses to turn ACK/ACK2 round trips and packet arrivals
// into RTT, bandwidth and delay-trend estimates: AckWindow and TimeWindow
// (§3, §4.4). Both are small fixed-capacity ring buffers addressed by
// index modulo capacity, specialized to fixed-size records.
package window

import (
	"errors"
	"sync"
	"time"

	"github.com/udtproto/udt/seq"
)

var errNoMatch = errors.New("window: no matching ack2")

// ackSeqMask restricts a stored ack sequence to the 16-bit wire field
// (packet.go's ackSeqMask): the on-the-wire ACK/ACK2 sub-field is only 16
// bits wide, so anything stored or matched against it must be reduced to
// the same range or the two diverge after the 16-bit counter wraps.
const ackSeqMask = 0xFFFF

// ackEntry records one outgoing ACK's sequence number, its carried data-ack
// pointer, and the time it was sent — the bookkeeping needed to compute RTT
// when the matching ACK2 arrives.
type ackEntry struct {
	ackSeq  uint32
	dataAck seq.Value
	sentAt  time.Time
}

// AckWindow correlates ACK/ACK2 round trips to derive a precise RTT sample.
// It is a ring of the last Capacity stores; Ack2 trims everything up to and
// including the matched entry once found, since older unmatched ACKs are no
// longer useful (the peer cannot ACK2 something it never received).
type AckWindow struct {
	mu   sync.Mutex
	buf  []ackEntry
	head int // index of the oldest entry
	n    int // number of valid entries
}

// DefaultCapacity matches the teacher's fixed-size circular-buffer windows
// (TimeWindow uses 16); AckWindow needs a larger horizon since ACKs are sent
// roughly once per RTT while many data packets flow between them.
const DefaultCapacity = 1024

// NewAckWindow returns an AckWindow with the given capacity (DefaultCapacity
// if cap<=0).
func NewAckWindow(capacity int) *AckWindow {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &AckWindow{buf: make([]ackEntry, capacity)}
}

// Store appends a new {ackSeq, dataAck} pair, timestamped now. If the ring
// is full the oldest (and by now almost certainly unusable) entry is
// overwritten.
func (w *AckWindow) Store(ackSeq uint32, dataAck seq.Value, now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ackSeq &= ackSeqMask
	idx := (w.head + w.n) % len(w.buf)
	w.buf[idx] = ackEntry{ackSeq: ackSeq, dataAck: dataAck, sentAt: now}
	if w.n < len(w.buf) {
		w.n++
	} else {
		w.head = (w.head + 1) % len(w.buf)
	}
}

// Ack2 looks up the entry stored under ackSeq, returning its dataAck and the
// elapsed RTT since it was stored. Entries older than the match are trimmed
// from the window (they can never be matched by a later, in-order ACK2).
func (w *AckWindow) Ack2(ackSeq uint32, now time.Time) (dataAck seq.Value, rtt time.Duration, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ackSeq &= ackSeqMask
	for i := 0; i < w.n; i++ {
		idx := (w.head + i) % len(w.buf)
		if w.buf[idx].ackSeq == ackSeq {
			e := w.buf[idx]
			// Trim this entry and everything older than it.
			w.head = (idx + 1) % len(w.buf)
			w.n -= i + 1
			rtt = now.Sub(e.sentAt)
			if rtt < 0 {
				rtt = 0
			}
			return e.dataAck, rtt, nil
		}
	}
	return 0, 0, errNoMatch
}
