// Package buffer implements the sender and receiver data buffers (§3):
// SndBuffer holds application messages awaiting packetization and
// retransmission, RcvBuffer reassembles packets arriving out of order back
// into messages. Both generalize the ordered-range bookkeeping the teacher
// uses for its TCP retransmission queue (tcp/txqueue.go's sentlist, an
// append-only slice of in-flight segments trimmed by cumulative ack) from
// byte ranges to whole UDT blocks, and a fixed-capacity ring addressed by
// sequence number modulo capacity for the receiver's reassembly buffer.
package buffer

import (
	"errors"
	"time"

	"github.com/udtproto/udt/seq"
)

var (
	errNoData          = errors.New("buffer: message has no data")
	errMessageTooLarge = errors.New("buffer: message exceeds maximum size")
)

// block is one packetization unit of an application message: at most MSS
// bytes of payload plus the metadata needed to build a data packet header
// and to know when the message as a whole should be dropped.
type block struct {
	data       []byte
	msgNo      seq.Msg
	first      bool
	last       bool
	inOrder    bool
	originTime time.Time
	ttl        time.Duration // 0 means no expiry

	seq    seq.Value // assigned once packetized, valid only for sent entries.
	sentAt time.Time
}

// SndBuffer queues outgoing application messages, splits them into
// MSS-sized blocks as they're sent, and retains sent-but-unacknowledged
// blocks for retransmission, mirroring the unsent/sent split of the
// teacher's ringTx.
type SndBuffer struct {
	pending []block // not yet packetized, FIFO order
	sent    []block // packetized, ordered by ascending seq (sentlist.pkts analogue)

	nextSeq  seq.Value
	nextMsg  seq.Msg
	pendingBytes int
}

// NewSndBuffer returns an SndBuffer that will assign sequence numbers
// starting at initialSeq.
func NewSndBuffer(initialSeq seq.Value) *SndBuffer {
	return &SndBuffer{nextSeq: initialSeq}
}

// AddMessage enqueues an application message for transmission, splitting it
// into ceil(len(data)/mss) blocks sharing one message number. ttl==0 means
// the message never expires; inOrder requests in-order delivery at the
// receiver (§3's "in order" message flag).
func (b *SndBuffer) AddMessage(data []byte, mss int, ttl time.Duration, inOrder bool, now time.Time) error {
	if len(data) == 0 {
		return errNoData
	}
	if mss <= 0 {
		mss = 1500
	}
	n := (len(data) + mss - 1) / mss
	if n > int(seq.MaxMsg) {
		return errMessageTooLarge
	}
	msgNo := b.nextMsg
	b.nextMsg = seq.AddMsg(b.nextMsg, 1)
	for i := 0; i < n; i++ {
		lo := i * mss
		hi := lo + mss
		if hi > len(data) {
			hi = len(data)
		}
		b.pending = append(b.pending, block{
			data:       data[lo:hi],
			msgNo:      msgNo,
			first:      i == 0,
			last:       i == n-1,
			inOrder:    inOrder,
			originTime: now,
			ttl:        ttl,
		})
		b.pendingBytes += hi - lo
	}
	return nil
}

// Pending reports the number of bytes queued but not yet packetized for
// sending.
func (b *SndBuffer) Pending() int { return b.pendingBytes }

// InFlight reports the number of bytes packetized and sent but not yet
// acknowledged.
func (b *SndBuffer) InFlight() int {
	n := 0
	for _, blk := range b.sent {
		n += len(blk.data)
	}
	return n
}

// NextToSend pops the oldest pending block, assigns it the next sequence
// number, and moves it to the in-flight set, returning the payload,
// sequence, message number, and message-boundary/order flags needed to
// build a data packet header.
func (b *SndBuffer) NextToSend(now time.Time) (data []byte, s seq.Value, msgNo seq.Msg, first, last, inOrder bool, ok bool) {
	if len(b.pending) == 0 {
		return nil, 0, 0, false, false, false, false
	}
	blk := b.pending[0]
	b.pending = b.pending[1:]
	b.pendingBytes -= len(blk.data)
	blk.seq = b.nextSeq
	b.nextSeq = seq.Add(b.nextSeq, 1)
	blk.sentAt = now
	b.sent = append(b.sent, blk)
	return blk.data, blk.seq, blk.msgNo, blk.first, blk.last, blk.inOrder, true
}

// Retransmit looks up an in-flight block by sequence number for NAK-driven
// retransmission, refreshing its sentAt.
func (b *SndBuffer) Retransmit(s seq.Value, now time.Time) (data []byte, msgNo seq.Msg, first, last, inOrder bool, ok bool) {
	for i := range b.sent {
		if b.sent[i].seq == s {
			b.sent[i].sentAt = now
			blk := &b.sent[i]
			return blk.data, blk.msgNo, blk.first, blk.last, blk.inOrder, true
		}
	}
	return nil, 0, false, false, false, false
}

// Ack discards every in-flight block with sequence strictly before ackSeq:
// the peer has cumulatively acknowledged everything up to it, so it can
// never be retransmitted (§3's data ACK semantics).
func (b *SndBuffer) Ack(ackSeq seq.Value) {
	i := 0
	for i < len(b.sent) && seq.LessThan(b.sent[i].seq, ackSeq) {
		i++
	}
	b.sent = b.sent[i:]
}

// Expire returns the sequence numbers of in-flight blocks whose TTL has
// elapsed as of now, and removes them from the in-flight set (§4.4: an
// expired message is dropped rather than retransmitted). Blocks with
// ttl==0 never expire.
func (b *SndBuffer) Expire(now time.Time) []seq.Value {
	var expired []seq.Value
	kept := b.sent[:0]
	for _, blk := range b.sent {
		if blk.ttl > 0 && now.Sub(blk.originTime) > blk.ttl {
			expired = append(expired, blk.seq)
			continue
		}
		kept = append(kept, blk)
	}
	b.sent = kept
	return expired
}

// Empty reports whether there is no pending or in-flight data.
func (b *SndBuffer) Empty() bool {
	return len(b.pending) == 0 && len(b.sent) == 0
}

// NextSeq returns the sequence number that will be assigned to the next
// block handed out by NextToSend, used by the EXP timer as the end of the
// unacknowledged range it queues for retransmission.
func (b *SndBuffer) NextSeq() seq.Value { return b.nextSeq }
