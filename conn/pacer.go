package conn

import (
	"time"

	"github.com/udtproto/udt/packet"
	"github.com/udtproto/udt/seq"
)

// synInterval is the 10ms rate-control tick referenced by §4.3 step 5's
// freeze delay.
const synInterval = 10 * time.Millisecond

// PackData implements the §4.3 pacer: called by a mux.SndQueue worker each
// time this connection reaches the head of its scheduling list. It returns
// the wire bytes to hand to the channel (nil if there is nothing to send
// right now) and the time the scheduler should next consider this
// connection. A zero nextSendTime means "don't reinsert; wait for
// SetReadyNotifier's callback to wake this connection again."
func (c *Connection) PackData(now time.Time) (out []byte, nextSendTime time.Time, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		return nil, time.Time{}, false
	}

	var data []byte
	var s seq.Value
	var msgNo seq.Msg
	var first, last, inOrder bool
	retransmit := false

	if lossSeq, has := c.sndLoss.PopFirst(); has {
		d, mn, f, l, io, found := c.snd.Retransmit(lossSeq, now)
		if !found {
			// The block already aged out of the in-flight set (e.g.
			// expired by TTL); drop this loss entry and let the next pop
			// surface the real work.
			return nil, now, false
		}
		data, s, msgNo, first, last, inOrder = d, lossSeq, mn, f, l, io
		retransmit = true
	} else {
		limit := minF(c.flowWindow, c.ctrl.CWnd())
		if limit <= 0 {
			limit = 16
		}
		if seq.Sub(seq.Add(c.sndCurrSeq, 1), c.sndLastAck) >= seq.Size(limit) {
			return nil, time.Time{}, false // window-bound; ACK/notifyReady wakes us
		}
		d, ns, mn, f, l, io, found := c.snd.NextToSend(now)
		if !found {
			return nil, time.Time{}, false // nothing queued; Send() wakes us
		}
		data, s, msgNo, first, last, inOrder = d, ns, mn, f, l, io
		c.sndCurrSeq = s
	}

	buf := make([]byte, packet.HeaderSize+len(data))
	p, err := packet.New(buf)
	if err != nil {
		return nil, now, false
	}
	elapsed := uint32(now.Sub(c.startTime).Microseconds())
	flags := uint8(0)
	if first {
		flags |= packet.MsgFirst
	}
	if last {
		flags |= packet.MsgLast
	}
	p.SetDataHeader(s, elapsed, flags, inOrder, msgNo, c.peerSocketID)
	copy(p.Payload(), data)
	c.ctrl.OnPktSent(c.ccContextLocked())
	c.counters.pktSent++
	if retransmit {
		c.counters.retransmits++
	}

	period := c.ctrl.PktSndPeriod()
	next := now.Add(period)
	if !retransmit && uint32(s)%16 == 0 {
		// A probe pair's second packet must leave back-to-back with the
		// first so the receiver's TimeWindow can read bottleneck capacity
		// from their arrival spacing (§4.3 step 5, GLOSSARY "Probe pair").
		next = now
	}
	if c.ctrl.ConsumeFreeze() {
		next = next.Add(synInterval)
	}
	return buf, next, true
}

func minF(a, b float64) float64 {
	if a <= 0 {
		return b
	}
	if b <= 0 {
		return a
	}
	if a < b {
		return a
	}
	return b
}
