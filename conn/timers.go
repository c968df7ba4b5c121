package conn

import (
	"errors"
	"log/slog"
	"time"

	"github.com/udtproto/udt/packet"
	"github.com/udtproto/udt/seq"
)

// errPeerSilent is the sticky reason recorded when the EXP timer exceeds
// brokenThreshold consecutive firings with no response from the peer.
var errPeerSilent = errors.New("conn: peer silent past broken threshold")

// CheckTimers runs the §4.3 per-connection timer battery: ACK, NAK, SYN and
// EXP. mux.RcvQueue's timer sweep calls it for every tracked connection,
// at most once per 50 ms read timeout, after each received datagram or
// read timeout, so idle connections still get serviced.
func (c *Connection) CheckTimers(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnected {
		return
	}
	rttFloor := c.rtt
	if rttFloor <= 0 {
		rttFloor = synInterval
	}
	if rttFloor < synInterval {
		rttFloor = synInterval
	}

	if now.Sub(c.lastAckSend) >= rttFloor {
		c.maybeSendAckLocked(now)
	}
	if now.Sub(c.lastNakSend) >= rttFloor {
		c.checkNakTimerLocked(now)
	}
	if now.Sub(c.lastSynTick) >= synInterval {
		c.lastSynTick = now
		// §4.3's SYN-timer rate-control tick maps onto the Controller
		// contract's OnTimeout callback: the interface (§4.6) lists no
		// separate on_timer hook, and OnTimeout is otherwise only reached
		// from here since EXP-driven retransmit is handled directly below.
		c.ctrl.OnTimeout(c.ccContextLocked())
	}
	c.checkExpTimerLocked(now)
}

// checkNakTimerLocked rebuilds and sends a NAK from whatever the receiver
// loss list's back-off schedule says is due (§4.3's NAK-timer, §3's
// get_for_nak).
func (c *Connection) checkNakTimerLocked(now time.Time) {
	rtt := c.rtt
	if rtt <= 0 {
		rtt = synInterval
	}
	ranges := c.rcvLoss.GetForNAK(now, rtt, 64)
	if len(ranges) == 0 {
		return
	}
	pairs := make([][2]seq.Value, 0, len(ranges))
	for _, r := range ranges {
		pairs = append(pairs, [2]seq.Value{r.Start, r.End})
	}
	c.sendNakLocked(pairs, now)
}

// checkExpTimerLocked implements the §4.3 EXP-timer: exponential back-off
// keyed on silence from the peer, forcing retransmit of unacked data (or a
// keepalive if nothing is outstanding), and declaring the connection
// BROKEN after brokenThreshold consecutive firings with no progress.
func (c *Connection) checkExpTimerLocked(now time.Time) {
	if now.Sub(c.lastRecv) < c.expBack.Wait() {
		return
	}
	c.expCount++
	c.lastRecv = now // restart the interval for the next firing
	c.expBack.Advance()

	if c.expCount > brokenThreshold {
		c.markBroken(errPeerSilent)
		return
	}

	if c.snd != nil && !c.snd.Empty() {
		for s := c.sndLastAck; s != c.snd.NextSeq(); s = seq.Add(s, 1) {
			c.sndLoss.Insert(s, s)
		}
		if notify := c.notifyReady; notify != nil {
			notify()
		}
		c.debug("conn:exp:retransmit-all", slog.Int("count", c.expCount))
	} else {
		c.sendControlLocked(packet.Keepalive, 0, nil)
		c.debug("conn:exp:keepalive", slog.Int("count", c.expCount))
	}
}
