package conn

import (
	"sync"
	"time"

	"github.com/udtproto/udt"
)

// maxSndBufBytes bounds how much unpacketized+in-flight data a connection
// will hold before Send blocks or returns ErrWouldBlock (§4.7, §6's SNDBUF).
func (c *Connection) maxSndBufBytes() int {
	if c.cfg.SndBuf <= 0 {
		return 8192 * 1500
	}
	return c.cfg.SndBuf * c.mss
}

// Send implements §4.7's stream-mode send: append data to the send buffer,
// blocking (if SNDSYN) until there's room, the connection breaks, or
// SNDTIMEO elapses. now stamps the message's origin time for ttl expiry.
func (c *Connection) Send(data []byte, ttl time.Duration, inOrder bool, now time.Time) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline, hasDeadline := c.sendDeadlineLocked(now)
	for c.snd != nil && c.snd.Pending()+c.snd.InFlight()+len(data) > c.maxSndBufBytes() {
		if c.state == StateBroken || c.state == StateClosed {
			return 0, udt.ErrBroken
		}
		if !c.cfg.SndSyn {
			return 0, udt.ErrWouldBlock
		}
		if !c.waitLocked(c.sendBlockCond, deadline, hasDeadline) {
			return 0, udt.ErrTimeout
		}
	}
	if c.state == StateBroken || c.state == StateClosed {
		return 0, udt.ErrBroken
	}
	if c.state != StateConnected {
		return 0, udt.ErrWrongState
	}
	if err := c.snd.AddMessage(data, c.mss, ttl, inOrder, now); err != nil {
		return 0, err
	}
	if notify := c.notifyReady; notify != nil {
		notify()
	}
	return len(data), nil
}

// SendMsg is Send with message-mode framing made explicit: each call is one
// atomic application message, reassembled and delivered whole by RecvMsg
// (§4.7's sendmsg/recvmsg, §8's "message atomicity" invariant).
func (c *Connection) SendMsg(data []byte, ttl time.Duration, inOrder bool, now time.Time) (int, error) {
	return c.Send(data, ttl, inOrder, now)
}

// Recv implements §4.7's stream-mode recv: drain up to len(buf) bytes from
// the readable prefix of the receive buffer, blocking (if RCVSYN) until
// data arrives, the connection breaks, or RCVTIMEO elapses.
func (c *Connection) Recv(buf []byte, now time.Time) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline, hasDeadline := c.recvDeadlineLocked(now)
	for c.rcv == nil || !c.rcv.Readable() {
		if c.state == StateBroken || c.state == StateClosed {
			return 0, udt.ErrBroken
		}
		if c.state != StateConnected {
			return 0, udt.ErrWrongState
		}
		if !c.cfg.RcvSyn {
			return 0, udt.ErrWouldBlock
		}
		if !c.waitLocked(c.recvDataCond, deadline, hasDeadline) {
			return 0, udt.ErrTimeout
		}
	}
	n, _ := c.rcv.Read(buf)
	c.maybeSendAckLocked(now)
	return n, nil
}

// RecvMsg implements §4.7's atomic recvmsg: it returns one complete
// application message; if the next message isn't fully reassembled yet it
// blocks (RCVSYN) or returns udt.ErrWouldBlock. Per §8's message-atomicity invariant, a message whose
// byte length exceeds len(buf) is dropped entirely and reported via
// udt.ErrBufferFull rather than returned as a truncated prefix.
func (c *Connection) RecvMsg(buf []byte, now time.Time) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline, hasDeadline := c.recvDeadlineLocked(now)
	for {
		var data []byte
		var ok bool
		if c.rcv != nil {
			data, ok = c.rcv.ReadMessage()
		}
		if ok {
			if len(data) > len(buf) {
				return 0, udt.ErrBufferFull
			}
			n := copy(buf, data)
			c.maybeSendAckLocked(now)
			return n, nil
		}
		if c.state == StateBroken || c.state == StateClosed {
			return 0, udt.ErrBroken
		}
		if c.state != StateConnected {
			return 0, udt.ErrWrongState
		}
		if !c.cfg.RcvSyn {
			return 0, udt.ErrWouldBlock
		}
		if !c.waitLocked(c.recvDataCond, deadline, hasDeadline) {
			return 0, udt.ErrTimeout
		}
	}
}

// ReadReady reports whether Recv/RecvMsg would return without blocking:
// data is waiting, or the connection is broken (so the caller observes
// the failure instead of hanging in select, per §7).
func (c *Connection) ReadReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateBroken || c.state == StateClosed {
		return true
	}
	return c.rcv != nil && c.rcv.Readable()
}

// WriteReady reports whether Send/SendMsg would return without blocking.
func (c *Connection) WriteReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateBroken || c.state == StateClosed {
		return true
	}
	return c.snd == nil || c.snd.Pending()+c.snd.InFlight() < c.maxSndBufBytes()
}

// sendDeadlineLocked/recvDeadlineLocked translate the configured SNDTIMEO/
// RCVTIMEO (0 = infinite, per §6) into an absolute deadline for waitLocked.
func (c *Connection) sendDeadlineLocked(now time.Time) (time.Time, bool) {
	if c.cfg.SndTimeo <= 0 {
		return time.Time{}, false
	}
	return now.Add(c.cfg.SndTimeo), true
}

func (c *Connection) recvDeadlineLocked(now time.Time) (time.Time, bool) {
	if c.cfg.RcvTimeo <= 0 {
		return time.Time{}, false
	}
	return now.Add(c.cfg.RcvTimeo), true
}

// waitLocked blocks on cond until woken, reporting false if deadline has
// already passed by the time it wakes. It must be called with c.mu held;
// cond must be bound to c.mu. sync.Cond has no deadline-aware wait, so a
// deadline is enforced by a timer goroutine that broadcasts the same cond
// on expiry, the standard way to bound a condvar wait without busy-polling.
func (c *Connection) waitLocked(cond *sync.Cond, deadline time.Time, hasDeadline bool) bool {
	if !hasDeadline {
		cond.Wait()
		return true
	}
	if !time.Now().Before(deadline) {
		return false
	}
	timer := time.AfterFunc(time.Until(deadline), cond.Broadcast)
	defer timer.Stop()
	cond.Wait()
	return time.Now().Before(deadline)
}
