package conn

import (
	"log/slog"
	"net/netip"
	"time"

	"github.com/udtproto/udt"
	"github.com/udtproto/udt/cc"
	"github.com/udtproto/udt/packet"
	"github.com/udtproto/udt/seq"
)

// HandlePacket is the single dispatch entry point a multiplexer's receiver
// goroutine calls for every datagram addressed to this connection.
func (c *Connection) HandlePacket(raw []byte, from netip.AddrPort, now time.Time) error {
	p, err := packet.New(raw)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateBroken || c.state == StateClosed {
		return udt.ErrBroken
	}
	c.lastRecv = now
	c.expCount = 0
	c.expBack.Reset()

	if !p.IsControl() {
		return c.processDataLocked(p, now)
	}
	switch p.ControlType() {
	case packet.Handshake:
		addrLen := 4
		if from.Addr().Is6() && !from.Addr().Is4In6() {
			addrLen = 16
		}
		body, err := packet.ParseHandshake(p.Body(), addrLen)
		if err != nil {
			return err
		}
		reply, err := c.onHandshake(body, from, now)
		if err != nil {
			c.markBroken(err)
			return err
		}
		if reply != nil && c.sender != nil {
			return c.sender.Send(reply, from)
		}
		return nil
	case packet.Keepalive:
		return nil
	case packet.Ack:
		return c.processAckLocked(p, now)
	case packet.Nak:
		return c.processNakLocked(p, now)
	case packet.Ack2:
		return c.processAck2Locked(p, now)
	case packet.Shutdown:
		c.markBroken(udt.ErrBroken)
		return nil
	case packet.CongestionWarn:
		c.ctrl.OnCongestionWarning(c.ccContextLocked())
		return nil
	case packet.Ext:
		c.ctrl.ProcessCustomMsg(c.ccContextLocked(), p.Body())
		return nil
	default:
		return nil
	}
}

// sendControlLocked builds and immediately transmits a control packet,
// bypassing any scheduling: §4.2 states control packets are always high
// priority and go straight to the channel.
func (c *Connection) sendControlLocked(typ packet.Type, subfield uint32, body []byte) error {
	// The receiver dispatcher drops header-only datagrams as short reads, so
	// every control packet carries at least one (zero) body word.
	n := len(body)
	if n < 4 {
		n = 4
	}
	buf := make([]byte, packet.HeaderSize+n)
	p, err := packet.Pack(buf, typ, subfield, c.peerSocketID)
	if err != nil {
		return err
	}
	copy(p.Body(), body)
	if c.sender == nil {
		return nil
	}
	return c.sender.Send(buf, c.peerAddr)
}

// processDataLocked implements the §4.4 data-ingest algorithm.
func (c *Connection) processDataLocked(p packet.Packet, now time.Time) error {
	if c.state != StateConnected {
		return udt.ErrWrongState
	}
	s := p.Seq()
	c.counters.pktRecv++
	c.timeWin.OnPktArrival(now)
	switch uint32(s) % 16 {
	case 0:
		c.timeWin.Probe1Arrival(now)
	case 1:
		c.timeWin.Probe2Arrival(now)
	}

	if seq.GreaterThan(s, seq.Add(c.rcvCurrSeq, 1)) {
		gapStart := seq.Add(c.rcvCurrSeq, 1)
		gapEnd := prevSeq(s)
		c.counters.pktLostRecv += uint64(seq.Sub(gapEnd, gapStart)) + 1
		c.rcvLoss.Insert(gapStart, gapEnd)
		c.sendNakLocked([][2]seq.Value{{gapStart, gapEnd}}, now)
	}
	if seq.GreaterThan(s, c.rcvCurrSeq) {
		c.rcvCurrSeq = s
	} else {
		c.rcvLoss.Remove(s)
	}

	flags, inOrder := p.MsgFlags()
	first := flags&packet.MsgFirst != 0
	last := flags&packet.MsgLast != 0
	payload := append([]byte(nil), p.Payload()...)
	if err := c.rcv.Insert(s, payload, p.MsgNo(), first, last, inOrder); err != nil {
		c.debug("conn:data:drop", slog.Uint64("seq", uint64(s)), slog.String("reason", err.Error()))
	} else {
		c.recvDataCond.Broadcast()
	}
	c.maybeSendAckLocked(now)
	return nil
}

// sendNakLocked encodes and sends an immediate NAK for the given loss
// ranges (§4.4 step 3: a detected gap is reported without waiting for the
// NAK timer).
func (c *Connection) sendNakLocked(ranges [][2]seq.Value, now time.Time) {
	buf := make([]byte, len(ranges)*8)
	n, err := packet.PutNak(buf, ranges)
	if err != nil {
		return
	}
	c.sendControlLocked(packet.Nak, 0, buf[:n])
	c.lastNakSend = now
	c.counters.naksSent++
}

// maybeSendAckLocked implements §4.4's ACK-generation rule.
func (c *Connection) maybeSendAckLocked(now time.Time) {
	var dataAck seq.Value
	if m, ok := c.rcvLoss.FirstMissing(); ok {
		dataAck = m
	} else {
		dataAck = seq.Add(c.rcvCurrSeq, 1)
	}
	rttFloor := c.rtt
	if rttFloor <= 0 {
		rttFloor = 100 * time.Millisecond
	}
	if seq.LessThanEq(dataAck, c.rcvLastAck) && now.Sub(c.lastAckSend) <= 2*rttFloor {
		return
	}
	c.ackSeqNo++
	recvSpeed, _ := c.timeWin.RecvSpeed()
	bandwidth, _ := c.timeWin.Bandwidth()
	body := packet.AckBody{
		DataAck:   dataAck,
		RTT:       uint32(c.rtt.Microseconds()),
		RTTVar:    uint32(c.rttVar.Microseconds()),
		AvailBuf:  uint32(c.rcv.Free()),
		RecvSpeed: uint32(recvSpeed),
		Bandwidth: uint32(bandwidth),
	}
	buf := make([]byte, 24)
	n, err := packet.PutAck(buf, body)
	if err != nil {
		return
	}
	if err := c.sendControlLocked(packet.Ack, c.ackSeqNo, buf[:n]); err != nil {
		return
	}
	c.ackWin.Store(c.ackSeqNo, dataAck, now)
	c.rcvLastAck = dataAck
	c.lastAckSend = now
	c.counters.acksSent++
}

// processAckLocked handles an inbound ACK (§4.3 "Control reception - ACK").
func (c *Connection) processAckLocked(p packet.Packet, now time.Time) error {
	body, err := packet.ParseAck(p.Body())
	if err != nil {
		return err
	}
	ackSeq := p.AckSeq()
	if err := c.sendControlLocked(packet.Ack2, ackSeq, nil); err != nil {
		c.warn("conn:ack2:send-failed", slog.String("err", err.Error()))
	}
	if seq.GreaterThan(body.DataAck, c.sndLastAck) {
		c.sndLastAck = body.DataAck
	}
	c.sndLoss.Remove(prevSeq(body.DataAck))
	if c.snd != nil {
		c.snd.Ack(body.DataAck)
	}
	if !body.Lite {
		if body.RTT > 0 {
			sample := time.Duration(body.RTT) * time.Microsecond
			c.updateRTTLocked(sample)
		}
		if body.RecvSpeed > 0 {
			advertised := float64(body.RecvSpeed)
			syn := timerSYN(c.cfg)
			target := advertised * (c.rtt.Seconds() + syn.Seconds())
			c.flowWindow = 0.875*c.flowWindow + 0.125*target
		}
		if body.Bandwidth > 0 {
			c.bandwidth = 0.875*c.bandwidth + 0.125*float64(body.Bandwidth)
		}
	}
	c.ctrl.OnAck(c.ccContextLocked())
	if c.rtt > 0 {
		c.ctrl.ClampPeriod(c.rtt)
	}
	c.sendBlockCond.Broadcast()
	if notify := c.notifyReady; notify != nil {
		notify()
	}
	c.expCount = 0
	return nil
}

// processNakLocked handles an inbound NAK.
func (c *Connection) processNakLocked(p packet.Packet, now time.Time) error {
	ranges, err := packet.ParseNak(p.Body())
	if err != nil {
		return err
	}
	total := 0
	var first seq.Value
	haveFirst := false
	for _, r := range ranges {
		start, end := r[0], r[1]
		if seq.LessThan(start, c.sndLastAck) {
			start = c.sndLastAck // loss-list sum filtering: stale entries below snd_last_ack don't count
		}
		if seq.GreaterThan(start, end) {
			continue
		}
		c.sndLoss.Insert(start, end)
		n := int(seq.Sub(end, start)) + 1
		total += n
		c.counters.pktLostSend += uint64(n)
		if !haveFirst || seq.LessThan(start, first) {
			first = start
			haveFirst = true
		}
	}
	if haveFirst {
		c.ctrl.OnLoss(c.ccContextLocked(), first, total)
		if notify := c.notifyReady; notify != nil {
			notify()
		}
	}
	return nil
}

// processAck2Locked handles the receiver-side close of an ACK/ACK2 round
// trip (§4.4's "ACK2 handling").
func (c *Connection) processAck2Locked(p packet.Packet, now time.Time) error {
	ackSeq := p.AckSeq()
	_, rtt, err := c.ackWin.Ack2(ackSeq, now)
	if err != nil {
		return nil // unmatched/stale ACK2, nothing to do
	}
	c.updateRTTLocked(rtt)
	c.timeWin.Ack2Arrival(rtt)
	if c.timeWin.DelayTrend() && now.Sub(c.lastWarn) > 2*c.rtt {
		c.sendControlLocked(packet.CongestionWarn, 0, nil)
		c.lastWarn = now
	}
	return nil
}

// updateRTTLocked applies the §4.3 EWMA smoothing (α=1/8 for RTT, α=1/4 for
// variance).
func (c *Connection) updateRTTLocked(sample time.Duration) {
	if c.rtt == 0 {
		c.rtt = sample
		c.rttVar = sample / 2
		return
	}
	diff := sample - c.rtt
	if diff < 0 {
		diff = -diff
	}
	c.rttVar = c.rttVar + (diff-c.rttVar)/4
	c.rtt = c.rtt + (sample-c.rtt)/8
}

func timerSYN(cfg any) time.Duration { return 10 * time.Millisecond }

// ccContextLocked snapshots the fields the congestion controller needs.
func (c *Connection) ccContextLocked() cc.Context {
	delivered := float64(seq.Sub(c.sndLastAck, c.isn))
	return cc.Context{
		MSS:           c.mss,
		SYN:           10 * time.Millisecond,
		Bandwidth:     c.bandwidth,
		Delivered:     delivered,
		SndCurrSeq:    c.sndCurrSeq,
		MaxFlowWindow: c.flowWindow,
	}
}
