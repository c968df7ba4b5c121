package conn

import (
	"github.com/udtproto/udt/metrics"
)

// Snapshot returns the §6 performance snapshot for this connection: the
// cumulative totals plus the instantaneous pacing/window/RTT/bandwidth
// view, suitable for exporting via metrics.Collector or a perfmon call.
func (c *Connection) Snapshot() metrics.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	var flight, availSnd, availRcv float64
	if c.snd != nil {
		flight = float64(c.snd.InFlight()) / float64(maxInt(c.mss, 1))
		availSnd = float64(c.maxSndBufBytes() - c.snd.Pending() - c.snd.InFlight())
	}
	if c.rcv != nil {
		availRcv = float64(c.rcv.Free() * c.mss)
	}
	return metrics.Snapshot{
		PktSent:        c.counters.pktSent,
		PktRecv:        c.counters.pktRecv,
		AcksSent:       c.counters.acksSent,
		NaksSent:       c.counters.naksSent,
		Retransmits:    c.counters.retransmits,
		PktLostSend:    c.counters.pktLostSend,
		PktLostRecv:    c.counters.pktLostRecv,
		PktSndPeriodUs: float64(c.ctrl.PktSndPeriod().Microseconds()),
		FlowWindow:     c.flowWindow,
		CWndSize:       c.ctrl.CWnd(),
		FlightSize:     flight,
		RTTMs:          float64(c.rtt.Microseconds()) / 1000,
		BandwidthMbps:  c.bandwidth * float64(c.mss) * 8 / 1e6,
		AvailSndBytes:  availSnd,
		AvailRcvBytes:  availRcv,
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
