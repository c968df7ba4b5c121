// Package conn implements the per-socket connection engine (§3, §4.3–§4.5):
// handshake negotiation, the NAK-driven sender/receiver data path, ACK/NAK/
// EXP/SYN timers, and the pluggable congestion controller hookup. It plays
// the role the teacher's tcp.Conn/ControlBlock pair plays for TCP — this
// package is the ControlBlock-equivalent state machine, built to be driven
// by a multiplexer's sender/receiver goroutines rather than owning them.
package conn

import (
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"github.com/udtproto/udt/buffer"
	"github.com/udtproto/udt/cc"
	"github.com/udtproto/udt/config"
	"github.com/udtproto/udt/internal"
	"github.com/udtproto/udt/losslist"
	"github.com/udtproto/udt/packet"
	"github.com/udtproto/udt/seq"
	"github.com/udtproto/udt/window"
)

// Sender is the narrow send-side dependency a Connection needs from its
// multiplexer's Channel: write one datagram to dst. Both channel.Channel and
// channel.PairPipe satisfy it.
type Sender interface {
	Send(payload []byte, dst netip.AddrPort) error
}

// brokenThreshold is the default number of consecutive unacknowledged
// EXP firings after which a connection is declared BROKEN (§4.3).
const brokenThreshold = 16

// expMinInterval/expMaxInterval bound the EXP timer's exponential back-off.
const (
	expMinInterval = 100 * time.Millisecond
	expMaxInterval = 5 * time.Second
)

// Connection is one socket's protocol state machine: handshake, buffers,
// loss lists, windows, congestion control and timers. It does not own a
// goroutine or a socket; a multiplexer drives it by calling HandlePacket on
// arrival, CheckTimers from its receive dispatcher's timer sweep, and
// PackData from its send scheduler.
type Connection struct {
	mu sync.Mutex
	logger

	role  Role
	state State

	localAddr netip.AddrPort
	peerAddr  netip.AddrPort

	socketID     uint32
	peerSocketID uint32

	cfg config.Config
	mss int

	snd *buffer.SndBuffer
	rcv *buffer.RcvBuffer

	sndLoss losslist.Sender
	rcvLoss losslist.Receiver

	ackWin  *window.AckWindow
	timeWin window.TimeWindow

	ctrl       cc.Controller
	isn        seq.Value // this side's initial sequence number, fixed for the connection's lifetime
	sndCurrSeq seq.Value
	sndLastAck seq.Value
	rcvCurrSeq seq.Value // highest sequence received without a gap, one before the next expected
	rcvLastAck seq.Value // value most recently sent in an ACK's data_ack field (§3's rcv_last_ack)

	sender Sender

	startTime time.Time

	rtt    time.Duration
	rttVar time.Duration

	flowWindow float64
	bandwidth  float64

	ackSeqNo    uint32
	lastAckSend time.Time
	lastNakSend time.Time
	lastWarn    time.Time
	lastRecv    time.Time
	lastSynTick time.Time

	expCount int
	expBack  internal.Backoff

	cookieJar     CookieJar
	localCookie   uint32
	peerCookie    uint32
	handshakeWant int32 // req_type most recently sent, for the caller/rendezvous retry check

	err error // sticky reason the connection went BROKEN/CLOSED

	sendBlockCond *sync.Cond // wakes a blocked Send when buffer space or brokenness appears
	recvDataCond  *sync.Cond // wakes a blocked Recv when data, a gap-fill, or brokenness appears
	notifyReady   func()     // tells the owning mux.SndQueue this connection has fresh work

	counters counters // §6 perfmon cumulative totals
}

// counters tallies the cumulative totals §6's performance snapshot reports.
type counters struct {
	pktSent     uint64
	pktRecv     uint64
	acksSent    uint64
	naksSent    uint64
	retransmits uint64
	pktLostSend uint64 // retransmits triggered by a NAK (sender-observed loss)
	pktLostRecv uint64 // gaps this receiver detected in the incoming sequence
}

// New returns a Connection in StateInit, ready to begin a handshake of the
// given role. socketID is this connection's wire-level UDTSOCKET id;
// peerSocketID is 0 until the handshake assigns one (listener/rendezvous).
func New(role Role, localAddr netip.AddrPort, socketID uint32, cfg config.Config, sender Sender, ctrl cc.Controller, log *slog.Logger) *Connection {
	if cfg.MSS <= 0 {
		cfg.MSS = 1500
	}
	if ctrl == nil {
		ctrl = cc.NewDAIMD()
	}
	c := &Connection{
		role:        role,
		state:       StateInit,
		localAddr:   localAddr,
		socketID:    socketID,
		cfg:         cfg,
		mss:         cfg.MSS,
		sndLoss:     losslist.Sender{},
		rcvLoss:     losslist.Receiver{},
		ackWin:      window.NewAckWindow(0),
		ctrl:        ctrl,
		sender:      sender,
		expBack:     internal.NewBackoff(expMinInterval, expMaxInterval),
		logger:      logger{log: log},
	}
	c.sendBlockCond = sync.NewCond(&c.mu)
	c.recvDataCond = sync.NewCond(&c.mu)
	return c
}

// SetReadyNotifier registers fn to be called (without holding c.mu) whenever
// this connection gains fresh work a sender scheduler should re-poll for:
// newly queued data, a retransmit entering the loss list, or a window that
// just opened up on ACK. A mux.SndQueue uses this to move the connection
// back to the head of its priority list instead of waiting out its last
// computed pkt_snd_period.
func (c *Connection) SetReadyNotifier(fn func()) {
	c.mu.Lock()
	c.notifyReady = fn
	c.mu.Unlock()
}

// readyNotifier returns the registered notifier, if any, for callers that
// need to invoke it just after releasing c.mu.
func (c *Connection) readyNotifier() func() { return c.notifyReady }

// reset must be called while holding c.mu. It clears per-handshake state so
// a Connection struct can be logically reused after a failed attempt.
func (c *Connection) reset() {
	c.state = StateInit
	c.expCount = 0
	c.expBack.Reset()
	c.err = nil
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Role returns which handshake shape this connection performs.
func (c *Connection) Role() Role { return c.role }

// SocketID returns this connection's local wire-level socket id.
func (c *Connection) SocketID() uint32 { return c.socketID }

// PeerAddr returns the negotiated remote address, valid once connected.
func (c *Connection) PeerAddr() netip.AddrPort {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerAddr
}

// RTT returns the current smoothed round-trip time estimate.
func (c *Connection) RTT() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rtt
}

// initialSeq picks a pseudo-random starting sequence number the way the
// teacher's handshake code picks an initial send sequence, via the shared
// xorshift generator rather than crypto/rand (sequence numbers are not a
// security boundary; see the rendezvous cookie for the one place that
// matters here).
func initialSeq(seed uint32) seq.Value {
	v := internal.Prand32(seed | 1)
	return seq.Value(v & (seq.MaxValue - 1))
}

// markBroken transitions to StateBroken, recording err as the reason and
// waking anything blocked on Send/Recv (§5's cancellation contract: broken
// connections fail every blocked call instead of hanging).
func (c *Connection) markBroken(err error) {
	if c.state == StateBroken || c.state == StateClosed {
		return
	}
	c.state = StateBroken
	c.err = err
	c.warn("conn:broken", slog.String("reason", err.Error()))
	c.sendBlockCond.Broadcast()
	c.recvDataCond.Broadcast()
}

// Err returns the sticky error that broke or closed the connection, if any.
func (c *Connection) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close begins an orderly shutdown: a Shutdown control packet is sent to
// the peer (best effort) and the connection moves to StateClosed. Removing
// it from dispatch is left to its owner: api's Runtime.Close untracks it
// and frees its socket id at once, with no grace period.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed || c.state == StateBroken {
		return nil
	}
	c.state = StateClosed
	c.debug("conn:close", slog.Uint64("socket_id", uint64(c.socketID)))
	c.sendBlockCond.Broadcast()
	c.recvDataCond.Broadcast()
	return c.sendControlLocked(packet.Shutdown, 0, nil)
}

// Broken reports whether the connection is in StateBroken or StateClosed,
// the condition every blocking Send/Recv call checks to unblock (§5's
// cancellation contract).
func (c *Connection) Broken() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateBroken || c.state == StateClosed
}
