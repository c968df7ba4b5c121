package mux

import (
	"context"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"github.com/udtproto/udt/internal"
)

// Conn is the narrow dependency RcvQueue needs from conn.Connection to
// deliver an inbound datagram and service its timers. Exported (rather
// than package-private) so api's socket table, which lives outside this
// package, can implement Resolver and hand back its own Connection-backed
// sockets as this type.
type Conn interface {
	HandlePacket(raw []byte, from netip.AddrPort, now time.Time) error
	CheckTimers(now time.Time)
	SocketID() uint32
}

// ChannelReceiver is the narrow dependency RcvQueue needs from
// channel.Channel: read one datagram, with a short timeout so the worker
// periodically returns to service timers even when idle (§4.2, §5).
type ChannelReceiver interface {
	Recv(ctx context.Context, buf []byte) (n int, src netip.AddrPort, err error)
	SetReadTimeout(d time.Duration) error
}

// Resolver looks up the connection a freshly-arrived packet is destined
// for, by its wire-level destination socket id, and the rendezvous table
// fallback for an unsolicited id-0 handshake. It is satisfied by api's
// socket table so mux never depends on api directly.
type Resolver interface {
	// Lookup returns the connection bound to socketID, or ok=false if none
	// is registered (stale/unknown id, dropped per §4.1's failure rule).
	Lookup(socketID uint32) (Conn, bool)
	// LookupRendezvous matches an unsolicited handshake (destSocketID==0)
	// against a peer address, for the symmetric connect path (§4.2, §4.5).
	LookupRendezvous(from netip.AddrPort) (Conn, bool)
}

// recvReadTimeout bounds how long one Channel.Recv call blocks before the
// dispatcher wakes up to run CheckTimers on every known connection, even
// with no inbound traffic (§5: "the dispatcher never suspends except in
// recvfrom, short timeout to allow timer checks").
const recvReadTimeout = 50 * time.Millisecond

// RcvQueue is the receiver-dispatcher half of a multiplexer (§4.2): one
// goroutine reading datagrams off the shared channel, demultiplexing them
// by destination socket id, and handing each to its connection.
type RcvQueue struct {
	ch    ChannelReceiver
	units *UnitQueue
	res   Resolver
	log   *slog.Logger

	mu       sync.Mutex
	tracked  map[uint32]Conn // every connection seen, for the timer sweep
	lastTick time.Time
	sweepBuf []Conn // reused across sweeps instead of reallocated each tick
}

// NewRcvQueue returns an RcvQueue reading datagrams off ch and resolving
// destinations through res.
func NewRcvQueue(ch ChannelReceiver, units *UnitQueue, res Resolver, log *slog.Logger) *RcvQueue {
	return &RcvQueue{ch: ch, units: units, res: res, log: log, tracked: make(map[uint32]Conn)}
}

// Track registers a connection so its timers get serviced even when no
// packets are currently arriving for it.
func (q *RcvQueue) Track(socketID uint32, c Conn) {
	q.mu.Lock()
	q.tracked[socketID] = c
	q.mu.Unlock()
}

// Untrack removes a closed/broken connection from the timer sweep.
func (q *RcvQueue) Untrack(socketID uint32) {
	q.mu.Lock()
	delete(q.tracked, socketID)
	q.mu.Unlock()
}

// Run drives the dispatcher loop until ctx is canceled: reserve a Unit,
// read one datagram into it, resolve and dispatch it, then run the timer
// sweep across every tracked connection (§4.2's RcvQueue algorithm).
func (q *RcvQueue) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// The read deadline is absolute, so it is re-armed before every read.
		q.ch.SetReadTimeout(recvReadTimeout)
		u := q.units.Get()
		n, from, err := q.ch.Recv(ctx, u.Buf)
		now := time.Now()
		if err != nil {
			q.units.Put(u)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			q.runTimerSweep(now)
			continue
		}
		if n <= 16 {
			// Short read (≤ header): silently dropped per §4.1.
			q.units.Put(u)
			q.runTimerSweep(now)
			continue
		}
		q.dispatch(u.Buf[:n], from, now)
		q.units.Put(u)
		q.runTimerSweep(now)
	}
}

func (q *RcvQueue) dispatch(raw []byte, from netip.AddrPort, now time.Time) {
	destID := destSocketID(raw)
	var target Conn
	var ok bool
	if destID == 0 {
		target, ok = q.res.LookupRendezvous(from)
	} else {
		target, ok = q.res.Lookup(destID)
	}
	if !ok {
		internal.LogAttrs(q.log, slog.LevelDebug, "rcvqueue:unknown-dest",
			slog.Uint64("dest_socket_id", uint64(destID)))
		return
	}
	if err := target.HandlePacket(raw, from, now); err != nil {
		internal.LogAttrs(q.log, slog.LevelDebug, "rcvqueue:handle-error",
			slog.Uint64("dest_socket_id", uint64(destID)), slog.String("err", err.Error()))
	}
}

// destSocketID reads word 3 (bytes 12:16) directly rather than constructing
// a packet.Packet, since the dispatcher only needs the routing field before
// it knows which connection (and therefore which validation) applies.
func destSocketID(raw []byte) uint32 {
	if len(raw) < 16 {
		return 0
	}
	return uint32(raw[12])<<24 | uint32(raw[13])<<16 | uint32(raw[14])<<8 | uint32(raw[15])
}

// runTimerSweep calls CheckTimers on every tracked connection, throttled to
// once per recvReadTimeout so a burst of inbound traffic doesn't turn this
// into a busy loop.
func (q *RcvQueue) runTimerSweep(now time.Time) {
	q.mu.Lock()
	if now.Sub(q.lastTick) < recvReadTimeout {
		q.mu.Unlock()
		return
	}
	q.lastTick = now
	internal.SliceReuse(&q.sweepBuf, len(q.tracked))
	for _, c := range q.tracked {
		q.sweepBuf = append(q.sweepBuf, c)
	}
	conns := q.sweepBuf
	q.mu.Unlock()
	for _, c := range conns {
		c.CheckTimers(now)
	}
}
