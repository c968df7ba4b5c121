package mux

import (
	"context"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"github.com/udtproto/udt/internal"
	"github.com/udtproto/udt/timer"
)

// ChannelSender is the narrow dependency SndQueue needs from channel.Channel
// (or channel.PairPipe in tests): write one datagram to dst.
type ChannelSender interface {
	Send(payload []byte, dst netip.AddrPort) error
}

// SndQueue is the sender-scheduler half of a multiplexer (§4.2): one
// goroutine draining a priority list of connections keyed by
// next_send_time, pacing data packets out through the shared channel.
// Control packets never pass through here; SendControl writes them
// straight to the channel, matching §4.2's "control packets... bypass the
// list... high priority and sent immediately."
type SndQueue struct {
	mu   sync.Mutex
	cond *sync.Cond
	list *sndUList
	ch   ChannelSender
	log  *slog.Logger

	closed bool

	// wakeCancel cancels the context Run is currently blocked on inside
	// timer.SleepTo, if any. Wake uses it to interrupt a pending sleep the
	// moment a connection's next_send_time moves earlier, rather than
	// waiting out whatever wait Run last computed (§5: the pacer's
	// sleep_to is interruptible).
	wakeCancel context.CancelFunc
}

// NewSndQueue returns a SndQueue driving ch, not yet started.
func NewSndQueue(ch ChannelSender, log *slog.Logger) *SndQueue {
	q := &SndQueue{list: newSndUList(), ch: ch, log: log}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Register adds a connection to the scheduling list with an immediate
// next_send_time, so it gets its first PackData poll right away (typically
// called once a handshake completes and data may start flowing).
func (q *SndQueue) Register(socketID uint32, c pacerConn) {
	q.mu.Lock()
	q.list.Upsert(socketID, c, time.Now())
	q.cond.Broadcast()
	q.mu.Unlock()
}

// Wake moves socketID to the head of the list for immediate reconsideration
// (api wires this in as conn.Connection.SetReadyNotifier's
// callback: new data queued, a retransmit, or a window that just opened).
func (q *SndQueue) Wake(socketID uint32) {
	q.mu.Lock()
	if e, ok := q.list.entries[socketID]; ok {
		q.list.Upsert(socketID, e.conn, time.Now())
	}
	q.cond.Broadcast()
	if q.wakeCancel != nil {
		q.wakeCancel()
	}
	q.mu.Unlock()
}

// Remove evicts a closed/broken connection from the scheduling list.
func (q *SndQueue) Remove(socketID uint32) {
	q.mu.Lock()
	q.list.Remove(socketID)
	q.mu.Unlock()
}

// SendControl writes a control packet directly to the channel, bypassing
// the scheduling list entirely (§4.2).
func (q *SndQueue) SendControl(payload []byte, dst netip.AddrPort) error {
	return q.ch.Send(payload, dst)
}

// Run drives the scheduler loop until ctx is canceled: pop the list's
// earliest-due connection, sleep until its next_send_time if it hasn't
// arrived yet, pack and send a packet, and reinsert the connection at the
// next_send_time it reported, or idleRepollInterval later if it reported
// none (§4.2's SndQueue algorithm).
func (q *SndQueue) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		q.mu.Lock()
		q.closed = true
		q.cond.Broadcast()
		if q.wakeCancel != nil {
			q.wakeCancel()
		}
		q.mu.Unlock()
	}()

	for {
		q.mu.Lock()
		for q.list.Len() == 0 && !q.closed {
			q.cond.Wait()
		}
		if q.closed {
			q.mu.Unlock()
			return ctx.Err()
		}
		entry, _ := q.list.Peek()
		now := time.Now()
		if entry.nextSendTime.After(now) {
			sleepCtx, cancel := context.WithCancel(ctx)
			q.wakeCancel = cancel
			q.mu.Unlock()
			// Interruptible: Wake cancels sleepCtx the instant this or any
			// other connection's next_send_time moves earlier, so a newly
			// ready connection doesn't wait out a stale sleep (§5).
			timer.SleepTo(sleepCtx, entry.nextSendTime)
			cancel()
			q.mu.Lock()
			q.wakeCancel = nil
			q.mu.Unlock()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		q.list.Pop()
		q.mu.Unlock()

		pkt, next, ok := entry.conn.PackData(now)
		if ok && pkt != nil {
			if err := q.ch.Send(pkt, entry.conn.PeerAddr()); err != nil {
				internal.LogAttrs(q.log, slog.LevelWarn, "sndqueue:send-failed",
					slog.Uint64("socket_id", uint64(entry.socketID)), slog.String("err", err.Error()))
			}
		}
		if next.IsZero() {
			// Window-bound or idle: Wake (driven by SetReadyNotifier) is the
			// primary way back onto the list; idleRepollInterval is a
			// fallback so a missed wake doesn't strand the connection.
			next = now.Add(idleRepollInterval)
		}
		q.mu.Lock()
		q.list.Upsert(entry.socketID, entry.conn, next)
		q.mu.Unlock()
	}
}

// idleRepollInterval bounds how long a window-bound or idle connection
// waits for its next PackData poll if SetReadyNotifier's Wake call is
// somehow missed.
const idleRepollInterval = time.Second
