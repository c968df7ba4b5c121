package mux

import (
	"context"
	"log/slog"
	"net/netip"
	"sync"

	"github.com/rs/xid"
	"golang.org/x/sync/errgroup"

	"github.com/udtproto/udt/channel"
)

// Key identifies a reusable (local_address, UDP-socket-options) tuple
// (§4.2): sockets bind into the multiplexer matching their options, or a
// new one is created for a disjoint option set.
type Key struct {
	LocalAddr netip.AddrPort
	ReuseAddr bool
}

// Multiplexer is the per-local-endpoint shared state of §4.2: one UDP
// channel, one SndQueue, one RcvQueue, and a reference count tracking how
// many connections currently bind to it. It owns the sender-scheduler and
// receiver-dispatcher goroutines for as long as at least one connection
// references it.
type Multiplexer struct {
	ID  string // xid correlation id, for log lines spanning both goroutines
	Key Key

	ch    *channel.Channel
	units *UnitQueue
	Snd   *SndQueue
	Rcv   *RcvQueue

	log *slog.Logger

	mu       sync.Mutex
	refCount int
	cancel   context.CancelFunc
	group    *errgroup.Group
	started  bool
}

// New binds a UDP channel at key.LocalAddr with the given channel options
// and returns a Multiplexer ready to have connections registered, tagged
// with a fresh correlation id (grounded on the pack's xid usage for
// correlating exported stat rows across goroutines).
func New(key Key, opts channel.Options, res Resolver, log *slog.Logger) (*Multiplexer, error) {
	ch, err := channel.Listen(key.LocalAddr, opts)
	if err != nil {
		return nil, err
	}
	units := NewUnitQueue(opts.MSS)
	m := &Multiplexer{
		ID:    xid.New().String(),
		Key:   key,
		ch:    ch,
		units: units,
		log:   log,
	}
	m.Snd = NewSndQueue(ch, log)
	m.Rcv = NewRcvQueue(ch, units, res, log)
	return m, nil
}

// LocalAddr returns the bound UDP address, which may differ from
// key.LocalAddr if the caller requested an ephemeral port.
func (m *Multiplexer) LocalAddr() netip.AddrPort { return m.ch.LocalAddr() }

// Start launches the sender-scheduler and receiver-dispatcher goroutines,
// coordinated through an errgroup (the pack's tinyrange-cc dependency on
// golang.org/x/sync, reused here in place of hand-rolled WaitGroup/error
// plumbing). Calling Start on an already-started multiplexer is a no-op.
func (m *Multiplexer) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.Snd.Run(gctx) })
	g.Go(func() error { return m.Rcv.Run(gctx) })
	m.group = g
}

// Acquire increments the reference count, called when a connection binds
// to this multiplexer.
func (m *Multiplexer) Acquire() {
	m.mu.Lock()
	m.refCount++
	m.mu.Unlock()
}

// Release decrements the reference count and, if it reaches zero, stops
// the multiplexer's goroutines and closes its channel (§5: "the channel is
// owned by the multiplexer and lives as long as any connection refers to
// it"). It reports whether this call tore the multiplexer down.
func (m *Multiplexer) Release() bool {
	m.mu.Lock()
	m.refCount--
	dead := m.refCount <= 0
	cancel := m.cancel
	m.mu.Unlock()
	if !dead {
		return false
	}
	if cancel != nil {
		cancel()
	}
	if m.group != nil {
		m.group.Wait()
	}
	m.ch.Close()
	return true
}

// RefCount reports the current number of connections bound to this
// multiplexer.
func (m *Multiplexer) RefCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refCount
}
