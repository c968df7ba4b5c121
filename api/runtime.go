// Package api implements the legacy socket-call surface (§4.8, §7): socket
// id allocation, the socket table, a multiplexer registry keyed by bound
// local address, the accept queue, and Select. It is the facade every
// other package's work is assembled behind, the way the teacher's top
// package wires its transport/session/control layers into one client type.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"github.com/udtproto/udt"
	"github.com/udtproto/udt/cc"
	"github.com/udtproto/udt/channel"
	"github.com/udtproto/udt/config"
	"github.com/udtproto/udt/conn"
	"github.com/udtproto/udt/mux"
)

// acceptQueueDepth bounds how many fully-handshaked, not-yet-accepted
// connections a listening socket will hold; a connection that completes
// its handshake while the queue is full is not queued for Accept (§4.8's
// accept queue, sized the way the teacher's sibling repos size a bounded
// work channel).
const acceptQueueDepth = 128

// pendingKey scopes an in-progress handshake's peer address to the
// multiplexer it arrived on, so two listeners on different local ports
// can both be mid-handshake with peers that happen to share an address
// (e.g. behind the same NAT).
type pendingKey struct {
	mplexID string
	peer    netip.AddrPort
}

// muxBinding is one bound local endpoint: its Multiplexer, the listening
// Socket using it (if any), and the Resolver view RcvQueue dispatches
// through.
type muxBinding struct {
	mplex    *mux.Multiplexer
	listener *Socket
	res      *mplexResolver
}

// Runtime is the explicitly-constructed context the process-default
// facade (NewSocket/Bind/Listen/... package-level functions) delegates to.
// Tests and multi-tenant callers construct their own Runtime instead of
// sharing process-global state.
type Runtime struct {
	log *slog.Logger
	ids *idAllocator

	mu       sync.Mutex
	sockets  map[uint32]*Socket
	muxes    map[mux.Key]*muxBinding
	pending  map[pendingKey]*Socket
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewRuntime returns an empty Runtime. log may be nil, in which case
// slog.Default() is used.
func NewRuntime(log *slog.Logger) *Runtime {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runtime{
		log:     log,
		ids:     newIDAllocator(),
		sockets: make(map[uint32]*Socket),
		muxes:   make(map[mux.Key]*muxBinding),
		pending: make(map[pendingKey]*Socket),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Shutdown tears down every multiplexer this Runtime owns. Sockets are not
// individually notified; callers should Close them first for an orderly
// shutdown.
func (rt *Runtime) Shutdown() {
	rt.cancel()
}

// Socket allocates a new unbound socket (the legacy socket() call, §4.8).
func (rt *Runtime) Socket(cfg config.Config) *Socket {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	id := rt.ids.Alloc()
	s := &Socket{id: id, cfg: cfg, state: sockOpened}
	rt.sockets[id] = s
	return s
}

// Close releases s: stops its connection (if any), untracks it from its
// multiplexer, removes it from the socket table and frees its socket id
// immediately. A closed socket does not stay in the table for a grace
// period, so a later packet addressed to its id finds no socket.
func (rt *Runtime) Close(s *Socket) error {
	s.mu.Lock()
	if s.state == sockClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = sockClosed
	s.closedAt = time.Now()
	c := s.conn
	m := s.mplex
	id := s.id
	s.mu.Unlock()

	if c != nil {
		c.Close()
		if m != nil {
			m.Rcv.Untrack(id)
			m.Snd.Remove(id)
		}
	}
	rt.mu.Lock()
	delete(rt.sockets, id)
	if m != nil && m.Release() {
		for k, b := range rt.muxes {
			if b.mplex == m {
				delete(rt.muxes, k)
			}
		}
	}
	rt.mu.Unlock()
	rt.ids.Free(id)
	return nil
}

// bindingLocked returns the muxBinding for key, creating (and starting)
// one if none exists yet.
func (rt *Runtime) bindingLocked(key mux.Key, opts channel.Options) (*muxBinding, error) {
	if b, ok := rt.muxes[key]; ok {
		return b, nil
	}
	b := &muxBinding{}
	b.res = &mplexResolver{rt: rt, binding: b}
	m, err := mux.New(key, opts, b.res, rt.log)
	if err != nil {
		return nil, err
	}
	b.mplex = m
	m.Start(rt.ctx)
	rt.muxes[key] = b
	return b, nil
}

func channelOpts(cfg config.Config) channel.Options {
	return channel.Options{
		SndBufBytes: cfg.UDPSndBuf,
		RcvBufBytes: cfg.UDPRcvBuf,
		ReuseAddr:   cfg.ReuseAddr,
		MSS:         cfg.MSS,
	}
}

// Bind associates s with a multiplexer at localAddr, creating one if this
// is the first socket to use that (address, options) pair (§4.2).
func (rt *Runtime) Bind(s *Socket, localAddr netip.AddrPort) error {
	s.mu.Lock()
	cfg := s.cfg
	if s.state != sockOpened {
		s.mu.Unlock()
		return udt.ErrWrongState
	}
	s.mu.Unlock()

	key := mux.Key{LocalAddr: localAddr, ReuseAddr: cfg.ReuseAddr}
	rt.mu.Lock()
	b, err := rt.bindingLocked(key, channelOpts(cfg))
	if err != nil {
		rt.mu.Unlock()
		return err
	}
	b.mplex.Acquire()
	rt.mu.Unlock()

	s.mu.Lock()
	s.mplex = b.mplex
	s.mu.Unlock()
	return nil
}

// Listen marks a bound socket as a listener, ready to Accept incoming
// connections (§4.5's passive open).
func (rt *Runtime) Listen(s *Socket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mplex == nil {
		return udt.ErrWrongState
	}
	if s.state != sockOpened {
		return udt.ErrWrongState
	}
	s.state = sockListening
	s.acceptQueue = make(chan *Socket, acceptQueueDepth)

	rt.mu.Lock()
	for _, b := range rt.muxes {
		if b.mplex == s.mplex {
			b.listener = s
		}
	}
	rt.mu.Unlock()
	return nil
}

// Accept blocks until an incoming connection finishes its handshake on
// s's multiplexer, or ctx is done.
func (rt *Runtime) Accept(ctx context.Context, s *Socket) (*Socket, error) {
	s.mu.Lock()
	if s.state != sockListening {
		s.mu.Unlock()
		return nil, udt.ErrWrongState
	}
	q := s.acceptQueue
	s.mu.Unlock()
	select {
	case child := <-q:
		return child, nil
	case <-ctx.Done():
		return nil, udt.ErrTimeout
	}
}

// Connect performs an active or rendezvous connect from s to peerAddr,
// blocking until the handshake completes, fails, or ctx is done.
func (rt *Runtime) Connect(ctx context.Context, s *Socket, peerAddr netip.AddrPort) error {
	s.mu.Lock()
	if s.mplex == nil {
		s.mu.Unlock()
		return udt.ErrWrongState
	}
	if s.state != sockOpened {
		s.mu.Unlock()
		return udt.ErrWrongState
	}
	role := conn.RoleCaller
	if s.cfg.Rendezvous {
		role = conn.RoleRendezvous
	}
	c := conn.New(role, s.mplex.LocalAddr(), s.id, s.cfg, sndQueueSender{s.mplex.Snd}, cc.NewDAIMD(), rt.log)
	c.SetReadyNotifier(func() { s.mplex.Snd.Wake(s.id) })
	s.conn = c
	s.state = sockConnecting
	mplex := s.mplex
	s.mu.Unlock()

	out, err := c.Connect(peerAddr, time.Now())
	if err != nil {
		return err
	}

	rt.mu.Lock()
	rt.sockets[s.id] = s
	rt.pending[pendingKey{mplexID: mplex.ID, peer: peerAddr}] = s
	rt.mu.Unlock()
	mplex.Rcv.Track(s.id, s)
	mplex.Snd.Register(s.id, c)

	if err := mplex.Snd.SendControl(out, peerAddr); err != nil {
		return err
	}

	for {
		switch c.State() {
		case conn.StateConnected:
			s.mu.Lock()
			s.state = sockConnected
			s.mu.Unlock()
			rt.mu.Lock()
			delete(rt.pending, pendingKey{mplexID: mplex.ID, peer: peerAddr})
			rt.mu.Unlock()
			return nil
		case conn.StateBroken, conn.StateClosed:
			rt.mu.Lock()
			delete(rt.pending, pendingKey{mplexID: mplex.ID, peer: peerAddr})
			rt.mu.Unlock()
			return fmt.Errorf("api: connect failed: %w", c.Err())
		}
		select {
		case <-time.After(5 * time.Millisecond):
		case <-ctx.Done():
			return udt.ErrTimeout
		}
	}
}

// errNoListener is returned internally when an unsolicited handshake
// arrives at a multiplexer with no listening socket to spawn a child for.
var errNoListener = errors.New("api: no listener for unsolicited handshake")
