package api

import (
	"net/netip"

	"github.com/udtproto/udt/cc"
	"github.com/udtproto/udt/conn"
	"github.com/udtproto/udt/mux"
)

// mplexResolver is the mux.Resolver view one multiplexer's RcvQueue
// dispatches through. It never sees another multiplexer's sockets: ids
// are globally unique so Lookup can consult the Runtime's shared table
// directly, but LookupRendezvous's "spawn a child for this listener" path
// is scoped to this binding's own listener.
type mplexResolver struct {
	rt      *Runtime
	binding *muxBinding
}

func (r *mplexResolver) Lookup(socketID uint32) (mux.Conn, bool) {
	r.rt.mu.Lock()
	s, ok := r.rt.sockets[socketID]
	r.rt.mu.Unlock()
	if !ok {
		return nil, false
	}
	if s.Conn() == nil {
		return nil, false
	}
	return s, true
}

func (r *mplexResolver) LookupRendezvous(from netip.AddrPort) (mux.Conn, bool) {
	key := pendingKey{mplexID: r.binding.mplex.ID, peer: from}
	r.rt.mu.Lock()
	if s, ok := r.rt.pending[key]; ok {
		r.rt.mu.Unlock()
		return s, true
	}
	listener := r.binding.listener
	r.rt.mu.Unlock()
	if listener == nil {
		return nil, false
	}
	child, err := r.rt.spawnChild(listener, from)
	if err != nil {
		return nil, false
	}
	return child, true
}

// spawnChild creates a fresh Socket+Connection to handle a first-contact
// handshake arriving at listener (§4.5's passive-open fan-out: one
// Connection per peer, distinct from the listening socket itself).
func (rt *Runtime) spawnChild(listener *Socket, from netip.AddrPort) (*Socket, error) {
	listener.mu.Lock()
	mplex := listener.mplex
	cfg := listener.cfg
	listener.mu.Unlock()
	if mplex == nil {
		return nil, errNoListener
	}

	rt.mu.Lock()
	id := rt.ids.Alloc()
	child := &Socket{id: id, cfg: cfg, state: sockConnecting, mplex: mplex, listener: listener}
	c := conn.New(conn.RoleListener, mplex.LocalAddr(), id, cfg, sndQueueSender{mplex.Snd}, cc.NewDAIMD(), rt.log)
	c.SetReadyNotifier(func() { mplex.Snd.Wake(id) })
	child.conn = c
	rt.sockets[id] = child
	rt.pending[pendingKey{mplexID: mplex.ID, peer: from}] = child
	rt.mu.Unlock()

	mplex.Acquire()
	mplex.Rcv.Track(id, child)
	mplex.Snd.Register(id, c)
	return child, nil
}
