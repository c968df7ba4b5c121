package api

import (
	"net/netip"
	"sync"
	"time"

	"github.com/udtproto/udt"
	"github.com/udtproto/udt/config"
	"github.com/udtproto/udt/conn"
	"github.com/udtproto/udt/mux"
)

// sockState tracks the parts of §3's connection lifecycle the API layer
// itself must know about, beyond what conn.Connection's own State already
// tracks (listening and the API-level closed state aren't conn concerns).
type sockState int

const (
	sockOpened sockState = iota
	sockListening
	sockConnecting
	sockConnected
	sockClosed
)

// Socket is one entry in the process-wide socket table (§4.8): the API
// layer's handle onto a conn.Connection, plus the bits that live above the
// engine (accept queue, last-error slot, close time).
type Socket struct {
	id  uint32
	mu  sync.Mutex
	cfg config.Config

	state sockState
	conn  *conn.Connection
	mplex *mux.Multiplexer

	// acceptQueue receives newly-connected Sockets spawned by incoming
	// handshakes on a listening socket (§4.8's accept queue).
	acceptQueue chan *Socket

	// listener is set on a child Socket spawned by spawnChild: the
	// listening Socket whose accept queue it joins once its handshake
	// completes. Nil for a listener itself and for an active/rendezvous
	// connect.
	listener *Socket

	lastErr *udt.Error // per-Socket "last error" slot (§7's thread-local, adapted)

	closedAt time.Time // set on Close; not read, as Close frees the socket at once
}

// SocketID returns the wire-level UDTSOCKET id.
func (s *Socket) SocketID() uint32 { return s.id }

// Conn returns the underlying engine connection, or nil for a listening
// socket that hasn't accepted anything yet.
func (s *Socket) Conn() *conn.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// setLastError records err as this socket's last error, returning the
// sentinel -1 the legacy socket API uses for "call failed, check
// getlasterror" (§6, §7).
func (s *Socket) setLastError(err *udt.Error) int {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	return -1
}

// GetLastError returns the error most recently recorded with setLastError,
// or nil. Socket's own methods return their errors directly and do not
// record them here.
func (s *Socket) GetLastError() *udt.Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// PeerAddr returns the connection's negotiated peer address.
func (s *Socket) PeerAddr() netip.AddrPort {
	s.mu.Lock()
	c := s.conn
	s.mu.Unlock()
	if c == nil {
		return netip.AddrPort{}
	}
	return c.PeerAddr()
}

// LocalAddr returns the socket's bound local address.
func (s *Socket) LocalAddr() netip.AddrPort {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mplex == nil {
		return netip.AddrPort{}
	}
	return s.mplex.LocalAddr()
}

// Send implements the socket API's send() (§4.7/§4.8): stream-mode write.
func (s *Socket) Send(data []byte) (int, error) {
	c, err := s.boundConn()
	if err != nil {
		return 0, err
	}
	return c.Send(data, s.msgTTL(), false, time.Now())
}

// Recv implements the socket API's recv() (§4.7/§4.8): stream-mode read.
func (s *Socket) Recv(buf []byte) (int, error) {
	c, err := s.boundConn()
	if err != nil {
		return 0, err
	}
	return c.Recv(buf, time.Now())
}

// SendMsg implements sendmsg(): one atomic application message.
func (s *Socket) SendMsg(data []byte, inOrder bool) (int, error) {
	c, err := s.boundConn()
	if err != nil {
		return 0, err
	}
	return c.SendMsg(data, s.msgTTL(), inOrder, time.Now())
}

// RecvMsg implements recvmsg(): one atomic application message.
func (s *Socket) RecvMsg(buf []byte) (int, error) {
	c, err := s.boundConn()
	if err != nil {
		return 0, err
	}
	return c.RecvMsg(buf, time.Now())
}

func (s *Socket) msgTTL() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.MsgTTL
}

func (s *Socket) boundConn() (*conn.Connection, error) {
	s.mu.Lock()
	c := s.conn
	state := s.state
	s.mu.Unlock()
	if c == nil || state == sockClosed {
		return nil, udt.ErrWrongState
	}
	return c, nil
}

// Readable reports whether Recv would return data without blocking, for
// Select's poll loop.
func (s *Socket) Readable() bool {
	c, err := s.boundConn()
	if err != nil {
		return false
	}
	return c.ReadReady()
}

// Writable reports whether Send would accept data without blocking, for
// Select's poll loop.
func (s *Socket) Writable() bool {
	c, err := s.boundConn()
	if err != nil {
		return false
	}
	return c.WriteReady()
}
