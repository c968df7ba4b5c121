package api

import (
	"net/netip"
	"time"

	"github.com/udtproto/udt/conn"
)

// HandlePacket satisfies mux.Conn: deliver one inbound datagram to this
// socket's connection, and, if that delivery is the packet that finished
// a spawned child's handshake, hand the now-connected socket to its
// listener's accept queue (§4.5's passive-open completion).
func (s *Socket) HandlePacket(raw []byte, from netip.AddrPort, now time.Time) error {
	c := s.Conn()
	if c == nil {
		return nil
	}
	was := c.State()
	err := c.HandlePacket(raw, from, now)
	if was != conn.StateConnected && c.State() == conn.StateConnected {
		s.onConnected()
	}
	return err
}

// onConnected runs once, the moment a spawned child's handshake
// completes: it leaves the pending-by-address table and, if it has a
// listener, is offered to that listener's Accept queue.
func (s *Socket) onConnected() {
	s.mu.Lock()
	s.state = sockConnected
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return
	}
	listener.mu.Lock()
	q := listener.acceptQueue
	listener.mu.Unlock()
	if q == nil {
		return
	}
	select {
	case q <- s:
	default:
		// Accept queue full: drop the connection the way a listen()
		// backlog overflow drops an incoming SYN (§4.8).
	}
}

// CheckTimers satisfies mux.Conn.
func (s *Socket) CheckTimers(now time.Time) {
	if c := s.Conn(); c != nil {
		c.CheckTimers(now)
	}
}
