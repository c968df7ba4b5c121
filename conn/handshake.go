package conn

import (
	"log/slog"
	"net/netip"
	"time"

	"github.com/udtproto/udt"
	"github.com/udtproto/udt/buffer"
	"github.com/udtproto/udt/packet"
	"github.com/udtproto/udt/seq"
)

// handshakeVersion is the protocol version this implementation speaks.
const handshakeVersion = 4

// Handshake req_type values (§4.5).
const (
	reqCallerRequest int32 = 1
	reqCallerConfirm int32 = -1
	reqReply         int32 = 0
)

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func minU32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

func addrBytes(a netip.Addr) []byte {
	if a.Is4() || a.Is4In6() {
		b := a.As4()
		return b[:]
	}
	b := a.As16()
	return b[:]
}

// prevSeq steps v backward by one modulo the sequence space, matching the
// unexported helper losslist keeps for the same purpose.
func prevSeq(v seq.Value) seq.Value { return seq.Add(v, seq.Size(seq.MaxValue-1)) }

// buildHandshake encodes a full handshake wire packet into a fresh buffer.
func (c *Connection) buildHandshake(b packet.HandshakeBody) ([]byte, error) {
	buf := make([]byte, packet.HeaderSize+handshakeFixedBodyCap)
	p, err := packet.Pack(buf, packet.Handshake, 0, c.peerSocketID)
	if err != nil {
		return nil, err
	}
	n, err := packet.PutHandshake(p.Body(), b)
	if err != nil {
		return nil, err
	}
	return buf[:packet.HeaderSize+n], nil
}

// handshakeFixedBodyCap bounds a handshake body: 8 header words plus room
// for a v6 address.
const handshakeFixedBodyCap = 4*8 + 16

// Connect begins an active (caller) or symmetric (rendezvous) handshake
// toward peerAddr and returns the wire bytes to send. now seeds the initial
// sequence number and the rendezvous cookie timestamp.
func (c *Connection) Connect(peerAddr netip.AddrPort, now time.Time) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateInit {
		return nil, udt.ErrWrongState
	}
	c.peerAddr = peerAddr
	c.startTime = now
	seed := uint32(now.UnixNano()) ^ c.socketID
	iseq := initialSeq(seed)
	c.isn = iseq
	c.sndCurrSeq = iseq
	c.sndLastAck = iseq
	c.rcvCurrSeq = prevSeq(iseq) // placeholder until the peer's InitialSeq arrives
	c.snd = buffer.NewSndBuffer(iseq)

	reqType := reqCallerRequest
	if c.role == RoleRendezvous {
		reqType = reqReply
		c.localCookie = c.cookieJar.Generate(addrBytes(c.localAddr.Addr()), addrBytes(peerAddr.Addr()), NanosSinceEpoch(now))
	}
	c.handshakeWant = reqType
	c.state = StateHandshaking
	body := packet.HandshakeBody{
		Version:        handshakeVersion,
		ReqType:        reqType,
		InitialSeq:     iseq,
		MSS:            uint32(c.mss),
		FlightFlagSize: uint32(c.cfg.FC),
		ConnType:       uint32(c.role),
		SocketID:       c.socketID,
		Cookie:         c.localCookie,
		PeerAddress:    addrBytes(peerAddr.Addr()),
	}
	c.debug("conn:handshake:send", slog.Int("req_type", int(reqType)))
	return c.buildHandshake(body)
}

// onHandshake dispatches an incoming handshake body to the role-specific
// state machine. It returns a reply to send back, if any.
func (c *Connection) onHandshake(body packet.HandshakeBody, from netip.AddrPort, now time.Time) ([]byte, error) {
	switch c.role {
	case RoleListener:
		return c.onHandshakeListener(body, from, now)
	case RoleCaller:
		return c.onHandshakeCaller(body, from, now)
	case RoleRendezvous:
		return c.onHandshakeRendezvous(body, from, now)
	default:
		return nil, nil
	}
}

func (c *Connection) onHandshakeListener(body packet.HandshakeBody, from netip.AddrPort, now time.Time) ([]byte, error) {
	switch {
	case c.state == StateInit && body.ReqType == reqCallerRequest:
		c.peerAddr = from
		c.peerSocketID = body.SocketID
		c.startTime = now
		c.mss = minInt(c.mss, int(body.MSS))
		flight := minU32(uint32(c.cfg.FC), body.FlightFlagSize)
		c.cfg.FC = int(flight)

		seed := uint32(now.UnixNano()) ^ c.socketID
		iseq := initialSeq(seed)
		c.isn = iseq
		c.sndCurrSeq = iseq
		c.sndLastAck = iseq
		c.snd = buffer.NewSndBuffer(iseq)
		c.rcvCurrSeq = prevSeq(body.InitialSeq)

		c.localCookie = c.cookieJar.Generate(addrBytes(c.localAddr.Addr()), addrBytes(from.Addr()), NanosSinceEpoch(now))
		c.state = StateHandshaking
		reply := packet.HandshakeBody{
			Version:        handshakeVersion,
			ReqType:        reqReply,
			InitialSeq:     iseq,
			MSS:            uint32(c.mss),
			FlightFlagSize: flight,
			ConnType:       uint32(c.role),
			SocketID:       c.socketID,
			Cookie:         c.localCookie,
			PeerAddress:    addrBytes(from.Addr()),
		}
		c.debug("conn:handshake:reply", slog.Uint64("peer_socket_id", uint64(body.SocketID)))
		return c.buildHandshake(reply)

	case c.state == StateHandshaking && body.ReqType == reqCallerConfirm:
		if body.Cookie != c.localCookie {
			return nil, udt.ErrHandshakeFailed
		}
		c.completeHandshakeLocked(now)
		c.debug("conn:handshake:connected")
		return nil, nil

	default:
		return nil, nil // stale retransmit of an earlier leg; ignore
	}
}

func (c *Connection) onHandshakeCaller(body packet.HandshakeBody, from netip.AddrPort, now time.Time) ([]byte, error) {
	if c.state != StateHandshaking || body.ReqType != reqReply {
		return nil, nil
	}
	c.peerSocketID = body.SocketID
	c.peerCookie = body.Cookie
	c.mss = minInt(c.mss, int(body.MSS))
	flight := minU32(uint32(c.cfg.FC), body.FlightFlagSize)
	c.cfg.FC = int(flight)
	c.rcvCurrSeq = prevSeq(body.InitialSeq)

	confirm := packet.HandshakeBody{
		Version:        handshakeVersion,
		ReqType:        reqCallerConfirm,
		InitialSeq:     c.sndCurrSeq,
		MSS:            uint32(c.mss),
		FlightFlagSize: flight,
		ConnType:       uint32(c.role),
		SocketID:       c.socketID,
		Cookie:         body.Cookie,
		PeerAddress:    addrBytes(from.Addr()),
	}
	c.completeHandshakeLocked(now)
	c.debug("conn:handshake:confirm")
	return c.buildHandshake(confirm)
}

func (c *Connection) onHandshakeRendezvous(body packet.HandshakeBody, from netip.AddrPort, now time.Time) ([]byte, error) {
	if body.ReqType != reqReply || c.state != StateHandshaking {
		return nil, nil
	}
	c.peerSocketID = body.SocketID
	c.peerCookie = body.Cookie
	c.mss = minInt(c.mss, int(body.MSS))
	flight := minU32(uint32(c.cfg.FC), body.FlightFlagSize)
	c.cfg.FC = int(flight)
	c.rcvCurrSeq = prevSeq(body.InitialSeq)
	c.completeHandshakeLocked(now)
	c.debug("conn:handshake:rendezvous-matched")
	return nil, nil
}

// completeHandshakeLocked allocates the receive buffer against the peer's
// initial sequence, initializes the congestion controller, and promotes the
// connection to StateConnected.
func (c *Connection) completeHandshakeLocked(now time.Time) {
	capacity := c.cfg.RcvBuf
	if capacity <= 0 {
		capacity = 8192
	}
	c.rcv = buffer.NewRcvBuffer(capacity, seq.Add(c.rcvCurrSeq, 1))
	c.rcvLastAck = seq.Add(c.rcvCurrSeq, 1)
	c.flowWindow = float64(c.cfg.FC)
	c.state = StateConnected
	c.lastRecv = now
	c.lastAckSend = now
	c.lastNakSend = now
	c.lastSynTick = now
	c.ctrl.Init(c.ccContextLocked())
}
