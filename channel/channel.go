// Package channel wraps the UDP socket shared by every connection on one
// multiplexer (§3's "Channel"/§5's "the channel (UDP socket) is owned by
// the multiplexer"). One UDP datagram carries exactly one Packet; this
// package's job is framing (never split or coalesce packets across
// datagrams) and applying the UDP_SNDBUF/UDP_RCVBUF/REUSEADDR socket
// options the teacher's sibling repos apply via golang.org/x/sys/unix
// (see socketopts_linux.go).
package channel

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"time"
)

// ErrPacketTooLarge is returned by Send when the payload exceeds the
// channel's configured MSS.
var ErrPacketTooLarge = errors.New("channel: packet exceeds configured MSS")

// Options configures the underlying UDP socket (§6's UDP_SNDBUF,
// UDP_RCVBUF and REUSEADDR options).
type Options struct {
	SndBufBytes int
	RcvBufBytes int
	ReuseAddr   bool
	MSS         int
}

// Channel is a bound UDP socket shared by every connection multiplexed
// over it. It is safe for concurrent use by one reader and many writers,
// matching the one-dispatcher/many-senders threading model of §5.
type Channel struct {
	conn *net.UDPConn
	opts Options
}

// Listen binds a UDP socket at laddr with the given options, applying
// socket-level tuning before any datagrams are exchanged.
func Listen(laddr netip.AddrPort, opts Options) (*Channel, error) {
	conn, err := net.ListenUDP("udp", net.UDPAddrFromAddrPort(laddr))
	if err != nil {
		return nil, err
	}
	if opts.MSS <= 0 {
		opts.MSS = 1500
	}
	if err := applySocketOptions(conn, opts); err != nil {
		conn.Close()
		return nil, err
	}
	return &Channel{conn: conn, opts: opts}, nil
}

// LocalAddr returns the address this channel is bound to.
func (c *Channel) LocalAddr() netip.AddrPort {
	return c.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

// MSS returns the configured maximum packet size.
func (c *Channel) MSS() int { return c.opts.MSS }

// Send writes one datagram to dst. It never fragments or batches: the
// caller is responsible for keeping payload within MSS (one Packet per
// datagram, per §3).
func (c *Channel) Send(payload []byte, dst netip.AddrPort) error {
	if len(payload) > c.opts.MSS {
		return ErrPacketTooLarge
	}
	_, err := c.conn.WriteToUDPAddrPort(payload, dst)
	return err
}

// Recv reads one datagram into buf, blocking until one arrives or the read
// deadline passes (the one SetReadTimeout last armed, or ctx's deadline if
// ctx has one). Canceling ctx does not interrupt a read in progress. It
// returns the number of bytes read and the sender's address.
func (c *Channel) Recv(ctx context.Context, buf []byte) (n int, src netip.AddrPort, err error) {
	if dl, ok := ctx.Deadline(); ok {
		c.conn.SetReadDeadline(dl)
	}
	n, src, err = c.conn.ReadFromUDPAddrPort(buf)
	if err != nil {
		return n, src, err
	}
	return n, src, nil
}

// SetReadTimeout sets the read deadline to d from now. The deadline is
// absolute, so the receiver dispatcher goroutine re-arms it before every
// Recv and thereby returns periodically to check timers even with no
// inbound traffic (§5's "never suspends except in recvfrom,
// short timeout to allow timer checks").
func (c *Channel) SetReadTimeout(d time.Duration) error {
	return c.conn.SetReadDeadline(time.Now().Add(d))
}

// Close closes the underlying UDP socket.
func (c *Channel) Close() error { return c.conn.Close() }
