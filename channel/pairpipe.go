package channel

import (
	"context"
	"net/netip"
	"time"
)

// PairPipe is a deterministic in-memory stand-in for two UDP sockets
// talking over loopback, used by tests that would otherwise need a real
// Channel (adapted from the teacher's dual-stack loopback test harness).
// Each end's Send enqueues directly onto the other end's Recv queue.
type PairPipe struct {
	addr     netip.AddrPort
	peerAddr netip.AddrPort
	out      chan []byte
	in       chan []byte
	timeout  time.Duration
}

// NewPairPipe returns two PairPipe ends wired to each other, addressed by
// addrA and addrB respectively.
func NewPairPipe(addrA, addrB netip.AddrPort) (a, b *PairPipe) {
	ab := make(chan []byte, 256)
	ba := make(chan []byte, 256)
	a = &PairPipe{addr: addrA, peerAddr: addrB, out: ab, in: ba}
	b = &PairPipe{addr: addrB, peerAddr: addrA, out: ba, in: ab}
	return a, b
}

// LocalAddr returns this end's address.
func (p *PairPipe) LocalAddr() netip.AddrPort { return p.addr }

// Send enqueues payload for the peer end's Recv. It copies payload since
// the caller may reuse its buffer immediately after Send returns.
func (p *PairPipe) Send(payload []byte, dst netip.AddrPort) error {
	cp := append([]byte(nil), payload...)
	select {
	case p.out <- cp:
	default:
		<-p.out // drop oldest rather than block a unit test forever
		p.out <- cp
	}
	return nil
}

// Recv blocks until a datagram arrives, ctx is canceled, or the timeout
// armed by SetReadTimeout elapses, whichever comes first.
func (p *PairPipe) Recv(ctx context.Context, buf []byte) (n int, src netip.AddrPort, err error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	select {
	case data := <-p.in:
		n = copy(buf, data)
		return n, p.peerAddr, nil
	case <-ctx.Done():
		return 0, netip.AddrPort{}, ctx.Err()
	}
}

// SetReadTimeout arms a repeatable per-Recv timeout, mirroring Channel's
// read-deadline behavior so RcvQueue's dispatcher loop can use a PairPipe
// interchangeably with a real UDP Channel in tests.
func (p *PairPipe) SetReadTimeout(d time.Duration) error {
	p.timeout = d
	return nil
}
