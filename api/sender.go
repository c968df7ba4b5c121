package api

import (
	"net/netip"

	"github.com/udtproto/udt/mux"
)

// sndQueueSender adapts a mux.SndQueue's SendControl to conn.Sender, so
// handshake/control packets a Connection emits outside the pacer's
// scheduling list (handshake replies, ACK2, shutdown) go straight to the
// channel the way §4.2 requires of control traffic.
type sndQueueSender struct {
	q *mux.SndQueue
}

func (a sndQueueSender) Send(payload []byte, dst netip.AddrPort) error {
	return a.q.SendControl(payload, dst)
}
