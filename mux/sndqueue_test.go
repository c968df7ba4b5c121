package mux

import (
	"context"
	"net/netip"
	"sync"
	"testing"
	"time"
)

// recordingSender is a ChannelSender test double collecting every send.
type recordingSender struct {
	mu   sync.Mutex
	sent [][]byte
	dst  []netip.AddrPort
}

func (s *recordingSender) Send(payload []byte, dst netip.AddrPort) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, append([]byte(nil), payload...))
	s.dst = append(s.dst, dst)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// onceThenIdle packs exactly once, then reports no further work.
type onceThenIdle struct {
	mu   sync.Mutex
	sent bool
	peer netip.AddrPort
}

func (p *onceThenIdle) PackData(now time.Time) ([]byte, time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sent {
		return nil, time.Time{}, false
	}
	p.sent = true
	return []byte("payload"), time.Time{}, true
}
func (p *onceThenIdle) PeerAddr() netip.AddrPort { return p.peer }

func TestSndQueueRegisterDrainsPendingPacket(t *testing.T) {
	peer := netip.MustParseAddrPort("127.0.0.1:9001")
	sender := &recordingSender{}
	q := NewSndQueue(sender, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	q.Register(1, &onceThenIdle{peer: peer})

	deadline := time.Now().Add(2 * time.Second)
	for sender.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if sender.count() != 1 {
		t.Fatalf("sent count = %d, want 1", sender.count())
	}
	sender.mu.Lock()
	got := string(sender.sent[0])
	gotDst := sender.dst[0]
	sender.mu.Unlock()
	if got != "payload" {
		t.Fatalf("sent payload = %q, want payload", got)
	}
	if gotDst != peer {
		t.Fatalf("sent dst = %v, want %v", gotDst, peer)
	}
}

// neverReady never has anything to send; used to check Remove evicts it
// rather than spinning the scheduler forever.
type neverReady struct{ peer netip.AddrPort }

func (n *neverReady) PackData(now time.Time) ([]byte, time.Time, bool) {
	return nil, time.Now().Add(time.Hour), false
}
func (n *neverReady) PeerAddr() netip.AddrPort { return n.peer }

func TestSndQueueRemoveEvictsFromSchedule(t *testing.T) {
	sender := &recordingSender{}
	q := NewSndQueue(sender, nil)
	q.list.Upsert(1, &neverReady{}, time.Now().Add(time.Hour))
	if q.list.Len() != 1 {
		t.Fatalf("len = %d, want 1", q.list.Len())
	}
	q.Remove(1)
	if q.list.Len() != 0 {
		t.Fatalf("len after remove = %d, want 0", q.list.Len())
	}
}

func TestSndQueueSendControlBypassesSchedule(t *testing.T) {
	sender := &recordingSender{}
	q := NewSndQueue(sender, nil)
	dst := netip.MustParseAddrPort("127.0.0.1:9002")
	if err := q.SendControl([]byte("ctl"), dst); err != nil {
		t.Fatal(err)
	}
	if sender.count() != 1 {
		t.Fatalf("sent count = %d, want 1", sender.count())
	}
	if q.list.Len() != 0 {
		t.Fatalf("control send should never touch the schedule, len = %d", q.list.Len())
	}
}
