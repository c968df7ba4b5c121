package mux

import (
	"net/netip"
	"testing"
	"time"
)

// fakePacer is a minimal pacerConn test double: it reports ok=false until
// armed, so tests can control exactly when PackData should be consulted.
type fakePacer struct {
	peer netip.AddrPort
	pkt  []byte
	next time.Time
	ok   bool
}

func (f *fakePacer) PackData(now time.Time) ([]byte, time.Time, bool) {
	return f.pkt, f.next, f.ok
}
func (f *fakePacer) PeerAddr() netip.AddrPort { return f.peer }

func TestSndUListOrdersByNextSendTime(t *testing.T) {
	l := newSndUList()
	base := time.Now()
	l.Upsert(1, &fakePacer{}, base.Add(2*time.Second))
	l.Upsert(2, &fakePacer{}, base)
	l.Upsert(3, &fakePacer{}, base.Add(time.Second))

	e, ok := l.Pop()
	if !ok || e.socketID != 2 {
		t.Fatalf("first pop = %+v, want socketID 2", e)
	}
	e, ok = l.Pop()
	if !ok || e.socketID != 3 {
		t.Fatalf("second pop = %+v, want socketID 3", e)
	}
	e, ok = l.Pop()
	if !ok || e.socketID != 1 {
		t.Fatalf("third pop = %+v, want socketID 1", e)
	}
	if l.Len() != 0 {
		t.Fatalf("len = %d, want 0", l.Len())
	}
}

func TestSndUListUpsertReordersExisting(t *testing.T) {
	l := newSndUList()
	base := time.Now()
	l.Upsert(1, &fakePacer{}, base.Add(time.Hour))
	l.Upsert(2, &fakePacer{}, base)

	// Wake socket 1 to the front.
	l.Upsert(1, &fakePacer{}, base.Add(-time.Second))

	e, ok := l.Peek()
	if !ok || e.socketID != 1 {
		t.Fatalf("peek = %+v, want socketID 1 after reorder", e)
	}
}

func TestSndUListRemove(t *testing.T) {
	l := newSndUList()
	l.Upsert(1, &fakePacer{}, time.Now())
	l.Upsert(2, &fakePacer{}, time.Now().Add(time.Second))
	l.Remove(1)
	if l.Len() != 1 {
		t.Fatalf("len = %d, want 1", l.Len())
	}
	e, ok := l.Peek()
	if !ok || e.socketID != 2 {
		t.Fatalf("peek = %+v, want socketID 2", e)
	}
	// Removing an id not present is a silent no-op.
	l.Remove(99)
	if l.Len() != 1 {
		t.Fatalf("len after no-op remove = %d, want 1", l.Len())
	}
}
