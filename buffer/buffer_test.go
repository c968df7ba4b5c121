package buffer

import (
	"testing"
	"time"

	"github.com/udtproto/udt/seq"
)

func TestSndBufferPacketizeAndSend(t *testing.T) {
	b := NewSndBuffer(100)
	now := time.Now()
	if err := b.AddMessage(make([]byte, 250), 100, 0, true, now); err != nil {
		t.Fatal(err)
	}
	if b.Pending() != 250 {
		t.Fatalf("pending = %d, want 250", b.Pending())
	}

	data, s, _, first, last, inOrder, ok := b.NextToSend(now)
	if !ok || len(data) != 100 || s != 100 || !first || last || !inOrder {
		t.Fatalf("first block: data=%d seq=%d first=%v last=%v", len(data), s, first, last)
	}
	data, s, _, first, last, _, ok = b.NextToSend(now)
	if !ok || len(data) != 100 || s != 101 || first || last {
		t.Fatalf("second block: data=%d seq=%d first=%v last=%v", len(data), s, first, last)
	}
	data, s, _, first, last, _, ok = b.NextToSend(now)
	if !ok || len(data) != 50 || s != 102 || first || !last {
		t.Fatalf("third block: data=%d seq=%d first=%v last=%v", len(data), s, first, last)
	}
	if b.InFlight() != 250 {
		t.Fatalf("in flight = %d, want 250", b.InFlight())
	}
	if !b.Empty() {
		// sent but unacked, so not empty yet.
		if b.Pending() != 0 {
			t.Fatal("pending should be drained")
		}
	}
}

func TestSndBufferAckTrimsPrefix(t *testing.T) {
	b := NewSndBuffer(0)
	b.AddMessage(make([]byte, 30), 10, 0, true, time.Now())
	for i := 0; i < 3; i++ {
		b.NextToSend(time.Now())
	}
	b.Ack(seq.Value(2))
	if b.InFlight() != 10 {
		t.Fatalf("in flight after ack = %d, want 10", b.InFlight())
	}
	b.Ack(seq.Value(3))
	if !b.Empty() {
		t.Fatal("expected buffer empty after full ack")
	}
}

func TestSndBufferRetransmitLookup(t *testing.T) {
	b := NewSndBuffer(0)
	b.AddMessage([]byte("hello"), 5, 0, true, time.Now())
	b.NextToSend(time.Now())
	data, _, _, _, _, ok := b.Retransmit(seq.Value(0), time.Now())
	if !ok || string(data) != "hello" {
		t.Fatalf("retransmit lookup failed: data=%q ok=%v", data, ok)
	}
	if _, _, _, _, _, ok := b.Retransmit(seq.Value(99), time.Now()); ok {
		t.Fatal("expected no match for unsent sequence")
	}
}

func TestSndBufferExpire(t *testing.T) {
	b := NewSndBuffer(0)
	origin := time.Now().Add(-time.Second)
	b.AddMessage([]byte("x"), 1, 10*time.Millisecond, true, origin)
	b.NextToSend(origin)
	expired := b.Expire(origin.Add(time.Second))
	if len(expired) != 1 || expired[0] != 0 {
		t.Fatalf("expected seq 0 expired, got %v", expired)
	}
	if !b.Empty() {
		t.Fatal("expected buffer empty after expiry")
	}
}

func TestRcvBufferInOrderDelivery(t *testing.T) {
	b := NewRcvBuffer(16, 0)
	b.Insert(0, []byte("ab"), 1, true, false, true)
	b.Insert(1, []byte("cd"), 1, false, true, true)

	msg, ok := b.ReadMessage()
	if !ok || string(msg) != "abcd" {
		t.Fatalf("ReadMessage = %q, %v", msg, ok)
	}
	if b.Base() != 2 {
		t.Fatalf("base = %d, want 2", b.Base())
	}
}

func TestRcvBufferGapBlocksDelivery(t *testing.T) {
	b := NewRcvBuffer(16, 0)
	b.Insert(1, []byte("cd"), 1, false, true, true)
	if _, ok := b.ReadMessage(); ok {
		t.Fatal("expected no message while seq 0 is missing")
	}
	b.Insert(0, []byte("ab"), 1, true, false, true)
	msg, ok := b.ReadMessage()
	if !ok || string(msg) != "abcd" {
		t.Fatalf("ReadMessage after fill = %q, %v", msg, ok)
	}
}

func TestRcvBufferOutOfWindowRejected(t *testing.T) {
	b := NewRcvBuffer(4, 0)
	if err := b.Insert(100, []byte("x"), 0, true, true, true); err == nil {
		t.Fatal("expected out-of-window error")
	}
}

func TestRcvBufferFreeAccounting(t *testing.T) {
	b := NewRcvBuffer(4, 0)
	if b.Free() != 4 {
		t.Fatalf("free = %d, want 4", b.Free())
	}
	b.Insert(0, []byte("a"), 0, true, true, true)
	if b.Free() != 3 {
		t.Fatalf("free after insert = %d, want 3", b.Free())
	}
	b.ReadMessage()
	if b.Free() != 4 {
		t.Fatalf("free after read = %d, want 4", b.Free())
	}
}
