package mux

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/udtproto/udt/channel"
)

func TestMultiplexerEndToEndDispatch(t *testing.T) {
	target := &fakeConn{id: 7}
	res := &fakeResolver{byID: map[uint32]Conn{7: target}}

	m, err := New(Key{LocalAddr: netip.MustParseAddrPort("127.0.0.1:0")}, channel.Options{MSS: 1500}, res, nil)
	if err != nil {
		t.Fatal(err)
	}
	m.Acquire()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	peer, err := channel.Listen(netip.MustParseAddrPort("127.0.0.1:0"), channel.Options{MSS: 1500})
	if err != nil {
		t.Fatal(err)
	}
	defer peer.Close()

	if err := peer.Send(rawPacketWithDest(7, "hi"), m.LocalAddr()); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for target.handledCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if target.handledCount() != 1 {
		t.Fatalf("handled count = %d, want 1", target.handledCount())
	}

	if m.RefCount() != 1 {
		t.Fatalf("refcount = %d, want 1", m.RefCount())
	}
	if !m.Release() {
		t.Fatal("expected Release to report teardown at refcount 0")
	}
}

func TestMultiplexerStartIsIdempotent(t *testing.T) {
	res := &fakeResolver{byID: map[uint32]Conn{}}
	m, err := New(Key{LocalAddr: netip.MustParseAddrPort("127.0.0.1:0")}, channel.Options{MSS: 1500}, res, nil)
	if err != nil {
		t.Fatal(err)
	}
	m.Acquire()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	m.Start(ctx) // must not spawn a second pair of goroutines or panic
	m.Release()
}

func TestMultiplexerRefCounting(t *testing.T) {
	res := &fakeResolver{byID: map[uint32]Conn{}}
	m, err := New(Key{LocalAddr: netip.MustParseAddrPort("127.0.0.1:0")}, channel.Options{MSS: 1500}, res, nil)
	if err != nil {
		t.Fatal(err)
	}
	m.Acquire()
	m.Acquire()
	if m.RefCount() != 2 {
		t.Fatalf("refcount = %d, want 2", m.RefCount())
	}
	if m.Release() {
		t.Fatal("Release at refcount 1 should not report teardown")
	}
	if !m.Release() {
		t.Fatal("Release at refcount 0 should report teardown")
	}
}
