package api

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/udtproto/udt/config"
)

func TestRuntimeHandshakeAndDataRoundTrip(t *testing.T) {
	rt := NewRuntime(nil)
	defer rt.Shutdown()

	cfg := config.Default()
	cfg.FC = 256

	listener := rt.Socket(cfg)
	if err := rt.Bind(listener, netip.MustParseAddrPort("127.0.0.1:0")); err != nil {
		t.Fatalf("bind listener: %v", err)
	}
	if err := rt.Listen(listener); err != nil {
		t.Fatalf("listen: %v", err)
	}
	listenerAddr := listener.LocalAddr()

	caller := rt.Socket(cfg)
	if err := rt.Bind(caller, netip.MustParseAddrPort("127.0.0.1:0")); err != nil {
		t.Fatalf("bind caller: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connectErr := make(chan error, 1)
	go func() { connectErr <- rt.Connect(ctx, caller, listenerAddr) }()

	accepted, err := rt.Accept(ctx, listener)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := <-connectErr; err != nil {
		t.Fatalf("connect: %v", err)
	}

	payload := []byte("hello over the wire")
	if _, err := caller.Send(payload); err != nil {
		t.Fatalf("send: %v", err)
	}

	buf := make([]byte, 256)
	deadline := time.Now().Add(4 * time.Second)
	var n int
	for time.Now().Before(deadline) {
		n, err = accepted.Recv(buf)
		if err == nil && n > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if n == 0 {
		t.Fatalf("recv: %v", err)
	}
	if string(buf[:n]) != string(payload) {
		t.Fatalf("got %q, want %q", buf[:n], payload)
	}

	if accepted.PeerAddr() != caller.LocalAddr() {
		t.Fatalf("accepted peer = %v, want %v", accepted.PeerAddr(), caller.LocalAddr())
	}

	if err := rt.Close(caller); err != nil {
		t.Fatalf("close caller: %v", err)
	}
	if err := rt.Close(accepted); err != nil {
		t.Fatalf("close accepted: %v", err)
	}
	if err := rt.Close(listener); err != nil {
		t.Fatalf("close listener: %v", err)
	}
}

func TestRuntimeSocketIDsAreReclaimedOnClose(t *testing.T) {
	rt := NewRuntime(nil)
	defer rt.Shutdown()

	cfg := config.Default()
	s := rt.Socket(cfg)
	id := s.SocketID()
	if err := rt.Close(s); err != nil {
		t.Fatalf("close: %v", err)
	}
	s2 := rt.Socket(cfg)
	if s2.SocketID() != id {
		t.Fatalf("expected id %d to be recycled, got %d", id, s2.SocketID())
	}
}

func TestRuntimeAcceptTimesOutWithNoConnection(t *testing.T) {
	rt := NewRuntime(nil)
	defer rt.Shutdown()

	cfg := config.Default()
	listener := rt.Socket(cfg)
	if err := rt.Bind(listener, netip.MustParseAddrPort("127.0.0.1:0")); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := rt.Listen(listener); err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := rt.Accept(ctx, listener); err == nil {
		t.Fatal("expected Accept to time out with no pending connection")
	}
}
