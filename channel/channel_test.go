package channel

import (
	"context"
	"net/netip"
	"testing"
	"time"
)

func TestChannelSendRecvRoundTrip(t *testing.T) {
	a, err := Listen(netip.MustParseAddrPort("127.0.0.1:0"), Options{MSS: 1500})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := Listen(netip.MustParseAddrPort("127.0.0.1:0"), Options{MSS: 1500})
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	payload := []byte("hello udt")
	if err := a.Send(payload, b.LocalAddr()); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 2048)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	n, src, err := b.Recv(ctx, buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf[:n]) != string(payload) {
		t.Fatalf("got %q, want %q", buf[:n], payload)
	}
	if src != a.LocalAddr() {
		t.Fatalf("src = %v, want %v", src, a.LocalAddr())
	}
}

func TestPairPipeRoundTrip(t *testing.T) {
	a, b := NewPairPipe(
		netip.MustParseAddrPort("10.0.0.1:9000"),
		netip.MustParseAddrPort("10.0.0.2:9000"),
	)
	if err := a.Send([]byte("ping"), b.LocalAddr()); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 16)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	n, src, err := b.Recv(ctx, buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf[:n]) != "ping" {
		t.Fatalf("got %q, want ping", buf[:n])
	}
	if src != a.LocalAddr() {
		t.Fatalf("src = %v, want %v", src, a.LocalAddr())
	}
}

func TestChannelSendOversizeRejected(t *testing.T) {
	a, err := Listen(netip.MustParseAddrPort("127.0.0.1:0"), Options{MSS: 16})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	err = a.Send(make([]byte, 17), a.LocalAddr())
	if err != ErrPacketTooLarge {
		t.Fatalf("err = %v, want ErrPacketTooLarge", err)
	}
}
