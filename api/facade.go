package api

import (
	"context"
	"log/slog"
	"net/netip"
	"sync"

	"github.com/udtproto/udt/config"
)

// defaultRuntime is the process-wide Runtime the package-level
// convenience functions delegate to, lazily constructed on first use so
// importing this package without calling anything never binds a socket.
var (
	defaultOnce sync.Once
	defaultRT   *Runtime
)

// Default returns the process-default Runtime, constructing it on first
// call.
func Default() *Runtime {
	defaultOnce.Do(func() { defaultRT = NewRuntime(slog.Default()) })
	return defaultRT
}

// The functions below mirror the legacy global socket API
// (socket/bind/listen/accept/connect/close) against the process-default
// Runtime, for callers that don't need an explicit one of their own.

func NewSocket(cfg config.Config) *Socket            { return Default().Socket(cfg) }
func Bind(s *Socket, addr netip.AddrPort) error      { return Default().Bind(s, addr) }
func Listen(s *Socket) error                         { return Default().Listen(s) }
func Accept(ctx context.Context, s *Socket) (*Socket, error) { return Default().Accept(ctx, s) }
func Connect(ctx context.Context, s *Socket, peer netip.AddrPort) error {
	return Default().Connect(ctx, s, peer)
}
func Close(s *Socket) error { return Default().Close(s) }
