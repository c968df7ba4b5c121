package conn

// State is the connection's lifecycle state (§3's connection field group,
// §5's teardown rules): init before any handshake, handshaking while a
// caller/listener/rendezvous exchange is in flight, connected once data
// may flow, and closed/broken at teardown (closed = orderly, broken =
// EXP-detected peer silence or a fatal local error).
type State int

const (
	StateInit State = iota
	StateHandshaking
	StateConnected
	StateClosed
	StateBroken
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateHandshaking:
		return "handshaking"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	case StateBroken:
		return "broken"
	default:
		return "unknown"
	}
}

// Role selects which of the three handshake shapes (§4.5) a connection
// performs.
type Role int

const (
	// RoleCaller actively connects to a known listener.
	RoleCaller Role = iota
	// RoleListener accepts connections from callers.
	RoleListener
	// RoleRendezvous performs a symmetric connect: both ends initiate
	// simultaneously without a listener.
	RoleRendezvous
)

func (r Role) String() string {
	switch r {
	case RoleCaller:
		return "caller"
	case RoleListener:
		return "listener"
	case RoleRendezvous:
		return "rendezvous"
	default:
		return "unknown"
	}
}
