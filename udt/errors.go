// Package udt ties the engine packages (seq, packet, losslist, window,
// buffer, cc, channel, timer, conn, mux) together and holds the piece
// every other package needs: the shared error taxonomy. Options and the
// loadable Config live in the config package.
package udt

import (
	"errors"
	"fmt"

	"github.com/udtproto/udt/seq"
)

// Category is the major error category of §6/§7's (major, minor, errno)
// taxonomy, collapsed to one canonical set per the Open Question in §9
// ("some error kinds appear with duplicated minor codes in the legacy;
// collapse to a single canonical taxonomy").
type Category int

const (
	// CategorySetup covers DNS/bind/socket-open/config failures.
	CategorySetup Category = iota + 1
	// CategoryConnFail covers handshake timeout/rejection/version
	// mismatch and post-handshake connection loss (EXP, peer shutdown).
	CategoryConnFail
	// CategoryResource covers out-of-memory and buffer-full-when-
	// nonblocking conditions.
	CategoryResource
	// CategoryFile covers sendfile/recvfile seek/read/write failures.
	CategoryFile
	// CategoryInvalidParam covers bad option values, address-length
	// mismatches, and operations issued against the wrong connection
	// state.
	CategoryInvalidParam
	// CategoryAsyncFail covers errors observed asynchronously by the
	// dispatcher/pacer that could not be reported synchronously to the
	// call that triggered them.
	CategoryAsyncFail
)

func (c Category) String() string {
	switch c {
	case CategorySetup:
		return "CONNSETUP"
	case CategoryConnFail:
		return "CONNFAIL"
	case CategoryResource:
		return "RESOURCE"
	case CategoryFile:
		return "FILE"
	case CategoryInvalidParam:
		return "INVOP"
	case CategoryAsyncFail:
		return "ASYNCFAIL"
	default:
		return "UNKNOWN"
	}
}

// Error is the (major, minor, errno) error value of the §6/§7 taxonomy and
// the type of the socket API's last-error slot. The socket-option calls
// return it; other operations return the sentinel errors below.
type Error struct {
	Major Category
	Minor int
	Errno int // underlying OS errno, 0 if not applicable
	Msg   string
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("udt: %s (%d): %s", e.Major, e.Code(), e.Msg)
	}
	return fmt.Sprintf("udt: %s (%d)", e.Major, e.Code())
}

// Code returns the numeric major·1000+minor code described in §6.
func (e *Error) Code() int { return int(e.Major)*1000 + e.Minor }

// NewError constructs an Error, the usual way connection/api code reports
// a classified failure.
func NewError(major Category, minor int, msg string) *Error {
	return &Error{Major: major, Minor: minor, Msg: msg}
}

// RejectError reports that an incoming packet was refused admission: it
// fell outside the current receive window, referenced an unknown
// connection, or otherwise failed a structural check before any state was
// mutated. It is typed (rather than a sentinel) so callers can recover the
// offending sequence number for logging.
type RejectError struct {
	Reason string
	Seq    seq.Value
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("udt: packet rejected at seq %d: %s", e.Seq, e.Reason)
}

// Sentinel errors for static, non-parameterized conditions (§7).
var (
	ErrBroken          = errors.New("udt: connection broken")
	ErrWouldBlock      = errors.New("udt: operation would block")
	ErrTimeout         = errors.New("udt: operation timed out")
	ErrWrongState      = errors.New("udt: operation invalid for current connection state")
	ErrClosed          = errors.New("udt: socket closed")
	ErrHandshakeFailed = errors.New("udt: handshake failed")
	ErrBufferFull      = errors.New("udt: send buffer full")
)
