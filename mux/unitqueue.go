// Package mux implements the shared multiplexer (§4.2): one UDP channel,
// one sender-scheduler goroutine (SndQueue) and one receiver-dispatcher
// goroutine (RcvQueue) fanning packets in and out of every connection bound
// to a given (local address, socket options) tuple. It plays the role the
// teacher's internet.Stack/NIC pump plays for a shared link-layer handle:
// one owner of the raw datagram socket, many logical connections
// multiplexed over it.
package mux

import (
	"sync"
)

// unitFlag is a Unit's ownership state (§2 item 8, §5's "each Unit is
// logically owned by the receiver ring while occupied").
type unitFlag uint8

const (
	unitFree unitFlag = iota
	unitOccupied
	unitRead
)

// Unit is one fixed-size receive slot: a reusable datagram-sized buffer
// plus a flag recording who currently owns it. The RcvQueue worker borrows
// one per inbound datagram and returns it to the pool once the target
// connection has copied whatever data it needs out of it (conn.HandlePacket
// always copies payload bytes before returning, so a Unit is safe to
// recycle immediately after dispatch completes).
type Unit struct {
	Buf  []byte
	flag unitFlag
}

// unitBlockSize is the number of Units allocated at a time when the free
// list runs low (§2 item 8: "allocate a new block of N units and splice it
// in").
const unitBlockSize = 256

// UnitQueue is a growable free-list of fixed-size Units, amortizing
// allocation for the receive path the way the teacher's internet stack
// pools NIC receive descriptors. It never shrinks within a multiplexer's
// lifetime and grows by one block at a time once occupancy crosses the
// high-water mark.
type UnitQueue struct {
	mu       sync.Mutex
	unitSize int
	all      []*Unit
	free     []*Unit
}

// NewUnitQueue returns a UnitQueue pre-seeded with one block of Units sized
// to hold one datagram of up to unitSize bytes.
func NewUnitQueue(unitSize int) *UnitQueue {
	if unitSize <= 0 {
		unitSize = 1500
	}
	q := &UnitQueue{unitSize: unitSize}
	q.growLocked()
	return q
}

// growLocked must be called with q.mu held. It allocates one more block of
// Units and adds them to the free list.
func (q *UnitQueue) growLocked() {
	block := make([]*Unit, unitBlockSize)
	for i := range block {
		block[i] = &Unit{Buf: make([]byte, q.unitSize)}
	}
	q.all = append(q.all, block...)
	q.free = append(q.free, block...)
}

// Get reserves a free Unit, growing the pool first if occupancy has crossed
// 90% (§4.2's UnitQueue growth rule).
func (q *UnitQueue) Get() *Unit {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.free) == 0 || float64(len(q.all)-len(q.free))/float64(len(q.all)) > 0.9 {
		q.growLocked()
	}
	u := q.free[len(q.free)-1]
	q.free = q.free[:len(q.free)-1]
	u.flag = unitOccupied
	return u
}

// Put returns u to the free list once its contents have been consumed.
func (q *UnitQueue) Put(u *Unit) {
	q.mu.Lock()
	defer q.mu.Unlock()
	u.flag = unitFree
	q.free = append(q.free, u)
}

// Len returns the total number of Units the pool has ever allocated, for
// diagnostics/metrics.
func (q *UnitQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.all)
}
