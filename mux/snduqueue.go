package mux

import (
	"container/heap"
	"net/netip"
	"time"
)

// sndEntry is one connection's position in the SndUList (§4.2): the
// connection plus the time it next wants to be polled.
type sndEntry struct {
	socketID     uint32
	conn         pacerConn
	nextSendTime time.Time
	index        int // heap.Interface bookkeeping
}

// pacerConn is the narrow dependency SndQueue needs from conn.Connection.
type pacerConn interface {
	PackData(now time.Time) (out []byte, nextSendTime time.Time, ok bool)
	PeerAddr() netip.AddrPort
}

// sndHeap is a min-heap of *sndEntry ordered by nextSendTime, the Go
// standard library's container/heap applied to §4.2's "priority list...
// keyed by next_send_time".
type sndHeap []*sndEntry

func (h sndHeap) Len() int            { return len(h) }
func (h sndHeap) Less(i, j int) bool  { return h[i].nextSendTime.Before(h[j].nextSendTime) }
func (h sndHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *sndHeap) Push(x any) {
	e := x.(*sndEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *sndHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// sndUList is the scheduling structure a SndQueue worker pops from: a
// priority queue of connections ordered by next_send_time, with O(log n)
// insert/remove and an index for in-place updates when a connection is
// woken out of turn (§4.2, §9's "self-balancing structure" guidance
// applied to the scheduler rather than the loss list, which stays a linear
// ordered-range list per the Open Question).
type sndUList struct {
	h       sndHeap
	entries map[uint32]*sndEntry
}

func newSndUList() *sndUList {
	return &sndUList{entries: make(map[uint32]*sndEntry)}
}

// Upsert inserts socketID with the given conn/nextSendTime, or updates its
// position if already present.
func (l *sndUList) Upsert(socketID uint32, c pacerConn, at time.Time) {
	if e, ok := l.entries[socketID]; ok {
		e.nextSendTime = at
		e.conn = c
		heap.Fix(&l.h, e.index)
		return
	}
	e := &sndEntry{socketID: socketID, conn: c, nextSendTime: at}
	l.entries[socketID] = e
	heap.Push(&l.h, e)
}

// Remove evicts socketID from the list, e.g. when its connection closes.
func (l *sndUList) Remove(socketID uint32) {
	e, ok := l.entries[socketID]
	if !ok {
		return
	}
	delete(l.entries, socketID)
	if e.index >= 0 {
		heap.Remove(&l.h, e.index)
	}
}

// Peek returns the head entry without popping it, so the worker loop can
// read its next_send_time and decide how long to sleep.
func (l *sndUList) Peek() (*sndEntry, bool) {
	if l.h.Len() == 0 {
		return nil, false
	}
	return l.h[0], true
}

// Pop removes and returns the head entry.
func (l *sndUList) Pop() (*sndEntry, bool) {
	if l.h.Len() == 0 {
		return nil, false
	}
	e := heap.Pop(&l.h).(*sndEntry)
	delete(l.entries, e.socketID)
	return e, true
}

// Len reports how many connections are currently scheduled.
func (l *sndUList) Len() int { return l.h.Len() }
