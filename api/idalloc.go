package api

import "sync"

// idAllocator hands out wire-level UDTSOCKET ids, descending from 1<<30
// per §4.8 ("socket ids descending from 2^30"), recycling ids freed by a
// reaped socket.
type idAllocator struct {
	mu   sync.Mutex
	next uint32
	free []uint32
}

const idStart = uint32(1) << 30

func newIDAllocator() *idAllocator {
	return &idAllocator{next: idStart}
}

// Alloc returns a fresh or recycled socket id.
func (a *idAllocator) Alloc() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n := len(a.free); n > 0 {
		id := a.free[n-1]
		a.free = a.free[:n-1]
		return id
	}
	id := a.next
	a.next--
	return id
}

// Free returns id to the pool once its socket has been reaped.
func (a *idAllocator) Free(id uint32) {
	a.mu.Lock()
	a.free = append(a.free, id)
	a.mu.Unlock()
}
