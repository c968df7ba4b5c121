// Package losslist implements the sender and receiver loss lists: ordered,
// non-overlapping sequence-number ranges tracking data this connection still
// needs to retransmit (sender side) or still hasn't received (receiver
// side). The range-coalescing approach follows the same "ordered list of
// half-open/closed index spans" idiom the teacher codebase uses for its
// sent-packet tracking list (see the adjacent buffer package, grounded on
// the teacher's ringTx/sentlist), generalized here to hold arbitrary-sized
// gaps rather than one entry per in-flight packet.
package losslist

import (
	"sync"
	"time"

	"github.com/udtproto/udt/seq"
)

// Range is an inclusive closed sequence range [Start, End].
type Range struct {
	Start, End seq.Value
}

// Len returns the number of sequence numbers covered by the range.
func (r Range) Len() seq.Size {
	return seq.Sub(r.End, r.Start) + 1
}

// Sender is the sender-side loss list (SndLossList, §3): sequence ranges the
// sender must retransmit. Ranges are kept sorted and disjoint; adjacent or
// overlapping inserts are coalesced.
type Sender struct {
	mu     sync.Mutex
	ranges []Range
	length seq.Size // invariant: sum of range lengths.
}

// Insert adds [start,end] to the loss list, merging with any overlapping or
// adjacent existing range. Insert is idempotent: inserting the same range
// twice has the same effect as inserting it once.
func (l *Sender) Insert(start, end seq.Value) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.insertLocked(Range{start, end})
}

func (l *Sender) insertLocked(r Range) {
	// Find insertion point: first range whose End is not strictly before r.Start-1.
	i := 0
	for i < len(l.ranges) && seq.LessThan(seq.Add(l.ranges[i].End, 1), r.Start) {
		i++
	}
	j := i
	for j < len(l.ranges) && !seq.GreaterThan(l.ranges[j].Start, seq.Add(r.End, 1)) {
		if seq.LessThan(l.ranges[j].Start, r.Start) {
			r.Start = l.ranges[j].Start
		}
		if seq.GreaterThan(l.ranges[j].End, r.End) {
			r.End = l.ranges[j].End
		}
		l.length -= l.ranges[j].Len()
		j++
	}
	merged := append([]Range{}, l.ranges[:i]...)
	merged = append(merged, r)
	merged = append(merged, l.ranges[j:]...)
	l.ranges = merged
	l.length += r.Len()
}

// Remove evicts every range entirely at or before x (the peer has
// acknowledged up to and including x, so there is nothing left to
// retransmit there).
func (l *Sender) Remove(x seq.Value) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i := 0
	for i < len(l.ranges) && seq.LessThanEq(l.ranges[i].End, x) {
		l.length -= l.ranges[i].Len()
		i++
	}
	if i < len(l.ranges) && seq.GreaterThanEq(x, l.ranges[i].Start) {
		// x falls inside range i: trim it instead of dropping it whole.
		trimmed := seq.Sub(seq.Add(x, 1), l.ranges[i].Start)
		l.length -= seq.Size(trimmed)
		l.ranges[i].Start = seq.Add(x, 1)
	}
	l.ranges = l.ranges[i:]
}

// PopFirst returns the smallest missing sequence number and trims it from
// the head range, deleting the range once exhausted. ok is false if the
// list is empty.
func (l *Sender) PopFirst() (s seq.Value, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.ranges) == 0 {
		return 0, false
	}
	r := &l.ranges[0]
	s = r.Start
	l.length--
	if r.Start == r.End {
		l.ranges = l.ranges[1:]
	} else {
		r.Start = seq.Add(r.Start, 1)
	}
	return s, true
}

// Empty reports whether the loss list holds no ranges.
func (l *Sender) Empty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ranges) == 0
}

// Length returns the total count of sequence numbers outstanding across all
// ranges (invariant checked by tests: sum of range lengths).
func (l *Sender) Length() seq.Size {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.length
}

// Ranges returns a snapshot copy of the current disjoint, sorted ranges.
func (l *Sender) Ranges() []Range {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Range, len(l.ranges))
	copy(out, l.ranges)
	return out
}

// FirstStart returns the Start of the lowest-sequence range (§4.6's
// first_lost_seq for the list as a whole).
func (l *Sender) FirstStart() (seq.Value, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.ranges) == 0 {
		return 0, false
	}
	return l.ranges[0].Start, true
}

// recvRange augments Range with receiver-side NAK back-off bookkeeping.
type recvRange struct {
	Range
	lastFeedback time.Time
	feedbackCnt  uint32
}

// Receiver is the receiver-side loss list (RcvLossList, §3): ranges the
// receiver is still missing, with per-range feedback time/count for
// exponential NAK back-off.
type Receiver struct {
	mu     sync.Mutex
	ranges []recvRange
}

// Insert adds a missing range, merging with neighbors exactly as Sender
// does. The merged range's feedback bookkeeping resets to "never sent".
func (l *Receiver) Insert(start, end seq.Value) {
	l.mu.Lock()
	defer l.mu.Unlock()
	r := recvRange{Range: Range{start, end}}
	i := 0
	for i < len(l.ranges) && seq.LessThan(seq.Add(l.ranges[i].End, 1), r.Start) {
		i++
	}
	j := i
	for j < len(l.ranges) && !seq.GreaterThan(l.ranges[j].Start, seq.Add(r.End, 1)) {
		if seq.LessThan(l.ranges[j].Start, r.Start) {
			r.Start = l.ranges[j].Start
		}
		if seq.GreaterThan(l.ranges[j].End, r.End) {
			r.End = l.ranges[j].End
		}
		j++
	}
	merged := append([]recvRange{}, l.ranges[:i]...)
	merged = append(merged, r)
	merged = append(merged, l.ranges[j:]...)
	l.ranges = merged
}

// prevSeq and nextSeq step a sequence number backward/forward by one,
// wrapping modulo seq.MaxValue.
func prevSeq(v seq.Value) seq.Value { return seq.Add(v, seq.Size(seq.MaxValue-1)) }
func nextSeq(v seq.Value) seq.Value { return seq.Add(v, 1) }

// Remove deletes x from the loss list: if x falls inside a range it is
// split or trimmed; this models the "retransmit filled a hole" case (§4.4).
func (l *Receiver) Remove(x seq.Value) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := 0; i < len(l.ranges); i++ {
		r := &l.ranges[i]
		if !seq.InWindow(x, r.Start, r.Len()) {
			continue
		}
		switch {
		case r.Start == r.End:
			l.ranges = append(l.ranges[:i], l.ranges[i+1:]...)
		case x == r.Start:
			r.Start = nextSeq(x)
		case x == r.End:
			r.End = prevSeq(x)
		default:
			newLeft := recvRange{Range: Range{r.Start, prevSeq(x)}}
			newRight := recvRange{Range: Range{nextSeq(x), r.End}}
			replacement := []recvRange{newLeft, newRight}
			l.ranges = append(l.ranges[:i], append(replacement, l.ranges[i+1:]...)...)
		}
		return
	}
}

// Empty reports whether there are no missing ranges.
func (l *Receiver) Empty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ranges) == 0
}

// FirstMissing returns the lowest missing sequence number.
func (l *Receiver) FirstMissing() (seq.Value, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.ranges) == 0 {
		return 0, false
	}
	return l.ranges[0].Start, true
}

// GetForNAK emits ranges eligible for a NAK retransmission request: those
// whose last feedback is older than feedbackCount*rtt (exponential back-off
// on repeated NAKs for the same loss, §3). Eligible ranges have their
// feedback bookkeeping bumped as a side effect. limit caps the number of
// ranges returned (0 = unlimited).
func (l *Receiver) GetForNAK(now time.Time, rtt time.Duration, limit int) []Range {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Range
	for i := range l.ranges {
		r := &l.ranges[i]
		due := time.Duration(r.feedbackCnt) * rtt
		if r.feedbackCnt != 0 && now.Sub(r.lastFeedback) <= due {
			continue
		}
		out = append(out, r.Range)
		r.lastFeedback = now
		r.feedbackCnt++
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Ranges returns a snapshot copy of the current disjoint, sorted ranges.
func (l *Receiver) Ranges() []Range {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Range, len(l.ranges))
	for i := range l.ranges {
		out[i] = l.ranges[i].Range
	}
	return out
}
