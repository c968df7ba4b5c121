package api

import (
	"context"
	"time"
)

// selectPollInterval is the sleep between passes over the candidate set
// (§4.8: "select polls the set with a 10µs sleep between passes").
const selectPollInterval = 10 * time.Microsecond

// Select polls reads and writes until at least one socket in either set
// is ready, ctx is done, or timeout elapses (timeout<=0 waits forever). A
// socket is read-ready if Recv would return data or an error without
// blocking; write-ready if Send has buffer space or the connection is
// broken (so the caller observes the failure instead of hanging, per
// §7's "broken is discovered by the next send/recv/select call").
func Select(ctx context.Context, reads, writes []*Socket, timeout time.Duration) (readyReads, readyWrites []*Socket, err error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	ticker := time.NewTicker(selectPollInterval)
	defer ticker.Stop()
	for {
		for _, s := range reads {
			if s.Readable() {
				readyReads = append(readyReads, s)
			}
		}
		for _, s := range writes {
			if s.Writable() {
				readyWrites = append(readyWrites, s)
			}
		}
		if len(readyReads) > 0 || len(readyWrites) > 0 {
			return readyReads, readyWrites, nil
		}
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-ticker.C:
			if !deadline.IsZero() && time.Now().After(deadline) {
				return nil, nil, nil
			}
		}
	}
}
