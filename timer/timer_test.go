package timer

import (
	"context"
	"testing"
	"time"
)

func TestSleepToPastDeadlineReturnsImmediately(t *testing.T) {
	ok := SleepTo(context.Background(), time.Now().Add(-time.Second))
	if !ok {
		t.Fatal("expected true for a deadline already in the past")
	}
}

func TestSleepToInterruptedByContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ok := SleepTo(ctx, time.Now().Add(time.Hour))
	if ok {
		t.Fatal("expected false when context is already canceled")
	}
}

func TestSleepToInterruptedByDerivedCancel(t *testing.T) {
	// Mirrors how mux.SndQueue interrupts a pending SleepTo from Wake: a
	// context derived from the run context, canceled independently of it.
	parent := context.Background()
	sleepCtx, cancel := context.WithCancel(parent)
	done := make(chan bool, 1)
	go func() {
		done <- SleepTo(sleepCtx, time.Now().Add(time.Hour))
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case ok := <-done:
		if ok {
			t.Fatal("expected false when the derived context is canceled early")
		}
	case <-time.After(time.Second):
		t.Fatal("SleepTo did not return after its context was canceled")
	}
}
