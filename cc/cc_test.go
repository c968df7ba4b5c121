package cc

import (
	"testing"
	"time"

	"github.com/udtproto/udt/seq"
)

func TestDAIMDInitialState(t *testing.T) {
	d := NewDAIMD()
	d.Init(Context{SndCurrSeq: 0})
	if d.PktSndPeriod() != time.Microsecond {
		t.Fatalf("pkt_snd_period = %v, want 1us", d.PktSndPeriod())
	}
	if d.CWnd() != 16 {
		t.Fatalf("cwnd = %v, want 16", d.CWnd())
	}
}

func TestDAIMDSlowStartGrowsWithDelivered(t *testing.T) {
	d := NewDAIMD()
	d.Init(Context{})
	d.OnAck(Context{Delivered: 50, MaxFlowWindow: 1000})
	if d.CWnd() != 50 {
		t.Fatalf("cwnd = %v, want 50", d.CWnd())
	}
}

func TestDAIMDSlowStartExitsAtFlowWindow(t *testing.T) {
	d := NewDAIMD()
	d.Init(Context{})
	d.OnAck(Context{Delivered: 2000, MaxFlowWindow: 1000})
	// Once exited, a further ack should run the bandwidth-probed increase
	// path rather than re-assigning cwnd to Delivered.
	before := d.PktSndPeriod()
	d.OnAck(Context{Delivered: 3000, MaxFlowWindow: 1000, MSS: 1500, SYN: 10 * time.Millisecond, Bandwidth: 1})
	// Bandwidth (1 pkt/s) is below the current rate, so cwnd grows by
	// exactly 1/MSS from its slow-start exit value.
	mss := 1500.0
	if want := 2000 + 1/mss; d.CWnd() != want {
		t.Fatalf("cwnd after post-slow-start ack = %v, want %v", d.CWnd(), want)
	}
	if d.PktSndPeriod() > before {
		t.Fatalf("pkt_snd_period should not increase on ack, got %v > %v", d.PktSndPeriod(), before)
	}
}

func TestDAIMDDecreaseOnNewLossEpoch(t *testing.T) {
	d := NewDAIMD()
	d.Init(Context{SndCurrSeq: 0})
	before := d.PktSndPeriod()
	d.OnLoss(Context{SndCurrSeq: 100}, seq.Value(50), 3)
	if d.PktSndPeriod() <= before {
		t.Fatalf("expected pkt_snd_period to increase on first loss, got %v <= %v", d.PktSndPeriod(), before)
	}
	if d.lastDecSeq != 100 {
		t.Fatalf("lastDecSeq = %d, want 100", d.lastDecSeq)
	}
}

func TestDAIMDSameEpochLossCountsNak(t *testing.T) {
	d := NewDAIMD()
	d.Init(Context{SndCurrSeq: 0})
	d.OnLoss(Context{SndCurrSeq: 100}, seq.Value(50), 1)
	afterFirst := d.PktSndPeriod()
	// A second loss report with a first-lost-seq at or before lastDecSeq
	// falls into the same-epoch path, which only decreases every
	// decRandom-th report.
	d.OnLoss(Context{SndCurrSeq: 100}, seq.Value(50), 1)
	if d.nakCount != 2 {
		t.Fatalf("nakCount = %d, want 2", d.nakCount)
	}
	_ = afterFirst
}

func TestDAIMDEmptyLossIsNoop(t *testing.T) {
	d := NewDAIMD()
	d.Init(Context{})
	before := d.PktSndPeriod()
	d.OnLoss(Context{}, 0, 0)
	if d.PktSndPeriod() != before {
		t.Fatal("expected no change on empty loss report")
	}
}
