// Package cc implements the pluggable congestion-control contract (§4.6)
// as a small interface plus one concrete default implementation. The
// legacy design's deep inheritance hierarchy is re-expressed the way the
// teacher expresses pluggable behavior elsewhere in the codebase: a narrow
// interface of callbacks the connection invokes at fixed points, with the
// default behavior living in one unexported struct reachable through a
// constructor.
package cc

import (
	"math"
	"math/rand"
	"time"

	"github.com/udtproto/udt/seq"
)

// Context carries the read-only connection state a Controller needs to
// compute its next pkt_snd_period/cwnd. The connection populates and passes
// a fresh Context on every callback; Controller implementations must not
// retain it past the call.
type Context struct {
	MSS           int           // maximum segment size in bytes
	SYN           time.Duration // rate-control tick, default 10ms
	Bandwidth     float64       // estimated bottleneck capacity, packets/sec
	Delivered     float64       // packets delivered so far (snd_last_ack distance from initial seq)
	SndCurrSeq    seq.Value     // sender's most recently assigned sequence
	MaxFlowWindow float64       // peer-advertised flight-flag size
}

// Controller is the pluggable congestion-control contract: eight callbacks,
// two observable outputs (PktSndPeriod, CWnd), and two hooks the pacer and
// ACK handler use (ConsumeFreeze, ClampPeriod).
type Controller interface {
	Init(ctx Context)
	OnAck(ctx Context)
	OnLoss(ctx Context, firstLost seq.Value, lossLen int)
	OnTimeout(ctx Context)
	OnPktSent(ctx Context)
	OnPktReceived(ctx Context)
	OnCongestionWarning(ctx Context)
	ProcessCustomMsg(ctx Context, body []byte)

	// PktSndPeriod is the current inter-packet send interval, floored at 1µs.
	PktSndPeriod() time.Duration
	// CWnd is the current congestion window in packets.
	CWnd() float64
	// ConsumeFreeze reports whether a loss-driven rate decrease has set the
	// freeze flag since the last call, clearing it as a side effect (§4.3
	// step 5: "if freeze is set, delay additionally by one SYN interval and
	// clear freeze").
	ConsumeFreeze() bool
	// ClampPeriod lowers pkt_snd_period to at most max, a no-op if it is
	// already smaller (§4.3's ACK handler: "if pkt_snd_period > rtt, clamp
	// it to rtt and wake the pacer").
	ClampPeriod(max time.Duration)
}

// DAIMD is the default congestion controller (§4.6): a decreasing-additive-
// increase/multiplicative-decrease scheme with a bandwidth-probed increase
// rule and randomized decrease dampening to avoid synchronized backoffs
// across flows sharing a bottleneck.
type DAIMD struct {
	pktSndPeriod time.Duration
	cwnd         float64
	slowStart    bool

	lastDecSeq seq.Value
	nakCount   uint32
	avgNakNum  float64
	decRandom  uint32
	freeze     bool

	rng *rand.Rand
}

// NewDAIMD returns a DAIMD controller; Init puts it in its initial state:
// pkt_snd_period = 1µs, cwnd = 16, slow start enabled.
func NewDAIMD() *DAIMD {
	return &DAIMD{
		rng: rand.New(rand.NewSource(1)),
	}
}

func (d *DAIMD) Init(ctx Context) {
	d.pktSndPeriod = time.Microsecond
	d.cwnd = 16
	d.slowStart = true
	d.lastDecSeq = ctx.SndCurrSeq
	d.avgNakNum = 1
	d.decRandom = 1
	d.nakCount = 1
	d.freeze = false
}

// OnAck implements the slow-start growth rule and, once past slow start,
// the bandwidth-probed additive increase.
func (d *DAIMD) OnAck(ctx Context) {
	if d.slowStart {
		d.cwnd = ctx.Delivered
		if ctx.MaxFlowWindow > 0 && d.cwnd > ctx.MaxFlowWindow {
			d.slowStart = false
		}
		return
	}

	mss := float64(ctx.MSS)
	if mss <= 0 {
		mss = 1500
	}
	c := 1e6 / float64(d.pktSndPeriod.Microseconds())
	var inc float64
	if ctx.Bandwidth <= c {
		inc = 1 / mss
	} else {
		exp := math.Ceil(math.Log10((ctx.Bandwidth - c) * mss * 8))
		inc = math.Max(math.Pow(10, exp)*1.5e-6/mss, 1/mss)
	}
	d.cwnd += inc
	syn := float64(ctx.SYN.Microseconds())
	if syn <= 0 {
		syn = 10000
	}
	period := float64(d.pktSndPeriod.Microseconds())
	newPeriod := period * syn / (period*inc + syn)
	if newPeriod < 1 {
		newPeriod = 1
	}
	d.pktSndPeriod = time.Duration(newPeriod) * time.Microsecond
}

// OnLoss implements the multiplicative-decrease rule, with randomized
// dampening of repeated decreases inside the same loss epoch.
func (d *DAIMD) OnLoss(ctx Context, firstLost seq.Value, lossLen int) {
	if lossLen == 0 {
		return
	}
	d.slowStart = false
	if seq.GreaterThan(firstLost, d.lastDecSeq) {
		d.pktSndPeriod = time.Duration(float64(d.pktSndPeriod) * 1.125)
		d.freeze = true
		d.avgNakNum = math.Ceil(0.875*d.avgNakNum + 0.125*float64(d.nakCount))
		d.decRandom = uint32(1 + d.rng.Intn(max1(int(d.avgNakNum))))
		d.nakCount = 1
		d.lastDecSeq = ctx.SndCurrSeq
		return
	}
	d.nakCount++
	if d.decRandom != 0 && d.nakCount%d.decRandom == 0 {
		d.pktSndPeriod = time.Duration(float64(d.pktSndPeriod) * 1.125)
		d.lastDecSeq = ctx.SndCurrSeq
	}
}

// OnTimeout is a no-op for the default controller: EXP-driven retransmit is
// handled by the connection, not the congestion controller.
func (d *DAIMD) OnTimeout(ctx Context) {}

// OnPktSent is a no-op hook retained for controllers that track send-side
// pacing state (e.g. a custom CC logging inter-send gaps).
func (d *DAIMD) OnPktSent(ctx Context) {}

// OnPktReceived is a no-op hook retained for controllers reacting to
// incoming-packet timing (e.g. a custom CC doing its own bandwidth probe).
func (d *DAIMD) OnPktReceived(ctx Context) {}

// OnCongestionWarning applies the same decrease rule as the first loss in
// an epoch (§4.6).
func (d *DAIMD) OnCongestionWarning(ctx Context) {
	d.pktSndPeriod = time.Duration(float64(d.pktSndPeriod) * 1.125)
	d.freeze = true
	d.lastDecSeq = ctx.SndCurrSeq
}

// ProcessCustomMsg is a no-op for the default controller; it exists so
// custom controllers can react to EXT-type control packets.
func (d *DAIMD) ProcessCustomMsg(ctx Context, body []byte) {}

func (d *DAIMD) PktSndPeriod() time.Duration {
	if d.pktSndPeriod < time.Microsecond {
		return time.Microsecond
	}
	return d.pktSndPeriod
}

func (d *DAIMD) CWnd() float64 { return d.cwnd }

// ConsumeFreeze reports and clears the freeze flag set by OnLoss/
// OnCongestionWarning.
func (d *DAIMD) ConsumeFreeze() bool {
	f := d.freeze
	d.freeze = false
	return f
}

// ClampPeriod lowers pkt_snd_period to max if it currently exceeds it.
func (d *DAIMD) ClampPeriod(max time.Duration) {
	if d.pktSndPeriod > max {
		d.pktSndPeriod = max
	}
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
