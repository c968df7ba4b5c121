// Package metrics exposes the §6 "performance snapshot" as a
// prometheus.Collector, the way the pack's kernel-stats exporters
// (runZeroInc-sockstats, runZeroInc-conniver) turn a tcp_info-shaped
// struct into gauges on every scrape rather than pushing samples
// eagerly.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Snapshot is the instantaneous + cumulative view described in §6: global
// totals plus the current pacing/window/RTT/bandwidth state. Connections
// populate one of these on demand; SnapshotFunc below wires it to
// Prometheus without the connection depending on the prometheus package
// directly.
type Snapshot struct {
	// Cumulative totals.
	PktSent       uint64
	PktRecv       uint64
	AcksSent      uint64
	NaksSent      uint64
	Retransmits   uint64
	PktLostSend   uint64
	PktLostRecv   uint64

	// Instantaneous view.
	PktSndPeriodUs float64
	FlowWindow     float64
	CWndSize       float64
	FlightSize     float64
	RTTMs          float64
	BandwidthMbps  float64
	AvailSndBytes  float64
	AvailRcvBytes  float64
}

// SnapshotFunc is called on every Prometheus scrape to obtain the current
// Snapshot for one connection.
type SnapshotFunc func() Snapshot

// Collector adapts one or more connections' SnapshotFunc into Prometheus
// gauges/counters, labeled by the connection's correlation id.
type Collector struct {
	mu      sync.Mutex
	sources map[string]SnapshotFunc

	pktSent, pktRecv, acksSent, naksSent, retransmits *prometheus.Desc
	pktLostSend, pktLostRecv                          *prometheus.Desc
	pktSndPeriod, flowWindow, cwnd, flight             *prometheus.Desc
	rtt, bandwidth, availSnd, availRcv                 *prometheus.Desc
}

// NewCollector returns an empty Collector; connections register themselves
// with Register as they're established.
func NewCollector() *Collector {
	const ns = "udt"
	label := []string{"connection"}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(ns+"_"+name, help, label, nil)
	}
	return &Collector{
		sources:      make(map[string]SnapshotFunc),
		pktSent:      desc("packets_sent_total", "Total data packets sent."),
		pktRecv:      desc("packets_received_total", "Total data packets received."),
		acksSent:     desc("acks_sent_total", "Total ACK control packets sent."),
		naksSent:     desc("naks_sent_total", "Total NAK control packets sent."),
		retransmits:  desc("retransmits_total", "Total retransmitted data packets."),
		pktLostSend:  desc("packets_lost_send_total", "Total packets the sender had to retransmit due to loss."),
		pktLostRecv:  desc("packets_lost_recv_total", "Total gaps observed by the receiver."),
		pktSndPeriod: desc("pkt_snd_period_microseconds", "Current inter-packet send interval."),
		flowWindow:   desc("flow_window_packets", "Current advertised flow window."),
		cwnd:         desc("congestion_window_packets", "Current congestion window."),
		flight:       desc("flight_size_packets", "Current number of unacknowledged packets in flight."),
		rtt:          desc("smoothed_rtt_milliseconds", "Smoothed round-trip time estimate."),
		bandwidth:    desc("estimated_bandwidth_mbps", "Estimated bottleneck bandwidth."),
		availSnd:     desc("available_send_buffer_bytes", "Free bytes in the send buffer."),
		availRcv:     desc("available_recv_buffer_bytes", "Free bytes in the receive buffer."),
	}
}

// Register associates a correlation id with a SnapshotFunc so future
// scrapes include that connection. Registering the same id again replaces
// the prior source.
func (c *Collector) Register(connID string, fn SnapshotFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources[connID] = fn
}

// Unregister removes a connection's source, e.g. on connection teardown.
func (c *Collector) Unregister(connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sources, connID)
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.pktSent
	ch <- c.pktRecv
	ch <- c.acksSent
	ch <- c.naksSent
	ch <- c.retransmits
	ch <- c.pktLostSend
	ch <- c.pktLostRecv
	ch <- c.pktSndPeriod
	ch <- c.flowWindow
	ch <- c.cwnd
	ch <- c.flight
	ch <- c.rtt
	ch <- c.bandwidth
	ch <- c.availSnd
	ch <- c.availRcv
}

// Collect implements prometheus.Collector, taking a fresh Snapshot from
// every registered source on each scrape.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	sources := make(map[string]SnapshotFunc, len(c.sources))
	for id, fn := range c.sources {
		sources[id] = fn
	}
	c.mu.Unlock()

	for id, fn := range sources {
		s := fn()
		ch <- prometheus.MustNewConstMetric(c.pktSent, prometheus.CounterValue, float64(s.PktSent), id)
		ch <- prometheus.MustNewConstMetric(c.pktRecv, prometheus.CounterValue, float64(s.PktRecv), id)
		ch <- prometheus.MustNewConstMetric(c.acksSent, prometheus.CounterValue, float64(s.AcksSent), id)
		ch <- prometheus.MustNewConstMetric(c.naksSent, prometheus.CounterValue, float64(s.NaksSent), id)
		ch <- prometheus.MustNewConstMetric(c.retransmits, prometheus.CounterValue, float64(s.Retransmits), id)
		ch <- prometheus.MustNewConstMetric(c.pktLostSend, prometheus.CounterValue, float64(s.PktLostSend), id)
		ch <- prometheus.MustNewConstMetric(c.pktLostRecv, prometheus.CounterValue, float64(s.PktLostRecv), id)
		ch <- prometheus.MustNewConstMetric(c.pktSndPeriod, prometheus.GaugeValue, s.PktSndPeriodUs, id)
		ch <- prometheus.MustNewConstMetric(c.flowWindow, prometheus.GaugeValue, s.FlowWindow, id)
		ch <- prometheus.MustNewConstMetric(c.cwnd, prometheus.GaugeValue, s.CWndSize, id)
		ch <- prometheus.MustNewConstMetric(c.flight, prometheus.GaugeValue, s.FlightSize, id)
		ch <- prometheus.MustNewConstMetric(c.rtt, prometheus.GaugeValue, s.RTTMs, id)
		ch <- prometheus.MustNewConstMetric(c.bandwidth, prometheus.GaugeValue, s.BandwidthMbps, id)
		ch <- prometheus.MustNewConstMetric(c.availSnd, prometheus.GaugeValue, s.AvailSndBytes, id)
		ch <- prometheus.MustNewConstMetric(c.availRcv, prometheus.GaugeValue, s.AvailRcvBytes, id)
	}
}
