package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestCollectorGathersRegisteredSources(t *testing.T) {
	c := NewCollector()
	c.Register("conn-1", func() Snapshot {
		return Snapshot{PktSent: 42, CWndSize: 16, RTTMs: 1.5}
	})

	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatal(err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "udt_packets_sent_total" {
			found = true
			if got := f.Metric[0].GetCounter().GetValue(); got != 42 {
				t.Fatalf("packets_sent_total = %v, want 42", got)
			}
		}
	}
	if !found {
		t.Fatal("expected udt_packets_sent_total metric family")
	}
}

func TestCollectorUnregisterRemovesSource(t *testing.T) {
	c := NewCollector()
	c.Register("conn-1", func() Snapshot { return Snapshot{PktSent: 1} })
	c.Unregister("conn-1")

	ch := make(chan prometheus.Metric, 16)
	c.Collect(ch)
	close(ch)
	var n int
	for range ch {
		n++
	}
	if n != 0 {
		t.Fatalf("expected no metrics after unregister, got %d", n)
	}
}
