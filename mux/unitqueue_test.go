package mux

import "testing"

func TestUnitQueueGetPutReuses(t *testing.T) {
	q := NewUnitQueue(128)
	u := q.Get()
	if len(u.Buf) != 128 {
		t.Fatalf("unit buf len = %d, want 128", len(u.Buf))
	}
	q.Put(u)
	u2 := q.Get()
	if u2 != u {
		t.Fatal("expected Get to reuse the just-freed unit")
	}
}

func TestUnitQueueGrowsUnderLoad(t *testing.T) {
	q := NewUnitQueue(64)
	start := q.Len()
	held := make([]*Unit, 0, start+1)
	for i := 0; i < start+1; i++ {
		held = append(held, q.Get())
	}
	if q.Len() <= start {
		t.Fatalf("expected pool to grow past %d, got %d", start, q.Len())
	}
	for _, u := range held {
		q.Put(u)
	}
}

func TestUnitQueueDefaultsUnitSize(t *testing.T) {
	q := NewUnitQueue(0)
	u := q.Get()
	if len(u.Buf) != 1500 {
		t.Fatalf("unit buf len = %d, want default 1500", len(u.Buf))
	}
}
