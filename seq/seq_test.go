package seq

import "testing"

func TestGreaterThanWrap(t *testing.T) {
	cases := []struct {
		a, b Value
		want bool
	}{
		{1, 0, true},
		{0, 1, false},
		{0, MaxValue - 1, true},  // wraps forward across zero
		{MaxValue - 1, 0, false}, // symmetric case
		{5, 5, false},
		{Threshold, 0, true},
		{Threshold + 1, 0, false}, // exactly past the antisymmetric boundary
	}
	for _, c := range cases {
		got := GreaterThan(c.a, c.b)
		if got != c.want {
			t.Errorf("GreaterThan(%d,%d) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestGreaterThanAntisymmetric(t *testing.T) {
	// For any a != b within a window smaller than the full space, exactly one
	// of GreaterThan(a,b) or GreaterThan(b,a) must hold.
	base := Value(MaxValue - 500)
	for i := Value(1); i < 1000; i++ {
		a := Add(base, Size(i))
		b := base
		if a == b {
			continue
		}
		gab := GreaterThan(a, b)
		gba := GreaterThan(b, a)
		if gab == gba {
			t.Fatalf("antisymmetry broken for a=%d b=%d: gab=%v gba=%v", a, b, gab, gba)
		}
	}
}

func TestInWindowWrap(t *testing.T) {
	start := Value(MaxValue - 10)
	if !InWindow(Value(5), start, 20) {
		t.Fatal("expected wrapped value inside window")
	}
	if InWindow(Value(11), start, 20) {
		t.Fatal("value should be outside window")
	}
	if InWindow(Value(1), start, 0) {
		t.Fatal("zero-size window must contain nothing")
	}
}

func TestAddSubRoundtrip(t *testing.T) {
	v := Value(MaxValue - 3)
	got := Add(v, 10)
	want := Value(7)
	if got != want {
		t.Fatalf("Add wraparound = %d, want %d", got, want)
	}
	if Sub(got, v) != 10 {
		t.Fatalf("Sub after Add = %d, want 10", Sub(got, v))
	}
}

func TestMsgGreaterThanWrap(t *testing.T) {
	if !GreaterThanMsg(1, 0) {
		t.Fatal("1 should be greater than 0")
	}
	if !GreaterThanMsg(0, MaxMsg-1) {
		t.Fatal("wrap should make 0 greater than MaxMsg-1")
	}
	if GreaterThanMsg(5, 5) {
		t.Fatal("value cannot be greater than itself")
	}
}
