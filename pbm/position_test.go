package pbm

import "testing"

func TestLogPositionInt64RoundTrip(t *testing.T) {
	tests := []LogPosition{
		Zero,
		{T: 1, I: 0},
		{T: 1700000000, I: 42},
		{T: 1, I: 1},
	}
	for _, p := range tests {
		got := FromInt64(p.ToInt64())
		if got != p {
			t.Fatalf("round trip: got %+v, want %+v", got, p)
		}
	}
}

func TestLogPositionCompare(t *testing.T) {
	a := LogPosition{T: 1, I: 5}
	b := LogPosition{T: 1, I: 6}
	c := LogPosition{T: 2, I: 0}

	if !a.Before(b) || a.After(b) {
		t.Fatal("a should be strictly before b")
	}
	if !c.After(b) || c.Before(b) {
		t.Fatal("c should be strictly after b")
	}
	if a.Before(a) || a.After(a) {
		t.Fatal("a position never precedes or follows itself")
	}
}

func TestMinMaxPosition(t *testing.T) {
	a := LogPosition{T: 1, I: 5}
	b := LogPosition{T: 2, I: 0}

	if got := MinPosition(a, b); got != a {
		t.Fatalf("MinPosition(a, b) = %v, want %v", got, a)
	}
	if got := MaxPosition(a, b); got != b {
		t.Fatalf("MaxPosition(a, b) = %v, want %v", got, b)
	}
}
