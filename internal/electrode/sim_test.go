package electrode

import (
	"testing"
	"time"
)

type stepClock struct {
	t time.Time
}

func (c *stepClock) now() time.Time { return c.t }

func TestSimChannelPressPattern(t *testing.T) {
	clk := &stepClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	s := NewSimChannel(clk.now, 200, 80, 0, time.Second, 300*time.Millisecond, 100*time.Millisecond)

	tests := []struct {
		at   time.Duration
		want int16
	}{
		{0, 200},
		{99 * time.Millisecond, 200},
		{100 * time.Millisecond, 280},
		{399 * time.Millisecond, 280},
		{400 * time.Millisecond, 200},
		{1100 * time.Millisecond, 280},
	}

	start := clk.t
	for _, tt := range tests {
		clk.t = start.Add(tt.at)
		got, err := s.Read()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != tt.want {
			t.Errorf("at %v: expected %d, got %d", tt.at, tt.want, got)
		}
	}
}

func TestSimChannelNoiseBounded(t *testing.T) {
	clk := &stepClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	s := NewSimChannel(clk.now, 500, 0, 3, 0, 0, 0)

	seen := make(map[int16]bool)
	for i := 0; i < 1000; i++ {
		v, _ := s.Read()
		if v < 497 || v > 503 {
			t.Fatalf("read %d: noise out of bounds: %d", i, v)
		}
		seen[v] = true
	}
	if len(seen) < 2 {
		t.Error("expected some noise")
	}
}

func TestSimChannelReproducible(t *testing.T) {
	clk := &stepClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	a := NewSimChannel(clk.now, 500, 0, 5, 0, 0, 0)
	b := NewSimChannel(clk.now, 500, 0, 5, 0, 0, 0)
	for i := 0; i < 100; i++ {
		va, _ := a.Read()
		vb, _ := b.Read()
		if va != vb {
			t.Fatalf("read %d: %d != %d", i, va, vb)
		}
	}
}
