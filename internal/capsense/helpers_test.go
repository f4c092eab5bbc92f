package capsense

import (
	"errors"
	"testing"
	"time"
)

// levelRaw returns a settable constant level and counts reads.
type levelRaw struct {
	level int16
	err   error
	reads int
}

func (r *levelRaw) Read() (int16, error) {
	if r.err != nil {
		return 0, r.err
	}
	r.reads++
	return r.level, nil
}

// cycleRaw returns its values in a loop.
type cycleRaw struct {
	values []int16
	i      int
}

func (r *cycleRaw) Read() (int16, error) {
	if len(r.values) == 0 {
		return 0, errors.New("no values")
	}
	v := r.values[r.i%len(r.values)]
	r.i++
	return v, nil
}

// manualClock only moves when told to.
type manualClock struct {
	t time.Time
}

func newManualClock() *manualClock {
	return &manualClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *manualClock) now() time.Time { return c.t }

func (c *manualClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// steppingClock returns start, start+step, start+2*step, ... on successive calls.
func steppingClock(step time.Duration) Clock {
	t := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		now := t
		t = t.Add(step)
		return now
	}
}

// testGlobal makes acquisitions and filtering transparent: one read per
// acquisition, no division, full filter weight.
func testGlobal() GlobalSettings {
	return GlobalSettings{
		Samples:           0,
		Divider:           0,
		ExpWeight:         255,
		Debounce:          20 * time.Millisecond,
		NoiseDelta:        0,
		NoiseIncrement:    1,
		NoiseCountRising:  50 * time.Millisecond,
		NoiseCountFalling: 5 * time.Millisecond,
	}
}

func testLocal() LocalSettings {
	l := DefaultLocalSettings()
	l.ResetDelay = 0
	return l
}

// setupChannel creates a channel tuned to base.
func setupChannel(t *testing.T, base int16, g GlobalSettings, l LocalSettings) (*Channel, *levelRaw, *manualClock) {
	t.Helper()
	raw := &levelRaw{level: base}
	clk := newManualClock()
	c := NewChannel(raw, clk.now, g, l)
	c.SetBaselineTune(0)
	if err := c.TuneBaseline(0); err != nil {
		t.Fatalf("tune baseline: %v", err)
	}
	if c.Baseline() != uint16(base) {
		t.Fatalf("expected baseline %d, got %d", base, c.Baseline())
	}
	return c, raw, clk
}

// poll advances the clock, sets the level and runs one update.
func poll(t *testing.T, c *Channel, raw *levelRaw, clk *manualClock, d time.Duration, level int16) int32 {
	t.Helper()
	clk.advance(d)
	raw.level = level
	delta, err := c.Update()
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	return delta
}
