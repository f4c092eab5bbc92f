package capsense

import (
	"errors"
	"testing"
	"time"
)

// setupSlider creates a tuned three electrode slider resting at base.
func setupSlider(t *testing.T, base int16) (*Array, []*levelRaw, *manualClock) {
	t.Helper()
	levels := []*levelRaw{{level: base}, {level: base}, {level: base}}
	raws := []RawChannel{levels[0], levels[1], levels[2]}
	clk := newManualClock()

	a, err := NewSlider(raws, clk.now, testGlobal(), testLocal())
	if err != nil {
		t.Fatalf("NewSlider: %v", err)
	}
	a.SetBaselineTune(0)
	if err := a.TuneBaseline(0); err != nil {
		t.Fatalf("tune baseline: %v", err)
	}
	return a, levels, clk
}

// pollArray advances the clock, sets every electrode level and runs one update.
func pollArray(t *testing.T, a *Array, raws []*levelRaw, clk *manualClock, d time.Duration, levels ...int16) int32 {
	t.Helper()
	clk.advance(d)
	for i, l := range levels {
		raws[i].level = l
	}
	delta, err := a.Update()
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	return delta
}

func TestNewArrayChannelCount(t *testing.T) {
	clk := newManualClock()
	two := []RawChannel{&levelRaw{}, &levelRaw{}}

	if _, err := NewWheel(two, clk.now, testGlobal(), testLocal()); !errors.Is(err, ErrChannelCount) {
		t.Errorf("wheel with 2 electrodes: expected ErrChannelCount, got %v", err)
	}
	if _, err := NewSlider(make([]RawChannel, 7), clk.now, testGlobal(), testLocal()); !errors.Is(err, ErrChannelCount) {
		t.Errorf("slider with 7 electrodes: expected ErrChannelCount, got %v", err)
	}
	single := &scriptedEstimator{}
	if _, err := NewArray([]RawChannel{&levelRaw{}}, single, clk.now, testGlobal(), testLocal()); !errors.Is(err, ErrChannelCount) {
		t.Errorf("single electrode: expected ErrChannelCount, got %v", err)
	}

	a, err := NewSlider(two, clk.now, testGlobal(), testLocal())
	if err != nil {
		t.Fatalf("two electrode slider: %v", err)
	}
	if a.Len() != 2 {
		t.Errorf("expected 2 electrodes, got %d", a.Len())
	}
}

func TestArrayPseudoBaselineIsMean(t *testing.T) {
	raws := []RawChannel{&levelRaw{level: 100}, &levelRaw{level: 200}, &levelRaw{level: 600}}
	a, err := NewWheel(raws, newManualClock().now, testGlobal(), testLocal())
	if err != nil {
		t.Fatalf("NewWheel: %v", err)
	}
	a.SetBaselineTune(0)
	if err := a.TuneBaseline(0); err != nil {
		t.Fatalf("tune baseline: %v", err)
	}
	if a.Baseline() != 300 {
		t.Errorf("expected pseudo baseline 300, got %d", a.Baseline())
	}
}

func TestSliderTouchAndMove(t *testing.T) {
	a, raws, clk := setupSlider(t, 100)
	m := NewMonitor(clk.now())
	m.Watch("slider", a)

	// Finger on the first electrode.
	var events []Event
	for i := 0; i < 3; i++ {
		pollArray(t, a, raws, clk, 10*time.Millisecond, 400, 100, 100)
		events = append(events, m.Process(clk.now())...)
	}
	if !a.IsTouched() {
		t.Fatalf("expected slider TOUCH, got %s", a.State())
	}
	if len(events) != 1 || events[0].Type != EventTouch {
		t.Fatalf("expected a single TOUCH event, got %+v", events)
	}
	if a.Delta() != 100 {
		t.Errorf("expected pseudo delta 100, got %d", a.Delta())
	}
	if a.ChannelDelta(0) != 300 || a.ChannelDelta(1) != 0 {
		t.Errorf("unexpected electrode deltas %d/%d", a.ChannelDelta(0), a.ChannelDelta(1))
	}

	// The position only becomes valid on the second touched poll.
	if a.Position() != 0 {
		t.Errorf("position moved on the first touched poll: %d", a.Position())
	}
	pollArray(t, a, raws, clk, 10*time.Millisecond, 400, 100, 100)
	if events := m.Process(clk.now()); len(events) != 0 {
		t.Errorf("a zero step must not emit MOVE, got %+v", events)
	}
	if a.Position() != 127 {
		t.Fatalf("expected position 127, got %d", a.Position())
	}

	// Slide to the middle electrode.
	pollArray(t, a, raws, clk, 10*time.Millisecond, 100, 400, 100)
	if !a.Moved() {
		t.Fatal("expected the slider to report movement")
	}
	events = m.Process(clk.now())
	if len(events) != 1 || events[0].Type != EventMove {
		t.Fatalf("expected a single MOVE event, got %+v", events)
	}
	if events[0].Position != 0 || events[0].Step != -127 {
		t.Errorf("expected MOVE to 0 by -127, got %d by %d", events[0].Position, events[0].Step)
	}
	if a.Step() != 0 {
		t.Error("the MOVE event should have consumed the step")
	}
}

func TestSliderReleaseKeepsPosition(t *testing.T) {
	a, raws, clk := setupSlider(t, 100)
	for i := 0; i < 4; i++ {
		pollArray(t, a, raws, clk, 10*time.Millisecond, 100, 100, 400)
	}
	if a.Position() != -127 {
		t.Fatalf("expected position -127, got %d", a.Position())
	}

	pollArray(t, a, raws, clk, 10*time.Millisecond, 100, 100, 100)
	pollArray(t, a, raws, clk, 20*time.Millisecond, 100, 100, 100)
	if !a.IsJustTouchReleased() {
		t.Fatalf("expected release, got %s", a.State())
	}
	if a.Moved() {
		t.Error("an untouched slider must not move")
	}
	if a.Position() != -127 {
		t.Errorf("position should hold after release, got %d", a.Position())
	}
}

func TestArrayUpdateErrorLeavesState(t *testing.T) {
	a, raws, clk := setupSlider(t, 100)
	pollArray(t, a, raws, clk, 10*time.Millisecond, 130, 100, 100)
	before := a.Snapshot()
	d0 := a.ChannelDelta(0)

	errRead := errors.New("electrode open")
	raws[2].err = errRead
	raws[0].level = 400
	clk.advance(10 * time.Millisecond)
	if _, err := a.Update(); !errors.Is(err, errRead) {
		t.Fatalf("expected wrapped read error, got %v", err)
	}
	if a.Snapshot() != before || a.ChannelDelta(0) != d0 {
		t.Error("state changed on a failed update")
	}
}

func TestArrayChannelDeltaOutOfRange(t *testing.T) {
	a, _, _ := setupSlider(t, 100)
	if a.ChannelDelta(-1) != 0 || a.ChannelDelta(3) != 0 {
		t.Error("out of range electrodes should report 0")
	}
}

func TestArrayTuneThreshold(t *testing.T) {
	raws := []RawChannel{
		&cycleRaw{values: []int16{400, 600}},
		&cycleRaw{values: []int16{100, 300}},
	}
	a, err := NewSlider(raws, newManualClock().now, testGlobal(), testLocal())
	if err != nil {
		t.Fatalf("NewSlider: %v", err)
	}
	a.SetBaselineTune(0)

	if err := a.TuneThreshold(0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Baseline() != 250 {
		t.Errorf("expected pseudo baseline 250, got %d", a.Baseline())
	}
	if a.MaxDelta() != 200 {
		t.Errorf("expected max delta 200, got %d", a.MaxDelta())
	}
	if l := a.LocalSettings(); l.TouchThreshold != 80 || l.ProxThreshold != 8 {
		t.Errorf("unexpected thresholds %+v", l)
	}
}

func TestSetChargeDelayForwardsToEveryElectrode(t *testing.T) {
	d0, d1 := &delayRaw{}, &delayRaw{}
	a, err := NewSlider([]RawChannel{d0, d1}, newManualClock().now, testGlobal(), testLocal())
	if err != nil {
		t.Fatalf("NewSlider: %v", err)
	}
	a.SetChargeDelay(3 * time.Microsecond)
	if d0.delay != 3*time.Microsecond || d1.delay != 3*time.Microsecond {
		t.Errorf("expected delay on every electrode, got %v/%v", d0.delay, d1.delay)
	}
}

func TestArrayResetDelayRetunesEveryElectrode(t *testing.T) {
	l := testLocal()
	l.ResetDelay = 100 * time.Millisecond
	levels := []*levelRaw{{level: 100}, {level: 100}, {level: 100}}
	clk := newManualClock()
	a, err := NewSlider([]RawChannel{levels[0], levels[1], levels[2]}, clk.now, testGlobal(), l)
	if err != nil {
		t.Fatalf("NewSlider: %v", err)
	}
	a.SetBaselineTune(0)
	if err := a.TuneBaseline(0); err != nil {
		t.Fatalf("tune baseline: %v", err)
	}
	m := NewMonitor(clk.now())
	m.Watch("slider", a)

	// An object resting on the first electrode. Touch is reported on poll 3
	// and has been held for more than 100ms on poll 14.
	var events []Event
	retuned := 0
	for i := 1; i <= 30; i++ {
		pollArray(t, a, levels, clk, 10*time.Millisecond, 400, 100, 100)
		events = append(events, m.Process(clk.now())...)
		if retuned == 0 && a.Baseline() != 100 {
			retuned = i
		}
	}

	if retuned != 14 {
		t.Errorf("expected the retune on poll 14, got %d", retuned)
	}
	want := []uint16{400, 100, 100}
	for i, w := range want {
		if got := a.chans[i].Baseline; got != w {
			t.Errorf("electrode %d: expected baseline %d, got %d", i, w, got)
		}
	}
	if a.Baseline() != 200 {
		t.Errorf("expected pseudo baseline 200 (mean of electrodes), got %d", a.Baseline())
	}
	if len(events) != 2 || events[0].Type != EventTouch || events[1].Type != EventRelease {
		t.Fatalf("expected TOUCH then RELEASE, got %+v", events)
	}
	if a.IsTouched() || a.Delta() != 0 {
		t.Errorf("expected idle after retune, got %s delta %d", a.State(), a.Delta())
	}
}
