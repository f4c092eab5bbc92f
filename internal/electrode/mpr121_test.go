package electrode

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeBus is an in-memory MPR121 register file.
type fakeBus struct {
	regs    [256]byte
	writes  []uint8
	readErr error
}

func newFakeBus() *fakeBus {
	b := &fakeBus{}
	b.regs[regConfig2] = 0x24
	return b
}

func (b *fakeBus) ReadRegister(reg uint8, data []byte) error {
	if b.readErr != nil {
		return b.readErr
	}
	copy(data, b.regs[reg:])
	return nil
}

func (b *fakeBus) WriteRegister(reg uint8, data []byte) error {
	b.writes = append(b.writes, reg)
	if reg == regSoftReset {
		b.regs[regConfig2] = 0x24
		return nil
	}
	copy(b.regs[reg:], data)
	return nil
}

func TestNewMPR121Configures(t *testing.T) {
	bus := newFakeBus()
	if _, err := NewMPR121(bus, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bus.writes[0] != regSoftReset {
		t.Errorf("expected a soft reset first, got 0x%02x", bus.writes[0])
	}
	if bus.regs[regECR] != 0x83 {
		t.Errorf("expected ECR 0x83 running 3 electrodes, got 0x%02x", bus.regs[regECR])
	}
}

func TestNewMPR121Errors(t *testing.T) {
	if _, err := NewMPR121(newFakeBus(), 0); err == nil {
		t.Error("expected error for 0 electrodes")
	}
	if _, err := NewMPR121(newFakeBus(), 13); err == nil {
		t.Error("expected error for 13 electrodes")
	}

	// A device that does not come out of reset as expected.
	bus := &fakeBus{}
	bus.regs[regConfig2] = 0x00
	bad := &badResetBus{fakeBus: bus}
	if _, err := NewMPR121(bad, 1); err == nil {
		t.Error("expected error for unexpected CONFIG2")
	}
}

// badResetBus ignores soft resets.
type badResetBus struct {
	*fakeBus
}

func (b *badResetBus) WriteRegister(reg uint8, data []byte) error {
	if reg == regSoftReset {
		return nil
	}
	return b.fakeBus.WriteRegister(reg, data)
}

func TestMPR121ChannelRead(t *testing.T) {
	bus := newFakeBus()
	d, err := NewMPR121(bus, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ch, err := d.Channel(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Electrode 1 filtered data is 0x02C0 = 704, low byte first.
	bus.regs[regFiltData0L+2] = 0xC0
	bus.regs[regFiltData0L+3] = 0x02
	got, err := ch.Read()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1023-704 {
		t.Errorf("expected %d, got %d", 1023-704, got)
	}

	errBus := errors.New("nack")
	bus.readErr = errBus
	if _, err := ch.Read(); !errors.Is(err, errBus) {
		t.Errorf("expected wrapped bus error, got %v", err)
	}
}

func TestMPR121ChannelRange(t *testing.T) {
	d, err := NewMPR121(newFakeBus(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := d.Channel(2); err == nil {
		t.Error("expected error for a disabled electrode")
	}
}

func TestMPR121SetChargeDelay(t *testing.T) {
	bus := newFakeBus()
	d, _ := NewMPR121(bus, 4)
	ch2, _ := d.Channel(2)
	ch3, _ := d.Channel(3)

	ch2.SetChargeDelay(2 * time.Microsecond)
	ch3.SetChargeDelay(100 * time.Microsecond)

	// Electrodes 2 and 3 share the second charge time register.
	if got := bus.regs[regChargeTime+1]; got != 0x73 {
		t.Errorf("expected charge time register 0x73, got 0x%02x", got)
	}
	if bus.regs[regECR] != 0x84 {
		t.Errorf("ECR should be restored after the write, got 0x%02x", bus.regs[regECR])
	}
	if _, err := ch2.Read(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestMPR121SetChargeDelayErrorReportedOnce(t *testing.T) {
	bus := newFakeBus()
	d, _ := NewMPR121(bus, 2)
	ch, _ := d.Channel(1)

	bus.readErr = errors.New("nack")
	ch.SetChargeDelay(time.Microsecond)
	bus.readErr = nil

	if _, err := ch.Read(); err == nil {
		t.Fatal("expected the charge time failure on the next read")
	}
	if _, err := ch.Read(); err != nil {
		t.Errorf("the failure should be reported once, got %v", err)
	}
}

func TestMPR121ConcurrentChargeDelayAndRead(t *testing.T) {
	bus := newFakeBus()
	d, _ := NewMPR121(bus, 2)
	ch, _ := d.Channel(0)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			ch.SetChargeDelay(time.Duration(i) * time.Microsecond)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			if _, err := ch.Read(); err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
		}
	}()
	wg.Wait()
}

func TestChargeTimeCode(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want uint8
	}{
		{0, 1},
		{500 * time.Nanosecond, 1},
		{time.Microsecond, 2},
		{1500 * time.Nanosecond, 3},
		{32 * time.Microsecond, 7},
		{time.Millisecond, 7},
	}
	for _, tt := range tests {
		if got := chargeTimeCode(tt.d); got != tt.want {
			t.Errorf("chargeTimeCode(%v) = %d, want %d", tt.d, got, tt.want)
		}
	}
}
