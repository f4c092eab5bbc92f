package electrode

import (
	"fmt"
	"sync"
	"time"
)

// MPR121 I2C addresses, selected by the ADDR pin.
const (
	MPR121Address    = 0x5A
	MPR121Address3Vo = 0x5B
	MPR121AddressSDA = 0x5C
	MPR121AddressSCL = 0x5D
)

// MPR121 registers.
const (
	regFiltData0L = 0x04
	regMHDR       = 0x2B
	regNHDR       = 0x2C
	regNCLR       = 0x2D
	regFDLR       = 0x2E
	regMHDF       = 0x2F
	regNHDF       = 0x30
	regNCLF       = 0x31
	regFDLF       = 0x32
	regDebounce   = 0x5B
	regConfig1    = 0x5C
	regConfig2    = 0x5D
	regECR        = 0x5E
	regChargeTime = 0x6C
	regSoftReset  = 0x80
)

// mpr121Electrodes is the number of sensing inputs of the controller.
const mpr121Electrodes = 12

// Bus is a register level connection to one I2C device.
type Bus interface {
	ReadRegister(reg uint8, data []byte) error
	WriteRegister(reg uint8, data []byte) error
}

// MPR121 reads raw electrode data from an MPR121 controller. Its own touch
// detection is left unused; only the filtered data registers are read.
type MPR121 struct {
	mu         sync.Mutex
	bus        Bus
	electrodes uint8
}

// NewMPR121 resets the controller and starts it converting the first
// electrodes inputs.
func NewMPR121(bus Bus, electrodes int) (*MPR121, error) {
	if electrodes < 1 || electrodes > mpr121Electrodes {
		return nil, fmt.Errorf("mpr121: %d electrodes, want 1..%d", electrodes, mpr121Electrodes)
	}
	d := &MPR121{bus: bus, electrodes: uint8(electrodes)}
	if err := d.configure(); err != nil {
		return nil, fmt.Errorf("mpr121: configure: %w", err)
	}
	return d, nil
}

func (d *MPR121) configure() error {
	if err := d.bus.WriteRegister(regSoftReset, []byte{0x63}); err != nil {
		return err
	}

	// CONFIG2 reads 0x24 after a reset.
	data := []byte{0}
	if err := d.bus.ReadRegister(regConfig2, data); err != nil {
		return err
	}
	if data[0] != 0x24 {
		return fmt.Errorf("unexpected CONFIG2 0x%02x after reset", data[0])
	}

	writes := []struct{ reg, value uint8 }{
		{regECR, 0x00},
		{regMHDR, 0x01},
		{regNHDR, 0x01},
		{regNCLR, 0x0E},
		{regFDLR, 0x00},
		{regMHDF, 0x01},
		{regNHDF, 0x05},
		{regNCLF, 0x01},
		{regFDLF, 0x00},
		{regDebounce, 0x00},
		// 16uA charge current, 6 samples first filter.
		{regConfig1, 0x10},
		// 0.5us charge time, 4 samples second filter, 1ms period.
		{regConfig2, 0x20},
		{regECR, 0x80 | d.electrodes},
	}
	for _, w := range writes {
		if err := d.bus.WriteRegister(w.reg, []byte{w.value}); err != nil {
			return fmt.Errorf("write 0x%02x: %w", w.reg, err)
		}
	}
	return nil
}

// writeStopped writes a configuration register. The controller ignores
// writes other than ECR while running, so it is stopped around the write.
func (d *MPR121) writeStopped(reg, value uint8) error {
	ecr := []byte{0}
	if err := d.bus.ReadRegister(regECR, ecr); err != nil {
		return err
	}
	if err := d.bus.WriteRegister(regECR, []byte{0}); err != nil {
		return err
	}
	if err := d.bus.WriteRegister(reg, []byte{value}); err != nil {
		return err
	}
	return d.bus.WriteRegister(regECR, ecr)
}

// Channel returns electrode i.
func (d *MPR121) Channel(i int) (*MPR121Channel, error) {
	if i < 0 || i >= int(d.electrodes) {
		return nil, fmt.Errorf("mpr121: electrode %d not enabled (have %d)", i, d.electrodes)
	}
	return &MPR121Channel{dev: d, index: uint8(i)}, nil
}

// MPR121Channel is one electrode of an MPR121.
type MPR121Channel struct {
	dev   *MPR121
	index uint8
	err   error // guarded by dev.mu
}

// Read returns the filtered 10 bit data inverted so that a touch, which
// lowers the controller count, raises the sample.
func (c *MPR121Channel) Read() (int16, error) {
	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()

	if err := c.err; err != nil {
		c.err = nil
		return 0, fmt.Errorf("mpr121: set charge time: %w", err)
	}

	data := []byte{0, 0}
	if err := c.dev.bus.ReadRegister(regFiltData0L+2*c.index, data); err != nil {
		return 0, fmt.Errorf("mpr121: read electrode %d: %w", c.index, err)
	}
	v := (uint16(data[1])<<8 | uint16(data[0])) & 0x3FF
	return int16(0x3FF - v), nil
}

// SetChargeDelay sets the electrode charge time, rounded up to the next
// step the controller supports (0.5us to 32us). A write failure is
// reported by the next Read.
func (c *MPR121Channel) SetChargeDelay(d time.Duration) {
	code := chargeTimeCode(d)

	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()

	reg := regChargeTime + c.index/2
	cur := []byte{0}
	if err := c.dev.bus.ReadRegister(reg, cur); err != nil {
		c.err = err
		return
	}
	v := cur[0]
	if c.index%2 == 0 {
		v = v&^0x07 | code
	} else {
		v = v&^0x70 | code<<4
	}
	c.err = c.dev.writeStopped(reg, v)
}

// chargeTimeCode encodes d as the CDT field: 0.5us * 2^(code-1).
func chargeTimeCode(d time.Duration) uint8 {
	step := 500 * time.Nanosecond
	code := uint8(1)
	for step < d && code < 7 {
		step *= 2
		code++
	}
	return code
}
