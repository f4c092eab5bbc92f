//go:build linux

package electrode

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// i2cSlave is the I2C_SLAVE ioctl of linux/i2c-dev.h.
const i2cSlave = 0x0703

// I2CBus talks to one device on a Linux i2c-dev adapter such as /dev/i2c-1.
type I2CBus struct {
	fd   int
	addr uint16
}

// OpenI2C opens dev and binds it to the device at addr.
func OpenI2C(dev string, addr uint16) (*I2CBus, error) {
	fd, err := unix.Open(dev, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dev, err)
	}
	if err := unix.IoctlSetInt(fd, i2cSlave, int(addr)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("select i2c address 0x%02x: %w", addr, err)
	}
	return &I2CBus{fd: fd, addr: addr}, nil
}

// ReadRegister writes the register address then reads len(data) bytes.
func (b *I2CBus) ReadRegister(reg uint8, data []byte) error {
	if _, err := unix.Write(b.fd, []byte{reg}); err != nil {
		return fmt.Errorf("i2c 0x%02x: select register 0x%02x: %w", b.addr, reg, err)
	}
	n, err := unix.Read(b.fd, data)
	if err != nil {
		return fmt.Errorf("i2c 0x%02x: read register 0x%02x: %w", b.addr, reg, err)
	}
	if n != len(data) {
		return fmt.Errorf("i2c 0x%02x: short read of register 0x%02x: %d/%d", b.addr, reg, n, len(data))
	}
	return nil
}

// WriteRegister writes data starting at reg.
func (b *I2CBus) WriteRegister(reg uint8, data []byte) error {
	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, reg)
	buf = append(buf, data...)
	if _, err := unix.Write(b.fd, buf); err != nil {
		return fmt.Errorf("i2c 0x%02x: write register 0x%02x: %w", b.addr, reg, err)
	}
	return nil
}

// Close releases the adapter.
func (b *I2CBus) Close() error {
	return unix.Close(b.fd)
}
