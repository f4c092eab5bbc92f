//go:build !linux

package electrode

// I2CBus is not available on non-Linux platforms.
type I2CBus struct{}

// OpenI2C returns ErrUnsupported on non-Linux platforms.
func OpenI2C(dev string, addr uint16) (*I2CBus, error) {
	return nil, ErrUnsupported
}

// ReadRegister is not implemented on non-Linux platforms.
func (b *I2CBus) ReadRegister(reg uint8, data []byte) error {
	return ErrUnsupported
}

// WriteRegister is not implemented on non-Linux platforms.
func (b *I2CBus) WriteRegister(reg uint8, data []byte) error {
	return ErrUnsupported
}

// Close is not implemented on non-Linux platforms.
func (b *I2CBus) Close() error {
	return nil
}
