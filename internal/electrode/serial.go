package electrode

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/tarm/serial"
)

// SerialSource reads raw samples streamed by a microcontroller, one line
// per frame with one integer column per electrode:
//
//	412,398,405
//
// Columns may be separated by commas or whitespace. Empty lines and lines
// starting with '#' are skipped. Channels return the latest frame, so the
// sender is expected to oversample on its side.
type SerialSource struct {
	r       io.Reader
	columns int

	mu      sync.Mutex
	latest  []int16
	valid   bool
	frames  uint64
	dropped uint64
}

// NewSerialSource creates a source over r. Nothing is read until Run.
func NewSerialSource(r io.Reader, columns int) *SerialSource {
	return &SerialSource{
		r:       r,
		columns: columns,
		latest:  make([]int16, columns),
	}
}

// OpenSerial opens a serial port and returns a source reading from it. The
// returned closer releases the port and unblocks Run.
func OpenSerial(name string, baud, columns int) (*SerialSource, io.Closer, error) {
	port, err := serial.OpenPort(&serial.Config{Name: name, Baud: baud})
	if err != nil {
		return nil, nil, fmt.Errorf("open serial %s: %w", name, err)
	}
	return NewSerialSource(port, columns), port, nil
}

// Run reads frames until the reader ends or ctx is cancelled. Lines that do
// not parse are counted as dropped.
func (s *SerialSource) Run(ctx context.Context) error {
	sc := bufio.NewScanner(s.r)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		frame, err := parseFrame(line, s.columns)

		s.mu.Lock()
		if err != nil {
			s.dropped++
		} else {
			copy(s.latest, frame)
			s.valid = true
			s.frames++
		}
		s.mu.Unlock()
	}
	if err := sc.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read serial: %w", err)
	}
	return nil
}

func parseFrame(line string, columns int) ([]int16, error) {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t'
	})
	if len(fields) != columns {
		return nil, fmt.Errorf("got %d columns, want %d", len(fields), columns)
	}
	frame := make([]int16, columns)
	for i, f := range fields {
		v, err := strconv.ParseInt(f, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i, err)
		}
		frame[i] = int16(v)
	}
	return frame, nil
}

// Channel returns the electrode in column i.
func (s *SerialSource) Channel(i int) (*SerialChannel, error) {
	if i < 0 || i >= s.columns {
		return nil, fmt.Errorf("serial column %d out of range (have %d)", i, s.columns)
	}
	return &SerialChannel{src: s, column: i}, nil
}

// Stats returns the number of accepted and dropped frames.
func (s *SerialSource) Stats() (frames, dropped uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames, s.dropped
}

// SerialChannel is one column of a SerialSource.
type SerialChannel struct {
	src    *SerialSource
	column int
}

// Read returns the column of the latest frame, or ErrNoData before the
// first one.
func (c *SerialChannel) Read() (int16, error) {
	c.src.mu.Lock()
	defer c.src.mu.Unlock()
	if !c.src.valid {
		return 0, ErrNoData
	}
	return c.src.latest[c.column], nil
}
