// Package transport implements platform.CDC: a real serial-port adapter
// for the host build, and a pseudo-terminal adapter for simulation/tests,
// both grounded on the teacher's serial_port.go ("Interface to serial
// port, hiding operating system differences").
package transport

import (
	"fmt"

	"github.com/pkg/term"
)

// SerialCDC wraps github.com/pkg/term as the module's CDC transport.
type SerialCDC struct {
	t *term.Term
}

// OpenSerial opens devicename (e.g. "/dev/ttyACM0") at baud, in raw mode,
// matching serial_port_open's convention.
func OpenSerial(devicename string, baud int) (*SerialCDC, error) {
	var t, err = term.Open(devicename, term.RawMode)
	if err != nil {
		return nil, fmt.Errorf("transport: opening serial port %q: %w", devicename, err)
	}

	switch baud {
	case 0:
	case 1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200:
		t.SetSpeed(baud)
	default:
		t.SetSpeed(4800)
	}

	return &SerialCDC{t: t}, nil
}

func (s *SerialCDC) ReadChunk(buf []byte) (int, error) {
	return s.t.Read(buf)
}

func (s *SerialCDC) WriteChunk(data []byte) error {
	var n, err = s.t.Write(data)
	if err != nil {
		return fmt.Errorf("transport: serial write: %w", err)
	}
	if n != len(data) {
		return fmt.Errorf("transport: short serial write: %d of %d bytes", n, len(data))
	}
	return nil
}

func (s *SerialCDC) Flush() error {
	return nil // pkg/term has no explicit flush; raw mode writes are unbuffered
}

func (s *SerialCDC) Close() error {
	return s.t.Close()
}
