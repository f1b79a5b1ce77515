//go:build !(rp2040 || rp2350)

package uart

import (
	"errors"
	"io"

	"go.bug.st/serial"
)

var ErrNoPort = errors.New("uart: port must be set")

// Open opens a host serial port at baud, 8N1.
func Open(port string, baud int) (io.WriteCloser, error) {
	if port == "" {
		return nil, ErrNoPort
	}
	return serial.Open(port, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
}

// Ports lists the serial ports present on the host.
func Ports() ([]string, error) { return serial.GetPortsList() }
