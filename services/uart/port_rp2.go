//go:build rp2040 || rp2350

package uart

import (
	"errors"
	"io"
	"machine"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"
)

var ErrNoPort = errors.New("uart: port must be uart0 or uart1")

type rp2Port struct{ u *uartx.UART }

func (p rp2Port) Write(b []byte) (int, error) { return p.u.Write(b) }
func (p rp2Port) Close() error                { return nil }

// Open configures uart0 (GP0/GP1) or uart1 (GP4/GP5).
func Open(port string, baud int) (io.WriteCloser, error) {
	var hw *uartx.UART
	var tx, rx machine.Pin
	switch port {
	case "", "uart0":
		hw, tx, rx = uartx.UART0, machine.GP0, machine.GP1
	case "uart1":
		hw, tx, rx = uartx.UART1, machine.GP4, machine.GP5
	default:
		return nil, ErrNoPort
	}
	if err := hw.Configure(uartx.UARTConfig{BaudRate: uint32(baud), TX: tx, RX: rx}); err != nil {
		return nil, err
	}
	return rp2Port{u: hw}, nil
}

func Ports() ([]string, error) { return []string{"uart0", "uart1"}, nil }
