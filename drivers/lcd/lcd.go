// Package lcd is the character display used for readings.
package lcd

import (
	"errors"

	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/hd44780i2c"

	"wattmeter-go/x/conv"
)

// Display is a character LCD addressed by row and column.
type Display interface {
	Position(row, col uint8)
	PrintString(s string)
	PrintHexUint16(v uint16)
	Clear()
}

const (
	DefaultAddress = 0x27
	DefaultCols    = 16
	DefaultRows    = 2
)

var ErrGeometry = errors.New("lcd: cols and rows must be non-zero")

// HD44780 is a display behind a PCF8574 backpack.
type HD44780 struct {
	dev hd44780i2c.Device
	hex [4]byte
}

// NewHD44780 initialises the display. Initialisation takes about a second.
func NewHD44780(bus drivers.I2C, addr uint8, cols, rows uint8) (*HD44780, error) {
	if cols == 0 || rows == 0 {
		return nil, ErrGeometry
	}
	d := &HD44780{dev: hd44780i2c.New(bus, addr)}
	if err := d.dev.Configure(hd44780i2c.Config{Width: cols, Height: rows}); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *HD44780) Position(row, col uint8) { d.dev.SetCursor(col, row) }

func (d *HD44780) PrintString(s string) { d.dev.Print([]byte(s)) }

func (d *HD44780) PrintHexUint16(v uint16) { d.dev.Print(conv.U16Hex(d.hex[:], v)) }

func (d *HD44780) Clear() { d.dev.ClearDisplay() }
