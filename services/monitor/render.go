package monitor

import (
	"wattmeter-go/drivers/ina219"
	"wattmeter-go/drivers/lcd"
	"wattmeter-go/x/conv"
)

// Format selects how values appear on the display.
type Format uint8

const (
	FormatHex     Format = iota // raw register words, 4 hex digits
	FormatDecimal               // mV, mA, V and mW
)

func ParseFormat(s string) Format {
	if s == "decimal" {
		return FormatDecimal
	}
	return FormatHex
}

// field is one label/value pair on a 16x2 panel.
type field struct {
	row, labelCol, valueCol, width uint8
	label                          string
}

var layout = [4]field{
	{row: 0, labelCol: 0, valueCol: 3, width: 6, label: "Vs:"},
	{row: 0, labelCol: 9, valueCol: 11, width: 5, label: "I:"},
	{row: 1, labelCol: 0, valueCol: 3, width: 6, label: "Vb:"},
	{row: 1, labelCol: 10, valueCol: 12, width: 4, label: "P:"},
}

// Panel renders samples onto a Display. Labels are drawn once; values are
// overwritten in place and padded to their field width.
type Panel struct {
	d      lcd.Display
	format Format
	drawn  bool
	buf    [3][12]byte
}

func NewPanel(d lcd.Display, f Format) *Panel { return &Panel{d: d, format: f} }

func (p *Panel) Render(s ina219.Sample) {
	if !p.drawn {
		p.d.Clear()
		for _, f := range layout {
			p.d.Position(f.row, f.labelCol)
			p.d.PrintString(f.label)
		}
		p.drawn = true
	}
	if p.format == FormatHex {
		words := [4]uint16{s.Raw.Shunt, s.Raw.Current, s.Raw.Bus >> 3, s.Raw.Power}
		for i, f := range layout {
			p.d.Position(f.row, f.valueCol)
			p.d.PrintHexUint16(words[i])
			p.pad(4, f.width)
		}
		return
	}
	b := &p.buf
	p.put(layout[0], // mV
		conv.Fixed(b[0][:], int64(s.Shunt_uV/10), 2),
		conv.Fixed(b[1][:], int64(s.Shunt_uV/100), 1),
		conv.Itoa(b[2][:], int64(s.Shunt_uV/1000)))
	p.put(layout[1], // mA, then A
		conv.Itoa(b[0][:], s.Current_uA/1000),
		withUnit(b[1][:], s.Current_uA/1_000_000, 'A'))
	p.put(layout[2], conv.Fixed(b[0][:], int64(s.Bus_mV/10), 2)) // V
	p.put(layout[3], // mW, then W
		conv.Itoa(b[0][:], s.Power_uW/1000),
		withUnit(b[1][:], s.Power_uW/1_000_000, 'W'))
}

// put prints the first candidate that fits the field. Values are never
// cut short; when nothing fits the field is filled with '#'.
func (p *Panel) put(f field, candidates ...[]byte) {
	p.d.Position(f.row, f.valueCol)
	for _, v := range candidates {
		if len(v) <= int(f.width) {
			p.d.PrintString(string(v))
			p.pad(len(v), f.width)
			return
		}
	}
	p.d.PrintString(hashes[:f.width])
}

// withUnit formats n followed by a one-letter unit.
func withUnit(buf []byte, n int64, unit byte) []byte {
	v := conv.Itoa(buf[:len(buf)-1], n)
	v = v[:len(v)+1]
	v[len(v)-1] = unit
	return v
}

func (p *Panel) pad(n int, width uint8) {
	if n < int(width) {
		p.d.PrintString(spaces[:int(width)-n])
	}
}

const (
	spaces = "        "
	hashes = "########"
)

// Invalidate forces the labels to be redrawn on the next Render.
func (p *Panel) Invalidate() { p.drawn = false }
