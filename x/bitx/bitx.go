// Package bitx names the set bits of small register and status values.
package bitx

import "strings"

// Bits is any 8- or 16-bit flag type.
type Bits interface {
	~uint8 | ~uint16
}

// BitName pairs a bit value with a printable name.
type BitName[T Bits] struct {
	Bit  T
	Name string
}

// BitIter is a zero-alloc iterator over set bits in a value, filtered by a table.
type BitIter[T Bits] struct {
	v     T
	i     int
	table []BitName[T]
}

// NewBitIter constructs an iterator over set bits present in v that also exist in table.
func NewBitIter[T Bits](v T, table []BitName[T]) BitIter[T] {
	return BitIter[T]{v: v, table: table}
}

// Next returns the next SET bit: (name, ok). ok=false when done.
func (it *BitIter[T]) Next() (string, bool) {
	for it.i < len(it.table) {
		e := it.table[it.i]
		it.i++
		if it.v&e.Bit != 0 {
			return e.Name, true
		}
	}
	return "", false
}

// Reset allows reusing the iterator.
func (it *BitIter[T]) Reset() { it.i = 0 }

// Join renders the set bits of v as "a|b|c", or none when v has no named bit.
func Join[T Bits](v T, table []BitName[T], none string) string {
	it := NewBitIter(v, table)
	var sb strings.Builder
	for name, ok := it.Next(); ok; name, ok = it.Next() {
		if sb.Len() > 0 {
			sb.WriteByte('|')
		}
		sb.WriteString(name)
	}
	if sb.Len() == 0 {
		return none
	}
	return sb.String()
}
