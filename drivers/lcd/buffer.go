package lcd

import (
	"strings"
	"sync"

	"wattmeter-go/x/conv"
)

// Buffer is an in-memory Display. Text past the last column is dropped.
type Buffer struct {
	mu       sync.Mutex
	rows     [][]byte
	row, col int
}

func NewBuffer(cols, rows int) *Buffer {
	b := &Buffer{rows: make([][]byte, rows)}
	for i := range b.rows {
		b.rows[i] = make([]byte, cols)
	}
	b.Clear()
	return b
}

func (b *Buffer) Position(row, col uint8) {
	b.mu.Lock()
	b.row, b.col = int(row), int(col)
	b.mu.Unlock()
}

func (b *Buffer) PrintString(s string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.put([]byte(s))
}

func (b *Buffer) PrintHexUint16(v uint16) {
	var h [4]byte
	b.mu.Lock()
	defer b.mu.Unlock()
	b.put(conv.U16Hex(h[:], v))
}

func (b *Buffer) put(p []byte) {
	if b.row >= len(b.rows) {
		return
	}
	line := b.rows[b.row]
	for _, c := range p {
		if b.col < len(line) {
			line[b.col] = c
		}
		b.col++
	}
}

func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range b.rows {
		for i := range r {
			r[i] = ' '
		}
	}
	b.row, b.col = 0, 0
}

// Line returns row r, or "" when out of range.
func (b *Buffer) Line(r int) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if r < 0 || r >= len(b.rows) {
		return ""
	}
	return string(b.rows[r])
}

func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var sb strings.Builder
	for i, r := range b.rows {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.Write(r)
	}
	return sb.String()
}
