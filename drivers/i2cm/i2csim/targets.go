package i2csim

import (
	"strings"
	"sync"
)

// Memory is a register-pointer device: the first byte written after a start
// sets the pointer, later bytes are stored at it, reads return from it. The
// pointer auto-increments and wraps.
type Memory struct {
	mu    sync.Mutex
	mem   []byte
	ptr   int
	first bool
}

func NewMemory(size int) *Memory {
	return &Memory{mem: make([]byte, size)}
}

func (m *Memory) Start(read bool) bool {
	m.mu.Lock()
	m.first = !read
	m.mu.Unlock()
	return true
}

func (m *Memory) Write(b byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.first {
		m.first = false
		m.ptr = int(b) % len(m.mem)
		return true
	}
	m.mem[m.ptr] = b
	m.ptr = (m.ptr + 1) % len(m.mem)
	return true
}

func (m *Memory) Read() byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.mem[m.ptr]
	m.ptr = (m.ptr + 1) % len(m.mem)
	return b
}

func (m *Memory) Stop() {}

// Bytes returns a copy of the memory.
func (m *Memory) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.mem...)
}

// Load copies p into memory at off.
func (m *Memory) Load(off int, p []byte) {
	m.mu.Lock()
	copy(m.mem[off:], p)
	m.mu.Unlock()
}

// PCF8574 expander lines as wired on the common HD44780 backpack.
const (
	lcdRS = 0x01
	lcdEN = 0x04
)

var lcdRowOffset = [...]byte{0x00, 0x40, 0x14, 0x54}

// LCD is an HD44780 character display behind a PCF8574 I/O expander. It
// decodes the 4-bit protocol from the expander writes and keeps the text.
type LCD struct {
	mu      sync.Mutex
	cols    int
	rows    int
	ddram   [0x80]byte
	addr    byte
	last    byte
	fourBit bool
	high    byte
	half    bool
}

func NewLCD(cols, rows int) *LCD {
	l := &LCD{cols: cols, rows: rows}
	l.clear()
	return l
}

func (l *LCD) Start(read bool) bool { return !read }
func (l *LCD) Read() byte          { return 0xFF }
func (l *LCD) Stop()               {}

func (l *LCD) Write(v byte) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	// Data is latched on the falling edge of EN.
	if l.last&lcdEN != 0 && v&lcdEN == 0 {
		l.nibble(l.last>>4, l.last&lcdRS != 0)
	}
	l.last = v
	return true
}

func (l *LCD) nibble(n byte, rs bool) {
	if !l.fourBit {
		// Initialisation runs in 8-bit mode; function set 0x2 switches to 4-bit.
		if n == 0x2 {
			l.fourBit = true
		}
		return
	}
	if !l.half {
		l.high, l.half = n, true
		return
	}
	l.half = false
	b := l.high<<4 | n
	if rs {
		l.ddram[l.addr&0x7F] = b
		l.addr++
		return
	}
	switch {
	case b&0x80 != 0:
		l.addr = b & 0x7F
	case b == 0x01:
		l.clear()
	case b == 0x02:
		l.addr = 0
	}
}

func (l *LCD) clear() {
	for i := range l.ddram {
		l.ddram[i] = ' '
	}
	l.addr = 0
}

// Line returns the text of row r.
func (l *LCD) Line(r int) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if r < 0 || r >= l.rows || r >= len(lcdRowOffset) {
		return ""
	}
	off := int(lcdRowOffset[r])
	return string(l.ddram[off : off+l.cols])
}

// Text returns all rows joined by newlines.
func (l *LCD) Text() string {
	lines := make([]string, l.rows)
	for r := range lines {
		lines[r] = l.Line(r)
	}
	return strings.Join(lines, "\n")
}
