package conv

// Itoa writes base-10 representation of n into buf and returns the used slice.
// buf should be length >= 20 for int64. Negative numbers supported.
// No allocations; no fmt/strconv dependency.
func Itoa(buf []byte, n int64) []byte {
	if len(buf) == 0 {
		return buf[:0]
	}
	i := len(buf)
	neg := n < 0
	u := uint64(n)
	if neg {
		u = -u
	}
	if u == 0 {
		i--
		buf[i] = '0'
	}
	for u > 0 && i > 0 {
		i--
		buf[i] = byte('0' + (u % 10))
		u /= 10
	}
	if neg && i > 0 {
		i--
		buf[i] = '-'
	}
	return buf[i:]
}

// Fixed writes n scaled down by 10^places with a decimal point, e.g.
// Fixed(buf, -12345, 3) is "-12.345". buf should be length >= 22.
func Fixed(buf []byte, n int64, places int) []byte {
	if places <= 0 {
		return Itoa(buf, n)
	}
	if len(buf) < places+3 {
		return buf[:0]
	}
	i := len(buf)
	neg := n < 0
	u := uint64(n)
	if neg {
		u = -u
	}
	for p := 0; p < places; p++ {
		i--
		buf[i] = byte('0' + (u % 10))
		u /= 10
	}
	i--
	buf[i] = '.'
	if u == 0 {
		i--
		buf[i] = '0'
	}
	for u > 0 && i > 0 {
		i--
		buf[i] = byte('0' + (u % 10))
		u /= 10
	}
	if neg && i > 0 {
		i--
		buf[i] = '-'
	}
	return buf[i:]
}
