package conv

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHex(t *testing.T) {
	var b [8]byte
	assert.Equal(t, "1A36", string(U16Hex(b[:], 0x1A36)))
	assert.Equal(t, "000F", string(U16Hex(b[:], 0xF)))
	assert.Equal(t, "", string(U16Hex(b[:3], 1)))
	assert.Equal(t, "0A", string(U8Hex(b[:], 0x0A)))
}

func TestItoa(t *testing.T) {
	var b [20]byte
	assert.Equal(t, "0", string(Itoa(b[:], 0)))
	assert.Equal(t, "-42", string(Itoa(b[:], -42)))
	assert.Equal(t, "-9223372036854775808", string(Itoa(b[:], math.MinInt64)))
}

func TestFixed(t *testing.T) {
	var b [24]byte
	assert.Equal(t, "12.000", string(Fixed(b[:], 12000, 3)))
	assert.Equal(t, "-0.050", string(Fixed(b[:], -50, 3)))
	assert.Equal(t, "0.5", string(Fixed(b[:], 5, 1)))
	assert.Equal(t, "7", string(Fixed(b[:], 7, 0)))
}
