package mathx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, int32(-320), Clamp(int32(-400), -320, 320))
	assert.Equal(t, int32(320), Clamp(int32(400), 320, -320))
	assert.Equal(t, 5, Clamp(5, 0, 10))
}

func TestAbsCeilDiv(t *testing.T) {
	assert.Equal(t, int64(8190), Abs(int64(-8190)))
	assert.Equal(t, uint32(61036), CeilDiv(uint32(2_000_000_000), 32768))
	assert.Equal(t, uint32(2), CeilDiv(uint32(4), 2))
	assert.Equal(t, uint16(0), CeilDiv(uint16(7), 0))
}
