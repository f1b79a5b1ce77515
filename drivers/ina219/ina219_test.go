package ina219

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"
)

func TestDefaultCalibration(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())
	assert.Equal(t, uint32(61036), c.CurrentLSB_nA())
	assert.Equal(t, uint64(1_220_720), c.PowerLSB_nW())

	cal, err := c.Calibration()
	require.NoError(t, err)
	assert.Equal(t, uint16(6710), cal)
	assert.Equal(t, ConfigDefault, c.Word())
}

func TestSmallCurrentDoesNotTruncateToZero(t *testing.T) {
	c := DefaultConfig()
	c.MaxCurrent_uA = 1000 // 1 mA over 15 bits is below one microamp
	assert.Equal(t, uint32(31), c.CurrentLSB_nA())
	_, err := c.Calibration()
	assert.ErrorIs(t, err, ErrCalibration) // 0.04096 / (31 nA × 0.1 Ω) overflows 16 bits
}

func TestValidate(t *testing.T) {
	c := DefaultConfig()
	c.Shunt_uOhm = 0
	assert.ErrorIs(t, c.Validate(), ErrShuntUnset)

	c = DefaultConfig()
	c.MaxCurrent_uA = 0
	assert.ErrorIs(t, c.Validate(), ErrMaxCurrent)

	c = DefaultConfig()
	c.Address = 0x10
	assert.ErrorIs(t, c.Validate(), ErrAddress)
}

func TestConfigWordFromFields(t *testing.T) {
	c := Config{
		BusRange: Range16V,
		Gain:     Gain40mV,
		BusADC:   ADC12Bit128,
		ShuntADC: ADC9Bit,
		Mode:     ModeShuntTriggered,
	}
	assert.Equal(t, uint16(0x0781), c.Word())

	c.Raw = 0x1234
	assert.Equal(t, uint16(0x1234), c.Word())
}

func TestSetupTriples(t *testing.T) {
	setup, err := DefaultConfig().Setup()
	require.NoError(t, err)
	assert.Equal(t, [3][3]byte{
		{RegConfig, 0x80, 0x00},
		{RegConfig, 0x39, 0x9F},
		{RegCalibration, 0x1A, 0x36},
	}, setup)
}

func TestDecode(t *testing.T) {
	s := Decode(Raw{Shunt: 5000, Bus: 3000<<3 | busCNVR, Current: 8190, Power: 4914}, 61036)
	assert.Equal(t, int32(50_000), s.Shunt_uV)
	assert.Equal(t, int32(12_000), s.Bus_mV)
	assert.Equal(t, int64(499_884), s.Current_uA)
	assert.Equal(t, int64(5_998_618), s.Power_uW)
	assert.True(t, s.Ready)
	assert.False(t, s.Overflow)

	assert.Equal(t, 12*physic.Volt, s.Bus())
	assert.Equal(t, 50*physic.MilliVolt, s.Shunt())
	assert.Equal(t, 499_884*physic.MicroAmpere, s.Current())

	neg := Decode(Raw{Shunt: 0xFFF6, Current: 0xFFFE}, 1000)
	assert.Equal(t, int32(-100), neg.Shunt_uV)
	assert.Equal(t, int64(-2), neg.Current_uA)
}

func TestGainFullScale(t *testing.T) {
	assert.Equal(t, int32(40_000), Gain40mV.FullScale_uV())
	assert.Equal(t, int32(320_000), Gain320mV.FullScale_uV())
	assert.False(t, ModeADCOff.Converting())
	assert.True(t, ModeBusTriggered.Converting())
}

func TestSimulatedFormulas(t *testing.T) {
	s := NewSimulated()
	assert.Equal(t, ConfigDefault, s.Register(RegConfig))

	// Without calibration current and power stay zero.
	s.SetInputs(50_000, 12_000)
	assert.Equal(t, uint16(5000), s.Register(RegShunt))
	assert.Equal(t, uint16(0), s.Register(RegCurrent))

	s.store(RegCalibration, 6711)
	assert.Equal(t, uint16(6710), s.Register(RegCalibration))
	assert.Equal(t, uint16(8190), s.Register(RegCurrent))
	assert.Equal(t, uint16(4914), s.Register(RegPower))
	assert.Equal(t, uint16(3000<<3|busCNVR), s.Register(RegBus))

	s.SetInputs(400_000, 12_000)
	assert.NotZero(t, s.Register(RegBus)&busOVF)

	s.store(RegConfig, ConfigReset)
	assert.Equal(t, ConfigDefault, s.Register(RegConfig))
	assert.Zero(t, s.Register(RegCalibration))
}

func TestSimulatedReadClearsReadyOnPower(t *testing.T) {
	s := NewSimulated()
	s.SetInputs(1000, 5000)
	require.True(t, s.Start(false))
	require.True(t, s.Write(RegPower))
	s.Start(true)
	s.Read()
	s.Read()
	s.Stop()
	assert.Zero(t, s.Register(RegBus)&busCNVR)

	s.Start(false)
	assert.False(t, s.Write(0x09))
}
