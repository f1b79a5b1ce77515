package ina219_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wattmeter-go/drivers/i2cm"
	"wattmeter-go/drivers/i2cm/i2csim"
	"wattmeter-go/drivers/ina219"
	"wattmeter-go/errcode"
)

func newBus(t *testing.T) (*i2cm.Engine, *i2csim.Block) {
	t.Helper()
	blk := i2csim.New()
	t.Cleanup(blk.Close)
	cfg := i2cm.DefaultConfig()
	cfg.ByteTimeout = 50 * time.Millisecond
	cfg.XferTimeout = 200 * time.Millisecond
	eng, err := i2cm.New(blk, cfg)
	require.NoError(t, err)
	eng.Start()
	return eng, blk
}

func TestDevice_ConfigureAndRead(t *testing.T) {
	eng, blk := newBus(t)
	sim := ina219.NewSimulated()
	blk.Attach(ina219.AddressDefault, sim)
	sim.SetInputs(50_000, 12_000)

	dev := ina219.New(eng, ina219.DefaultConfig())
	require.NoError(t, dev.Configure(ina219.DefaultConfig()))
	assert.Equal(t, uint16(6710), sim.Register(ina219.RegCalibration))

	s, err := dev.Read()
	require.NoError(t, err)
	assert.Equal(t, int32(50_000), s.Shunt_uV)
	assert.Equal(t, int32(12_000), s.Bus_mV)
	assert.Equal(t, int64(499_884), s.Current_uA)
	assert.Equal(t, int64(5_998_618), s.Power_uW)
	assert.True(t, s.Ready)

	// Reading power cleared the ready flag.
	bus, err := dev.ReadRegister(ina219.RegBus)
	require.NoError(t, err)
	assert.Zero(t, bus&0x2)
}

func TestDevice_WriteRegisterBigEndian(t *testing.T) {
	eng, blk := newBus(t)
	sim := ina219.NewSimulated()
	blk.Attach(ina219.AddressDefault, sim)

	dev := ina219.New(eng, ina219.DefaultConfig())
	require.NoError(t, dev.WriteRegister(ina219.RegCalibration, 0x1235))
	v, err := dev.ReadRegister(ina219.RegCalibration)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x1234), v)

	require.NoError(t, dev.Reset())
	v, err = dev.ReadRegister(ina219.RegConfig)
	require.NoError(t, err)
	assert.Equal(t, ina219.ConfigDefault, v)
}

func TestDevice_MissingDeviceIsAddressNAK(t *testing.T) {
	eng, _ := newBus(t)
	dev := ina219.New(eng, ina219.DefaultConfig())

	_, err := dev.Read()
	assert.ErrorIs(t, err, errcode.AddrNAK)

	err = dev.Configure(ina219.DefaultConfig())
	assert.ErrorIs(t, err, errcode.NAK)
}

func TestDevice_ConfigureRejectsBadConfig(t *testing.T) {
	eng, _ := newBus(t)
	dev := ina219.New(eng, ina219.DefaultConfig())
	cfg := ina219.DefaultConfig()
	cfg.Shunt_uOhm = 0
	assert.ErrorIs(t, dev.Configure(cfg), ina219.ErrShuntUnset)
}
