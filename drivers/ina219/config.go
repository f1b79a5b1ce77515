package ina219

import (
	"errors"

	"wattmeter-go/x/mathx"
)

var (
	ErrShuntUnset  = errors.New("ina219: Shunt_uOhm must be set")
	ErrMaxCurrent  = errors.New("ina219: MaxCurrent_uA must be set")
	ErrCalibration = errors.New("ina219: calibration out of range")
	ErrAddress     = errors.New("ina219: address must be 0x40..0x4F")
)

// Config holds the driver configuration. Integer-only.
type Config struct {
	Address       uint16
	Shunt_uOhm    uint32 // shunt resistor
	MaxCurrent_uA uint32 // largest expected current; sets the current LSB

	BusRange BusRange
	Gain     Gain
	BusADC   ADC
	ShuntADC ADC
	Mode     Mode

	// Raw, when non-zero, is written to the config register instead of the
	// fields above.
	Raw uint16
}

// DefaultConfig is 0.1 Ω, 2 A, 32 V, ±320 mV, 12-bit continuous.
func DefaultConfig() Config {
	return Config{
		Address:       AddressDefault,
		Shunt_uOhm:    100_000,
		MaxCurrent_uA: 2_000_000,
		BusRange:      Range32V,
		Gain:          Gain320mV,
		BusADC:        ADC12Bit,
		ShuntADC:      ADC12Bit,
		Mode:          ModeShuntBusContinuous,
	}
}

func (c Config) Validate() error {
	if c.Address < 0x40 || c.Address > 0x4F {
		return ErrAddress
	}
	if c.Shunt_uOhm == 0 {
		return ErrShuntUnset
	}
	if c.MaxCurrent_uA == 0 {
		return ErrMaxCurrent
	}
	_, err := c.Calibration()
	return err
}

// Word is the config register value.
func (c Config) Word() uint16 {
	if c.Raw != 0 {
		return c.Raw
	}
	return uint16(c.BusRange&1)<<13 |
		uint16(c.Gain&3)<<11 |
		uint16(c.BusADC&0xF)<<7 |
		uint16(c.ShuntADC&0xF)<<3 |
		uint16(c.Mode&7)
}

// CurrentLSB_nA is the current register resolution: the max expected current
// spread over 15 bits, rounded up.
func (c Config) CurrentLSB_nA() uint32 {
	return uint32(mathx.CeilDiv(uint64(c.MaxCurrent_uA)*1000, 32768))
}

// PowerLSB_nW is the power register resolution.
func (c Config) PowerLSB_nW() uint64 { return powerLSBMul * uint64(c.CurrentLSB_nA()) }

// Calibration computes trunc(0.04096 / (I_LSB × R_shunt)).
func (c Config) Calibration() (uint16, error) {
	den := uint64(c.CurrentLSB_nA()) * uint64(c.Shunt_uOhm)
	if den == 0 {
		return 0, ErrCalibration
	}
	cal := uint64(calNum) / den
	if cal == 0 || cal > 0xFFFF {
		return 0, ErrCalibration
	}
	return uint16(cal) &^ 1, nil
}

// Setup returns the three register writes that bring a device to c: reset,
// configuration and calibration. Each is pointer, MSB, LSB.
func (c Config) Setup() ([3][3]byte, error) {
	cal, err := c.Calibration()
	if err != nil {
		return [3][3]byte{}, err
	}
	return [3][3]byte{
		regWrite(RegConfig, ConfigReset),
		regWrite(RegConfig, c.Word()),
		regWrite(RegCalibration, cal),
	}, nil
}

func regWrite(reg byte, v uint16) [3]byte {
	return [3]byte{reg, byte(v >> 8), byte(v)}
}
