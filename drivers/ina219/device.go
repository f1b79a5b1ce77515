package ina219

import (
	"fmt"

	"tinygo.org/x/drivers"
)

// Device is an INA219 on an I²C bus.
type Device struct {
	i2c  drivers.I2C
	addr uint16
	cfg  Config
	lsb  uint32

	// Fixed buffers to avoid per-call heap allocations.
	w [3]byte
	r [2]byte
}

// New constructs a Device. Nothing is written until Configure.
func New(i2c drivers.I2C, cfg Config) *Device {
	if cfg.Address == 0 {
		cfg.Address = AddressDefault
	}
	return &Device{i2c: i2c, addr: cfg.Address, cfg: cfg, lsb: cfg.CurrentLSB_nA()}
}

func (d *Device) Address() uint16 { return d.addr }

// CurrentLSB_nA is the resolution in use by Read.
func (d *Device) CurrentLSB_nA() uint32 { return d.lsb }

// Configure resets the device then writes the configuration and calibration.
func (d *Device) Configure(cfg Config) error {
	if cfg.Address == 0 {
		cfg.Address = d.addr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	setup, err := cfg.Setup()
	if err != nil {
		return err
	}
	d.addr = cfg.Address
	for i := range setup {
		if err := d.i2c.Tx(d.addr, setup[i][:], nil); err != nil {
			return fmt.Errorf("ina219 configure reg %#02x: %w", setup[i][0], err)
		}
	}
	d.cfg = cfg
	d.lsb = cfg.CurrentLSB_nA()
	return nil
}

// Reset sets the reset bit; every register returns to its power-on value.
func (d *Device) Reset() error {
	return d.writeWord(RegConfig, ConfigReset)
}

// Read fetches shunt, bus, current and power, in that order. Power is read
// last because reading it clears the conversion-ready flag.
func (d *Device) Read() (Sample, error) {
	var raw Raw
	var err error
	if raw.Shunt, err = d.readWord(RegShunt); err != nil {
		return Sample{}, err
	}
	if raw.Bus, err = d.readWord(RegBus); err != nil {
		return Sample{}, err
	}
	if raw.Current, err = d.readWord(RegCurrent); err != nil {
		return Sample{}, err
	}
	if raw.Power, err = d.readWord(RegPower); err != nil {
		return Sample{}, err
	}
	return Decode(raw, d.lsb), nil
}

func (d *Device) ReadRegister(reg byte) (uint16, error) { return d.readWord(reg) }

func (d *Device) WriteRegister(reg byte, v uint16) error { return d.writeWord(reg, v) }

// I2C 16-bit word operations (big-endian: HIGH then LOW).

func (d *Device) readWord(reg byte) (uint16, error) {
	d.w[0] = reg
	if err := d.i2c.Tx(d.addr, d.w[:1], d.r[:2]); err != nil {
		return 0, err
	}
	return uint16(d.r[0])<<8 | uint16(d.r[1]), nil
}

func (d *Device) writeWord(reg byte, val uint16) error {
	d.w[0] = reg
	d.w[1] = byte(val >> 8) // high
	d.w[2] = byte(val)      // low
	return d.i2c.Tx(d.addr, d.w[:3], nil)
}
