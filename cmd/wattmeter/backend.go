package main

import (
	"fmt"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
	"tinygo.org/x/drivers"

	"wattmeter-go/drivers/i2cm"
	"wattmeter-go/drivers/i2cm/i2csim"
	"wattmeter-go/drivers/ina219"
	"wattmeter-go/errcode"
	"wattmeter-go/services/config"
)

// backend is the I2C side of the process.
type backend struct {
	bus drivers.I2C
	// eng is nil on Linux, where the kernel driver owns the controller.
	eng   *i2cm.Engine
	probe func(addr uint16) error
	close func()

	sim *ina219.Simulated
	lcd *i2csim.LCD
}

func openBackend(cfg *config.Config) (*backend, error) {
	switch cfg.Backend {
	case "linux":
		return openLinux(cfg)
	case "sim":
		return openSim(cfg)
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// openSim runs the engine against the simulated block with an INA219 and,
// when enabled, an LCD backpack attached.
func openSim(cfg *config.Config) (*backend, error) {
	blk := i2csim.New()
	eng, err := i2cm.New(blk, cfg.I2C.Engine())
	if err != nil {
		blk.Close()
		return nil, err
	}
	eng.Start()

	b := &backend{bus: eng, eng: eng, sim: ina219.NewSimulated()}
	b.sim.SetInputs(cfg.Sim.Shunt_uV, cfg.Sim.Bus_mV)
	blk.Attach(uint8(cfg.INA219.Address), b.sim)
	if cfg.LCD.Enabled {
		b.lcd = i2csim.NewLCD(int(cfg.LCD.Cols), int(cfg.LCD.Rows))
		blk.Attach(cfg.LCD.Address, b.lcd)
	}
	// An empty write is an address-only probe on the engine.
	b.probe = func(addr uint16) error { return eng.Tx(addr, nil, nil) }
	b.close = func() {
		_ = eng.Close()
		blk.Close()
	}
	glog.Infof("backend: simulated bus, ina219 at 0x%02x", cfg.INA219.Address)
	return b, nil
}

func openLinux(cfg *config.Config) (*backend, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	bc, err := i2creg.Open(cfg.I2C.Bus)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", cfg.I2C.Bus, err)
	}
	if err := bc.SetSpeed(physic.Frequency(cfg.I2C.DataRateHz) * physic.Hertz); err != nil {
		glog.Warningf("backend: set speed: %v", err)
	}
	var one [1]byte
	glog.Infof("backend: %s", bc)
	return &backend{
		bus:   bc,
		// The kernel reports a missing device as an I/O error.
		probe: func(addr uint16) error {
			if err := bc.Tx(addr, nil, one[:]); err != nil {
				return errcode.Wrap(errcode.AddrNAK, "linux.probe", err)
			}
			return nil
		},
		close: func() { _ = bc.Close() },
	}, nil
}
