//go:build rp2040 || rp2350

// Firmware for a Pico with an INA219 and a PCF8574 LCD backpack on I2C0
// (GP4 SDA, GP5 SCL), streaming samples on uart0.
package main

import (
	"context"
	"machine"
	"runtime"
	"time"

	"tinygo.org/x/drivers"

	"wattmeter-go/bus"
	"wattmeter-go/drivers/i2cm"
	"wattmeter-go/drivers/i2cm/i2csim"
	"wattmeter-go/drivers/ina219"
	"wattmeter-go/drivers/lcd"
	"wattmeter-go/services/config"
	"wattmeter-go/services/heartbeat"
	"wattmeter-go/services/monitor"
	"wattmeter-go/services/uart"
	"wattmeter-go/types"
)

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	println("[main] boot")

	ctx := context.WithValue(context.Background(), config.CtxDeviceKey, "pico")
	cfg, err := config.Resolve("pico")
	if err != nil {
		println("[main] config:", err.Error())
		cfg = config.Default()
	}

	b := bus.NewBus(4)
	if err := config.NewConfigService(cfg).Start(ctx, b.NewConnection("config")); err != nil {
		println("[main] config publish:", err.Error())
	}

	i2c, eng := openI2C(cfg)
	rd, err := newReader(cfg, i2c, eng)
	if err != nil {
		println("[main] reader:", err.Error())
		halt()
	}

	var panel *monitor.Panel
	if cfg.LCD.Enabled {
		if d, err := lcd.NewHD44780(i2c, cfg.LCD.Address, cfg.LCD.Cols, cfg.LCD.Rows); err != nil {
			println("[main] lcd:", err.Error())
		} else {
			panel = monitor.NewPanel(d, monitor.ParseFormat(cfg.Monitor.Display))
		}
	}

	monitor.New(b.NewConnection("monitor"), rd, monitor.Options{
		Name:        cfg.INA219.Name,
		Interval:    cfg.Monitor.Interval,
		Reconfigure: monitor.ParsePolicy(cfg.Monitor.Reconfigure),
		StatsWindow: cfg.Monitor.StatsWindow,
		Sensor:      cfg.INA219.Sensor(),
	}, panel).Start(ctx)

	if cfg.UART.Enabled {
		if w, err := uart.Open(cfg.UART.Port, cfg.UART.Baud); err != nil {
			println("[main] uart:", err.Error())
		} else {
			uart.New(b.NewConnection("uart"), w, uart.ParseFormat(cfg.UART.Format)).Start(ctx)
		}
	}

	var hbEng heartbeat.Engine
	if eng != nil {
		hbEng = eng
	}
	heartbeat.New(b.NewConnection("heartbeat"), hbEng, cfg.Heartbeat.Interval).Start(ctx)

	ui := b.NewConnection("ui")
	hb := ui.Subscribe(bus.T("system", "heartbeat"))
	errs := ui.Subscribe(bus.T("power", "ina219", "+", "error"))
	for {
		select {
		case m := <-hb.Channel():
			if h, ok := m.Payload.(types.Heartbeat); ok {
				println("[hb]", h.Seq, "up", h.Uptime_s, "s i2c", h.I2CState)
			}
			printMem()
		case m := <-errs.Channel():
			if e, ok := m.Payload.(types.PowerError); ok {
				println("[ina219]", e.Code, e.Err)
			}
		}
	}
}

// openI2C returns the bus the sensor and display sit on. The sim backend runs
// the engine against an in-memory block, which exercises the manual reader
// without wiring.
func openI2C(cfg *config.Config) (drivers.I2C, *i2cm.Engine) {
	if cfg.Backend == "sim" {
		blk := i2csim.New()
		eng, err := i2cm.New(blk, cfg.I2C.Engine())
		if err != nil {
			println("[main] engine:", err.Error())
			halt()
		}
		eng.Start()
		sim := ina219.NewSimulated()
		sim.SetInputs(cfg.Sim.Shunt_uV, cfg.Sim.Bus_mV)
		blk.Attach(uint8(cfg.INA219.Address), sim)
		blk.Attach(cfg.LCD.Address, i2csim.NewLCD(int(cfg.LCD.Cols), int(cfg.LCD.Rows)))
		return eng, eng
	}
	err := machine.I2C0.Configure(machine.I2CConfig{
		Frequency: cfg.I2C.DataRateHz,
		SDA:       machine.GP4,
		SCL:       machine.GP5,
	})
	if err != nil {
		println("[main] i2c0:", err.Error())
		halt()
	}
	return machine.I2C0, nil
}

func newReader(cfg *config.Config, i2c drivers.I2C, eng *i2cm.Engine) (monitor.Reader, error) {
	if eng != nil && cfg.Monitor.Reader == "manual" {
		return monitor.NewManualReader(eng, cfg.INA219.Sensor(), monitor.Acquire{
			Retries: cfg.Monitor.AcquireRetries,
			Backoff: cfg.Monitor.AcquireBackoff,
		})
	}
	return monitor.NewBufferedReader(i2c, cfg.INA219.Sensor())
}

func halt() {
	for {
		time.Sleep(time.Hour)
	}
}

// printMem prints a compact snapshot of TinyGo runtime memory stats.
func printMem() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	println(
		"[mem]",
		"alloc:", uint32(ms.Alloc),
		"heapInuse:", uint32(ms.HeapInuse),
		"mallocs:", uint32(ms.Mallocs),
		"frees:", uint32(ms.Frees),
	)
}
