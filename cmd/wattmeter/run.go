package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"wattmeter-go/bus"
	"wattmeter-go/drivers/lcd"
	"wattmeter-go/services/bridge"
	"wattmeter-go/services/config"
	"wattmeter-go/services/heartbeat"
	"wattmeter-go/services/monitor"
	"wattmeter-go/services/uart"
)

var (
	runFor time.Duration

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Poll the sensor and publish samples",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if runFor > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, runFor)
				defer cancel()
			}
			return run(ctx, cfg)
		},
	}
)

func init() {
	runCmd.Flags().DurationVar(&runFor, "for", 0, "stop after this long (0 runs until interrupted)")
}

func run(ctx context.Context, cfg *config.Config) error {
	be, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer be.close()

	b := bus.NewBus(32)
	ctx = context.WithValue(ctx, config.CtxDeviceKey, cfg.DeviceID())
	if err := config.NewConfigService(cfg).Start(ctx, b.NewConnection("config")); err != nil {
		return err
	}

	rd, err := newReader(cfg, be)
	if err != nil {
		return err
	}

	var panel *monitor.Panel
	if cfg.LCD.Enabled {
		d, err := lcd.NewHD44780(be.bus, cfg.LCD.Address, cfg.LCD.Cols, cfg.LCD.Rows)
		if err != nil {
			glog.Warningf("lcd: %v; continuing without display", err)
		} else {
			panel = monitor.NewPanel(d, monitor.ParseFormat(cfg.Monitor.Display))
		}
	}

	mon := monitor.New(b.NewConnection("monitor"), rd, monitor.Options{
		Name:        cfg.INA219.Name,
		Interval:    cfg.Monitor.Interval,
		Reconfigure: monitor.ParsePolicy(cfg.Monitor.Reconfigure),
		StatsWindow: cfg.Monitor.StatsWindow,
		Sensor:      cfg.INA219.Sensor(),
	}, panel)
	mon.Start(ctx)

	if cfg.UART.Enabled {
		w, err := uart.Open(cfg.UART.Port, cfg.UART.Baud)
		if err != nil {
			glog.Warningf("uart: %v; serial output disabled", err)
		} else {
			defer w.Close()
			uart.New(b.NewConnection("uart"), w, uart.ParseFormat(cfg.UART.Format)).Start(ctx)
		}
	}

	bridge.New(b.NewConnection("bridge"), nil).Start(ctx)

	var eng heartbeat.Engine
	if be.eng != nil {
		eng = be.eng
	}
	heartbeat.New(b.NewConnection("heartbeat"), eng, cfg.Heartbeat.Interval).Start(ctx)

	glog.Infof("wattmeter: %s running on %s backend", cfg.DeviceID(), cfg.Backend)
	<-ctx.Done()
	// Let the services publish their final state.
	time.Sleep(50 * time.Millisecond)
	glog.Infof("wattmeter: stopped after %d samples", mon.Samples())
	if be.lcd != nil {
		glog.Infof("wattmeter: display\n%s", be.lcd.Text())
	}
	return nil
}

// newReader picks the manual reader when an engine is present; the Linux
// backend only offers whole transactions.
func newReader(cfg *config.Config, be *backend) (monitor.Reader, error) {
	sensor := cfg.INA219.Sensor()
	if cfg.Monitor.Reader == "manual" {
		if be.eng != nil {
			return monitor.NewManualReader(be.eng, sensor, monitor.Acquire{
				Retries: cfg.Monitor.AcquireRetries,
				Backoff: cfg.Monitor.AcquireBackoff,
			})
		}
		glog.Warningf("monitor: manual reader needs the engine; using buffered on %s", cfg.Backend)
	}
	return monitor.NewBufferedReader(be.bus, sensor)
}
