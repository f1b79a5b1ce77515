package monitor

import (
	"context"
	"time"

	"github.com/golang/glog"
	"tinygo.org/x/drivers"

	"wattmeter-go/drivers/i2cm"
	"wattmeter-go/drivers/ina219"
	"wattmeter-go/errcode"
	"wattmeter-go/x/timex"
)

// Reader runs one bus cycle against the sensor. With configure set the
// reset, configuration and calibration writes go first.
type Reader interface {
	Cycle(ctx context.Context, configure bool) (ina219.Raw, error)
	Name() string
}

// measureRegs are read in this order; power last so CNVR is seen first.
var measureRegs = [...]byte{ina219.RegShunt, ina219.RegBus, ina219.RegCurrent, ina219.RegPower}

// Acquire bounds the start-condition retry.
type Acquire struct {
	Retries    int
	Backoff    time.Duration
	MaxBackoff time.Duration
}

func (a Acquire) withDefaults() Acquire {
	if a.Retries <= 0 {
		a.Retries = 8
	}
	if a.Backoff <= 0 {
		a.Backoff = time.Millisecond
	}
	if a.MaxBackoff < a.Backoff {
		a.MaxBackoff = 64 * a.Backoff
	}
	return a
}

// ManualReader drives the engine byte by byte: one start, then a repeated
// start per register access, one stop at the end.
type ManualReader struct {
	eng   *i2cm.Engine
	addr  uint8
	setup [3][3]byte
	acq   Acquire
}

func NewManualReader(eng *i2cm.Engine, cfg ina219.Config, acq Acquire) (*ManualReader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	setup, err := cfg.Setup()
	if err != nil {
		return nil, err
	}
	return &ManualReader{eng: eng, addr: uint8(cfg.Address), setup: setup, acq: acq.withDefaults()}, nil
}

func (r *ManualReader) Name() string { return "manual" }

func (r *ManualReader) Cycle(ctx context.Context, configure bool) (raw ina219.Raw, err error) {
	if err = r.acquire(ctx); err != nil {
		return raw, err
	}
	defer func() {
		if err != nil {
			r.release()
		}
	}()

	// The start above already addressed the device for writing.
	addressed := true
	if configure {
		for i := range r.setup {
			if !addressed {
				if err = r.eng.SendRestart(ctx, r.addr, i2cm.Write); err != nil {
					return raw, err
				}
			}
			addressed = false
			for _, b := range r.setup[i] {
				if err = r.eng.WriteByte(ctx, b); err != nil {
					return raw, err
				}
			}
		}
	}

	var words [len(measureRegs)]uint16
	for i, reg := range measureRegs {
		if !addressed {
			if err = r.eng.SendRestart(ctx, r.addr, i2cm.Write); err != nil {
				return raw, err
			}
		}
		addressed = false
		if err = r.eng.WriteByte(ctx, reg); err != nil {
			return raw, err
		}
		if words[i], err = r.readWord(ctx); err != nil {
			return raw, err
		}
	}
	if err = r.eng.SendStop(ctx); err != nil {
		return raw, err
	}
	return ina219.Raw{Shunt: words[0], Bus: words[1], Current: words[2], Power: words[3]}, nil
}

func (r *ManualReader) readWord(ctx context.Context) (uint16, error) {
	if err := r.eng.SendRestart(ctx, r.addr, i2cm.Read); err != nil {
		return 0, err
	}
	hi, err := r.eng.ReadByte(ctx, true)
	if err != nil {
		return 0, err
	}
	lo, err := r.eng.ReadByte(ctx, false)
	if err != nil {
		return 0, err
	}
	return uint16(hi)<<8 | uint16(lo), nil
}

// acquire issues the start condition, retrying transient failures with
// exponential backoff until Retries, ctx or a hard error ends it.
func (r *ManualReader) acquire(ctx context.Context) error {
	backoff := timex.Backoff(r.acq.Backoff, r.acq.MaxBackoff)
	for attempt := 0; ; attempt++ {
		err := r.eng.SendStart(ctx, r.addr, i2cm.Write)
		if err == nil {
			return nil
		}
		if errcode.Of(err) == errcode.NotReady {
			r.release()
		}
		if !errcode.Retryable(err) || attempt >= r.acq.Retries {
			return err
		}
		delay := backoff()
		glog.V(2).Infof("monitor: start attempt %d: %v (retry in %s)", attempt+1, err, delay)
		if !timex.Sleep(ctx, delay) {
			return errcode.Wrap(errcode.Timeout, "monitor.acquire", ctx.Err())
		}
	}
}

// release frees the bus after a failed cycle, on its own deadline.
func (r *ManualReader) release() {
	switch st := r.eng.State(); {
	case st == i2cm.Idle:
	case st.IsMaster():
		ctx, cancel := context.WithTimeout(context.Background(), r.eng.Config().ByteTimeout)
		defer cancel()
		if err := r.eng.SendStop(ctx); err != nil {
			glog.Warningf("monitor: stop after error: %v", err)
		}
	default:
		glog.V(1).Infof("monitor: engine left in %s", st)
	}
}

// BufferedReader reads through whole-transaction Tx calls: the engine's
// interrupt-driven path, or any other drivers.I2C such as a Linux bus.
type BufferedReader struct {
	dev *ina219.Device
	cfg ina219.Config
}

func NewBufferedReader(bus drivers.I2C, cfg ina219.Config) (*BufferedReader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &BufferedReader{dev: ina219.New(bus, cfg), cfg: cfg}, nil
}

func (r *BufferedReader) Name() string { return "buffered" }

func (r *BufferedReader) Cycle(ctx context.Context, configure bool) (ina219.Raw, error) {
	if err := ctx.Err(); err != nil {
		return ina219.Raw{}, err
	}
	if configure {
		if err := r.dev.Configure(r.cfg); err != nil {
			return ina219.Raw{}, err
		}
	}
	s, err := r.dev.Read()
	return s.Raw, err
}
