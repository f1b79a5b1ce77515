package i2cm

import (
	"context"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/i2c"
	"tinygo.org/x/drivers"

	"wattmeter-go/errcode"
)

var (
	_ drivers.I2C   = (*Engine)(nil)
	_ i2c.BusCloser = (*Engine)(nil)
)

// Tx performs a combined transaction on the buffered path: w is written
// (halting without stop when r follows), then r is read after a repeated
// start. It is bounded by Config.XferTimeout.
func (e *Engine) Tx(addr uint16, w, r []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.XferTimeout)
	defer cancel()
	return e.TxContext(ctx, addr, w, r)
}

// TxContext is Tx bounded by ctx instead of the configured timeout.
func (e *Engine) TxContext(ctx context.Context, addr uint16, w, r []byte) error {
	const op = "i2cm.Tx"
	if addr > 0x7F {
		return errcode.Wrap(errcode.InvalidParams, op, errAddr)
	}
	e.txMu.Lock()
	defer e.txMu.Unlock()

	a := uint8(addr)
	e.MasterClearStatus()

	restart := XferComplete
	if len(w) > 0 || len(r) == 0 {
		mode := XferComplete
		if len(r) > 0 {
			mode = XferNoStop
		}
		if err := e.WriteBuf(a, w, mode); err != nil {
			return err
		}
		if err := e.finish(ctx, op, WrComplete); err != nil {
			return err
		}
		if len(r) == 0 {
			return nil
		}
		restart = XferRepeatStart
	}

	if err := e.ReadBuf(a, r, restart); err != nil {
		return err
	}
	return e.finish(ctx, op, RdComplete)
}

// finish waits for the complete bit and turns error bits into a code. A
// transfer left halted by an error is closed with a stop.
func (e *Engine) finish(ctx context.Context, op string, bit Status) error {
	s, err := e.Wait(ctx, bit)
	if err != nil {
		e.abort()
		return errcode.Wrap(errcode.Timeout, op, err)
	}
	xerr := statusErr(op, s)
	if xerr != nil {
		glog.V(1).Infof("i2cm: %s: status %s", op, s)
		if e.State() == Halt {
			stopCtx, cancel := context.WithTimeout(context.Background(), e.cfg.ByteTimeout)
			if err := e.SendStop(stopCtx); err != nil {
				glog.Warningf("i2cm: %s: stop after error: %v", op, err)
			}
			cancel()
		}
	}
	return xerr
}

func statusErr(op string, s Status) error {
	switch {
	case s&ErrArbLost != 0:
		return errcode.Wrap(errcode.ArbLost, op, nil)
	case s&ErrAddrNAK != 0:
		return errcode.Wrap(errcode.AddrNAK, op, nil)
	case s&ErrShortXfer != 0:
		return errcode.Wrap(errcode.ShortXfer, op, nil)
	case s&ErrXfer != 0:
		return errcode.Wrap(errcode.StartGenAbort, op, nil)
	}
	return nil
}

// abort abandons a buffered transfer that never completed.
func (e *Engine) abort() {
	e.disableInt()
	if e.masterMode() {
		e.hw.Command(CmdStop)
	}
	e.hw.EnableStopInt(false)
	e.hw.ClearPendingInt()
	e.set(Idle)
	e.enableInt()
	glog.Warningf("i2cm: transfer aborted")
}

func (e *Engine) String() string { return "i2cm" }

// Close stops the block.
func (e *Engine) Close() error {
	e.Stop()
	return nil
}
