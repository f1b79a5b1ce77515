package i2cm

import (
	"context"
	"fmt"

	"github.com/golang/glog"

	"wattmeter-go/errcode"
)

// ---- manual mode ----

// SendStart generates a start condition and sends the address byte. The
// engine must be idle and the bus free. The interrupt stays disabled until
// the next buffered transfer or Start.
func (e *Engine) SendStart(ctx context.Context, addr uint8, dir Direction) error {
	const op = "i2cm.SendStart"
	if addr > 0x7F {
		return errcode.Wrap(errcode.InvalidParams, op, errAddr)
	}
	e.mu.Lock()
	if e.state != Idle {
		e.mu.Unlock()
		return errcode.Wrap(errcode.NotReady, op, nil)
	}
	if e.hw.Control()&MCSRBusBusy != 0 {
		e.mu.Unlock()
		return errcode.Wrap(errcode.BusBusy, op, nil)
	}
	e.intOn = false
	e.hw.DisableInt()
	e.setState(addrState(dir))
	e.mu.Unlock()

	e.hw.WriteData(addrByte(addr, dir))
	e.hw.Command(CmdStart)
	return e.addressPhase(ctx, op, true)
}

// SendRestart generates a repeated start and sends the address byte. The
// block must already own the bus.
func (e *Engine) SendRestart(ctx context.Context, addr uint8, dir Direction) error {
	const op = "i2cm.SendRestart"
	if addr > 0x7F {
		return errcode.Wrap(errcode.InvalidParams, op, errAddr)
	}
	if !e.masterMode() {
		return errcode.Wrap(errcode.NotReady, op, nil)
	}
	if err := e.transition(op, addrState(dir)); err != nil {
		return err
	}
	e.hw.WriteData(addrByte(addr, dir))
	e.hw.Command(CmdRestart)
	return e.addressPhase(ctx, op, false)
}

// addressPhase waits for the address byte and classifies the outcome. On an
// address NAK the bus is freed with a stop before returning.
func (e *Engine) addressPhase(ctx context.Context, op string, start bool) error {
	csr, err := e.wait(ctx, op, CSRByteComplete|CSRLostArb)
	if err != nil {
		return err
	}
	if e.cfg.Mode&ModeMultiMaster != 0 {
		if start && e.cfg.Mode&ModeSlave != 0 && e.hw.Control()&MCSRStartGen != 0 {
			e.hw.ClearStartGen()
			e.set(Idle)
			return errcode.Wrap(errcode.StartGenAbort, op, nil)
		}
		if csr&CSRLostArb != 0 {
			e.hw.Command(CmdRelease)
			e.set(Idle)
			return errcode.Wrap(errcode.ArbLost, op, nil)
		}
	}
	if csr&CSRNAK != 0 {
		e.hw.Command(CmdStop)
		e.set(Idle)
		if _, err := e.wait(ctx, op, CSRStopStatus|CSRLostArb); err != nil {
			glog.V(1).Infof("i2cm: %s: stop after address nak: %v", op, err)
		}
		return errcode.Wrap(errcode.AddrNAK, op, nil)
	}
	return nil
}

// SendStop generates a stop condition and waits for it on the wire.
func (e *Engine) SendStop(ctx context.Context) error {
	const op = "i2cm.SendStop"
	if !e.masterMode() {
		return errcode.Wrap(errcode.NotReady, op, nil)
	}
	e.hw.Command(CmdStop)
	e.set(Idle)
	csr, err := e.wait(ctx, op, CSRStopStatus|CSRLostArb)
	if err != nil {
		return err
	}
	if e.cfg.Mode&ModeMultiMaster != 0 && csr&CSRLostArb != 0 {
		e.hw.Command(CmdRelease)
		return errcode.Wrap(errcode.ArbLost, op, nil)
	}
	return nil
}

// WriteByte transmits one data byte. The engine halts after the byte whether
// it was ACKed or not; a NAK is reported as errcode.NAK.
func (e *Engine) WriteByte(ctx context.Context, b byte) error {
	const op = "i2cm.WriteByte"
	if !e.masterMode() {
		return errcode.Wrap(errcode.NotReady, op, nil)
	}
	if err := e.transition(op, WriteData); err != nil {
		return err
	}
	e.hw.WriteData(b)
	e.hw.Command(CmdTransmit)
	csr, err := e.wait(ctx, op, CSRByteComplete|CSRLostArb)
	if err != nil {
		return err
	}
	if e.cfg.Mode&ModeMultiMaster != 0 && csr&CSRLostArb != 0 {
		e.hw.Command(CmdRelease)
		e.set(Idle)
		return errcode.Wrap(errcode.ArbLost, op, nil)
	}
	e.set(Halt)
	if csr&CSRNAK != 0 {
		return errcode.Wrap(errcode.NAK, op, nil)
	}
	return nil
}

// ReadByte receives one data byte. With ack the byte is acknowledged and the
// next one is clocked in; without it the engine halts and the NAK goes out
// with the following stop or restart.
func (e *Engine) ReadByte(ctx context.Context, ack bool) (byte, error) {
	const op = "i2cm.ReadByte"
	if !e.masterMode() {
		return 0, errcode.Wrap(errcode.NotReady, op, nil)
	}
	e.mu.Lock()
	st := e.state
	if st != AddrRead && st != ReadData {
		e.mu.Unlock()
		return 0, errcode.Wrap(errcode.NotReady, op, fmt.Errorf("%w: %s", errState, st))
	}
	first := st == AddrRead
	if first {
		e.setState(ReadData)
	}
	e.mu.Unlock()
	if first {
		e.hw.Command(CmdReadyToRead)
	}

	csr, err := e.wait(ctx, op, CSRByteComplete|CSRLostArb)
	if err != nil {
		return 0, err
	}
	if e.cfg.Mode&ModeMultiMaster != 0 && csr&CSRLostArb != 0 {
		e.hw.Command(CmdRelease)
		e.set(Idle)
		return 0, errcode.Wrap(errcode.ArbLost, op, nil)
	}
	b := e.hw.ReadData()
	if ack {
		e.hw.Command(CmdAckReceive)
	} else {
		e.set(Halt)
	}
	return b, nil
}

func (e *Engine) masterMode() bool { return e.hw.Control()&MCSRMasterMode != 0 }

// ---- buffered mode ----

// WriteBuf starts an interrupt-driven write of data to addr. A nil or empty
// data slice sends only the address, which probes for the target.
func (e *Engine) WriteBuf(addr uint8, data []byte, mode XferMode) error {
	const op = "i2cm.WriteBuf"
	if err := checkXfer(op, addr, len(data)); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.acquireLocked(op); err != nil {
		return err
	}
	e.setState(AddrWrite)
	e.wr.reset(data)
	e.control = mode
	e.mstatus &^= WrComplete
	e.startLocked(addrByte(addr, Write), mode)
	return nil
}

// ReadBuf starts an interrupt-driven read of len(buf) bytes from addr.
func (e *Engine) ReadBuf(addr uint8, buf []byte, mode XferMode) error {
	const op = "i2cm.ReadBuf"
	if len(buf) == 0 {
		return errcode.Wrap(errcode.InvalidParams, op, errEmptyRead)
	}
	if err := checkXfer(op, addr, len(buf)); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.acquireLocked(op); err != nil {
		return err
	}
	e.setState(AddrRead)
	e.rd.reset(buf)
	e.control = mode
	e.mstatus &^= RdComplete
	e.startLocked(addrByte(addr, Read), mode)
	return nil
}

func checkXfer(op string, addr uint8, n int) error {
	if addr > 0x7F {
		return errcode.Wrap(errcode.InvalidParams, op, errAddr)
	}
	if n > 0xFF {
		return errcode.Wrap(errcode.InvalidParams, op, errTooLong)
	}
	return nil
}

// acquireLocked accepts an idle engine on a free bus, or a halted transfer
// waiting for its restart.
func (e *Engine) acquireLocked(op string) error {
	switch e.state {
	case Idle:
		if e.hw.Control()&MCSRBusBusy != 0 {
			return errcode.Wrap(errcode.BusBusy, op, nil)
		}
		return nil
	case Halt:
		e.hw.ClearPendingInt()
		e.mstatus &^= XferHalt
		return nil
	default:
		return errcode.Wrap(errcode.NotReady, op, nil)
	}
}

func (e *Engine) startLocked(addr byte, mode XferMode) {
	e.hw.WriteData(addr)
	if mode&XferRepeatStart != 0 {
		e.hw.Command(CmdRestart)
	} else {
		e.hw.Command(CmdStart)
	}
	e.intOn = true
	e.hw.EnableInt()
	glog.V(2).Infof("i2cm: %s addr=%#02x mode=%d", e.state, addr, mode)
}

// MasterStatus returns the master status, with XferInProg set while a master
// transfer owns the engine.
func (e *Engine) MasterStatus() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.mstatus
	if e.state.IsMaster() {
		s |= XferInProg
	}
	return s
}

// MasterClearStatus returns the master status and clears it.
func (e *Engine) MasterClearStatus() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.mstatus
	e.mstatus = 0
	return s
}

// ReadBufSize is the number of bytes received by the current or last read.
func (e *Engine) ReadBufSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rd.idx
}

// WriteBufSize is the number of bytes sent by the current or last write.
func (e *Engine) WriteBufSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.wr.idx
}

func (e *Engine) ClearReadBuf() {
	e.mu.Lock()
	e.rd.idx = 0
	e.mstatus &^= RdComplete
	e.mu.Unlock()
}

func (e *Engine) ClearWriteBuf() {
	e.mu.Lock()
	e.wr.idx = 0
	e.mstatus &^= WrComplete
	e.mu.Unlock()
}

// Wait blocks until any bit of mask is set in MasterStatus, or ctx ends.
func (e *Engine) Wait(ctx context.Context, mask Status) (Status, error) {
	for {
		if s := e.MasterStatus(); s&mask != 0 {
			return s, nil
		}
		select {
		case <-e.done:
		case <-ctx.Done():
			return e.MasterStatus(), ctx.Err()
		}
	}
}
