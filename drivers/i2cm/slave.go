package i2cm

import (
	"github.com/golang/glog"

	"wattmeter-go/errcode"
)

// overflowByte is returned to a remote master reading past the slave buffer.
const overflowByte = 0xFF

// SlaveSetAddress changes the address the block answers to.
func (e *Engine) SlaveSetAddress(addr uint8) error {
	if addr > 0x7F {
		return errcode.Wrap(errcode.InvalidParams, "i2cm.SlaveSetAddress", errAddr)
	}
	regs := e.hw.Registers()
	regs.Addr = addr
	e.hw.SetRegisters(regs)
	e.cfg.SlaveAddress = addr
	return nil
}

// SlaveInitReadBuf sets the buffer a remote master reads from.
func (e *Engine) SlaveInitReadBuf(buf []byte) {
	e.mu.Lock()
	e.slRd.reset(buf)
	e.mu.Unlock()
}

// SlaveInitWriteBuf sets the buffer a remote master writes into.
func (e *Engine) SlaveInitWriteBuf(buf []byte) {
	e.mu.Lock()
	e.slWr.reset(buf)
	e.mu.Unlock()
}

func (e *Engine) SlaveStatus() SlaveStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.slStatus
}

// SlaveClearReadStatus returns the read-side bits and clears the latched ones.
func (e *Engine) SlaveClearReadStatus() SlaveStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.slStatus & slaveRdMask
	e.slStatus &^= SlaveRdComplete | SlaveRdOverflow
	return s
}

// SlaveClearWriteStatus returns the write-side bits and clears the latched ones.
func (e *Engine) SlaveClearWriteStatus() SlaveStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.slStatus & slaveWrMask
	e.slStatus &^= SlaveWrComplete | SlaveWrOverflow
	return s
}

func (e *Engine) SlaveReadBufSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.slRd.idx
}

func (e *Engine) SlaveWriteBufSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.slWr.idx
}

func (e *Engine) SlaveClearReadBuf() {
	e.mu.Lock()
	e.slRd.idx = 0
	e.mu.Unlock()
}

func (e *Engine) SlaveClearWriteBuf() {
	e.mu.Lock()
	e.slWr.idx = 0
	e.mu.Unlock()
}

// slaveISR serves a remote master. The hardware decodes the address; the
// data register holds the address byte on an address event.
func (e *Engine) slaveISR(csr CSR) {
	if csr&CSRStopStatus != 0 || csr&(CSRByteComplete|CSRAddress) == CSRByteComplete|CSRAddress {
		switch e.state {
		case SlaveWriteData:
			e.hw.EnableStopInt(false)
			e.slStatus &^= SlaveWrBusy
			e.slStatus |= SlaveWrComplete
			e.setState(Idle)
			e.notify()
		case Slave:
			e.hw.EnableStopInt(false)
			e.setState(Idle)
			e.notify()
		}
	}
	if csr&CSRByteComplete == 0 {
		return
	}

	switch {
	case csr&CSRAddress != 0:
		if e.hw.ReadData()&readFlag != 0 {
			e.hw.WriteData(e.nextSlaveByte())
			e.hw.Command(CmdAckTransmit)
			e.slStatus |= SlaveRdBusy
			e.setState(SlaveReadData)
		} else {
			e.hw.Command(CmdAckReceive)
			e.slStatus |= SlaveWrBusy
			e.setState(SlaveWriteData)
			e.hw.EnableStopInt(true)
		}

	case e.state == SlaveWriteData:
		if e.slWr.idx < len(e.slWr.b) {
			b := e.hw.ReadData()
			e.hw.Command(CmdAckReceive)
			e.slWr.b[e.slWr.idx] = b
			e.slWr.idx++
		} else {
			e.hw.Command(CmdNakReceive)
			e.slStatus |= SlaveWrOverflow
		}

	case e.state == SlaveReadData:
		if csr&CSRNAK == 0 {
			e.hw.WriteData(e.nextSlaveByte())
			e.hw.Command(CmdTransmit)
		} else {
			e.hw.WriteData(overflowByte)
			e.hw.Command(CmdNakTransmit)
			e.slStatus &^= SlaveRdBusy
			e.slStatus |= SlaveRdComplete
			e.setState(Idle)
			e.notify()
		}

	default:
		glog.Warningf("i2cm: slave byte complete in %s", e.state)
	}
}

// nextSlaveByte takes the next byte of the slave read buffer, or the
// overflow byte once it is exhausted.
func (e *Engine) nextSlaveByte() byte {
	if e.slRd.idx < len(e.slRd.b) {
		b := e.slRd.b[e.slRd.idx]
		e.slRd.idx++
		return b
	}
	e.slStatus |= SlaveRdOverflow
	return overflowByte
}
