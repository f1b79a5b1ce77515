package i2cm

import "github.com/golang/glog"

// isr is installed as the block's interrupt handler. It runs on the block's
// own context and owns the descriptor indices.
func (e *Engine) isr() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.intOn {
		return
	}
	csr := e.hw.Status()
	glog.V(2).Infof("i2cm: isr state=%s csr=%#02x", e.state, csr)

	if e.cfg.Mode&ModeMultiMaster != 0 {
		if e.cfg.Mode&ModeSlave != 0 && e.hw.Control()&MCSRStartGen != 0 {
			e.hw.ClearStartGen()
			e.mstatus |= ErrXfer | e.completeBit()
			e.setState(Slave)
			// The session ends on the other master's stop or on our address.
			e.hw.EnableStopInt(true)
			if csr&CSRAddress == 0 {
				csr &^= CSRByteComplete
			}
			e.notify()
		}
		if csr&CSRLostArb != 0 {
			e.mstatus |= ErrXfer | ErrArbLost | e.completeBit()
			e.hw.EnableStopInt(false)
			if e.cfg.Mode&ModeSlave != 0 && csr&CSRAddress != 0 {
				e.setState(Slave)
			} else {
				e.hw.Command(CmdRelease)
				e.setState(ExitIdle)
			}
			e.notify()
		}
	}

	switch {
	case e.state.IsMaster():
		e.masterISR(csr)
	case e.cfg.Mode&ModeSlave != 0 && e.state.IsSlave():
		e.slaveISR(csr)
	default:
		e.setState(Idle)
	}
}

func (e *Engine) masterISR(csr CSR) {
	noStop := e.control&XferNoStop != 0

	if csr&CSRByteComplete != 0 {
		switch e.state {
		case AddrWrite, AddrRead:
			// Stop history belongs to the previous transfer.
			csr &^= CSRStopStatus
			if csr&CSRNAK == 0 {
				if e.state == AddrWrite {
					switch {
					case len(e.wr.b) > 0:
						e.hw.WriteData(e.wr.b[0])
						e.hw.Command(CmdTransmit)
						e.wr.idx = 1
						e.setState(WriteData)
					case noStop:
						e.halt(WrComplete)
					default:
						e.stop()
					}
				} else {
					e.hw.Command(CmdReadyToRead)
					e.setState(ReadData)
				}
			} else {
				e.mstatus |= ErrXfer | ErrAddrNAK
				if noStop {
					e.halt(e.completeBit())
				} else {
					e.stop()
				}
			}

		case WriteData:
			if csr&CSRNAK == 0 {
				switch {
				case e.wr.idx < len(e.wr.b):
					e.hw.WriteData(e.wr.b[e.wr.idx])
					e.hw.Command(CmdTransmit)
					e.wr.idx++
				case noStop:
					e.halt(WrComplete)
				default:
					e.stop()
				}
			} else {
				e.mstatus |= ErrShortXfer | ErrXfer
				if noStop {
					e.halt(WrComplete)
				} else {
					e.stop()
				}
			}

		case ReadData:
			if e.rd.idx < len(e.rd.b) {
				e.rd.b[e.rd.idx] = e.hw.ReadData()
				e.rd.idx++
			}
			switch {
			case e.rd.idx < len(e.rd.b):
				e.hw.Command(CmdAckReceive)
			case noStop:
				e.halt(RdComplete)
			default:
				e.hw.EnableStopInt(true)
				e.hw.Command(CmdNakReceive)
			}

		default:
			glog.Warningf("i2cm: byte complete in %s", e.state)
			e.intOn = false
			e.hw.DisableInt()
			e.hw.ClearPendingInt()
		}
	}

	if csr&CSRStopStatus != 0 {
		e.mstatus |= e.completeBit()
		e.hw.EnableStopInt(false)
		e.setState(Idle)
		e.notify()
	}
}

// completeBit is the completion flag for the direction of the current transfer.
func (e *Engine) completeBit() Status {
	if e.state.IsRead() {
		return RdComplete
	}
	return WrComplete
}

// halt parks the transfer without a stop. The caller restarts it with the
// next buffered call in repeat-start mode.
func (e *Engine) halt(done Status) {
	e.mstatus |= XferHalt | done
	e.setState(Halt)
	e.intOn = false
	e.hw.DisableInt()
	e.notify()
}

// stop ends the transfer; completion is reported from the stop interrupt.
func (e *Engine) stop() {
	e.hw.EnableStopInt(true)
	e.hw.Command(CmdStop)
}
