// Package i2csim simulates an I2C block and the bus behind it, so the i2cm
// engine runs on a host. Bus activity is executed on the block's own
// goroutine, which is also where the interrupt handler runs.
package i2csim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"wattmeter-go/drivers/i2cm"
)

// Target is a device on the simulated bus. Methods are called from the
// block goroutine.
type Target interface {
	// Start begins a session and reports whether the address is ACKed.
	Start(read bool) bool
	// Write takes one byte from the master and reports ACK.
	Write(b byte) bool
	// Read supplies the next byte to the master.
	Read() byte
	// Stop ends the session (stop or repeated start).
	Stop()
}

type op func() (fire bool)

// Block implements i2cm.Hardware.
type Block struct {
	mu      sync.Mutex
	changed chan struct{} // closed on every CSR change
	csr     i2cm.CSR      // latched event bits
	nak     bool
	data    byte
	regs    i2cm.Registers
	enabled bool

	intOn    bool
	stopInt  bool
	pending  bool
	handler  func()
	ops      []op
	wake     chan struct{}
	quit     chan struct{}
	finished chan struct{}

	targets  map[uint8]Target
	cur      Target
	owned    bool // the block is bus master
	ext      *session
	extBusy  bool
	startGen bool

	arbLoss    int
	startAbort int
	stall      bool
	byteTime   time.Duration

	trace []string
}

// New starts a block goroutine. Close stops it.
func New() *Block {
	b := &Block{
		changed:  make(chan struct{}),
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
		finished: make(chan struct{}),
		targets:  make(map[uint8]Target),
	}
	go b.run()
	return b
}

func (b *Block) Close() {
	select {
	case <-b.quit:
	default:
		close(b.quit)
	}
	<-b.finished
}

// Attach puts t on the bus at the 7-bit address addr.
func (b *Block) Attach(addr uint8, t Target) {
	b.mu.Lock()
	b.targets[addr] = t
	b.mu.Unlock()
}

func (b *Block) Detach(addr uint8) {
	b.mu.Lock()
	delete(b.targets, addr)
	b.mu.Unlock()
}

// ---- fault injection ----

// SetBusBusy simulates another master holding the bus.
func (b *Block) SetBusBusy(on bool) {
	b.mu.Lock()
	b.extBusy = on
	b.mu.Unlock()
}

// InjectArbitrationLoss makes the next n address phases lose arbitration.
func (b *Block) InjectArbitrationLoss(n int) {
	b.mu.Lock()
	b.arbLoss = n
	b.mu.Unlock()
}

// InjectStartAbort makes the next n start conditions fail to generate, as
// when another master takes the bus first. The block only reports the abort
// while configured as a slave; the other master's stop follows it.
func (b *Block) InjectStartAbort(n int) {
	b.mu.Lock()
	b.startAbort = n
	b.mu.Unlock()
}

// SetStall drops every command without completing it while on.
func (b *Block) SetStall(on bool) {
	b.mu.Lock()
	b.stall = on
	b.mu.Unlock()
}

// SetByteTime delays each bus action by d.
func (b *Block) SetByteTime(d time.Duration) {
	b.mu.Lock()
	b.byteTime = d
	b.mu.Unlock()
}

// Trace returns the bus events since the last ResetTrace.
func (b *Block) Trace() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.trace...)
}

func (b *Block) ResetTrace() {
	b.mu.Lock()
	b.trace = nil
	b.mu.Unlock()
}

// ---- i2cm.Hardware ----

func (b *Block) WriteData(v byte) {
	b.mu.Lock()
	b.data = v
	b.mu.Unlock()
}

func (b *Block) ReadData() byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data
}

// Command strobes c. Latched events of the previous action are dropped and
// the action is executed on the block goroutine. Slave responses during an
// external session are handed straight to the remote master.
func (b *Block) Command(c i2cm.Command) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ext != nil && !b.owned && isSlaveResponse(c) {
		b.ext.resp <- response{cmd: c, data: b.data}
		return
	}
	b.csr &^= i2cm.CSREvents
	b.pending = false
	data := b.data
	b.queueLocked(func() bool { return b.exec(c, data) })
}

func isSlaveResponse(c i2cm.Command) bool {
	switch c {
	case i2cm.CmdAckReceive, i2cm.CmdNakReceive, i2cm.CmdAckTransmit, i2cm.CmdTransmit, i2cm.CmdNakTransmit:
		return true
	}
	return false
}

func (b *Block) Status() i2cm.CSR {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readCSRLocked()
}

func (b *Block) WaitStatus(ctx context.Context, mask i2cm.CSR) (i2cm.CSR, error) {
	for {
		b.mu.Lock()
		if b.csr&mask != 0 {
			v := b.readCSRLocked()
			b.mu.Unlock()
			return v, nil
		}
		ch := b.changed
		b.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func (b *Block) readCSRLocked() i2cm.CSR {
	v := b.csr
	if b.nak {
		v |= i2cm.CSRNAK
	}
	b.csr &^= i2cm.CSREvents
	return v
}

func (b *Block) Control() i2cm.MCSR {
	b.mu.Lock()
	defer b.mu.Unlock()
	var m i2cm.MCSR
	if b.owned {
		m |= i2cm.MCSRMasterMode | i2cm.MCSRBusBusy
	}
	if b.extBusy || b.ext != nil {
		m |= i2cm.MCSRBusBusy
	}
	if b.startGen {
		m |= i2cm.MCSRStartGen
	}
	return m
}

func (b *Block) ClearStartGen() {
	b.mu.Lock()
	b.startGen = false
	b.mu.Unlock()
}

func (b *Block) EnableInt() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.intOn = true
	if b.pending {
		b.pending = false
		b.queueLocked(func() bool { return true })
	}
}

func (b *Block) DisableInt() {
	b.mu.Lock()
	b.intOn = false
	b.mu.Unlock()
}

func (b *Block) ClearPendingInt() {
	b.mu.Lock()
	b.pending = false
	b.mu.Unlock()
}

func (b *Block) EnableStopInt(on bool) {
	b.mu.Lock()
	b.stopInt = on
	b.mu.Unlock()
}

func (b *Block) SetHandler(isr func()) {
	b.mu.Lock()
	b.handler = isr
	b.mu.Unlock()
}

func (b *Block) Enable() {
	b.mu.Lock()
	b.enabled = true
	b.mu.Unlock()
}

// Disable resets the bus side of the block.
func (b *Block) Disable() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enabled = false
	if b.cur != nil {
		b.cur.Stop()
	}
	b.cur, b.owned = nil, false
	b.csr, b.nak = 0, false
}

func (b *Block) Enabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled
}

func (b *Block) Registers() i2cm.Registers {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.regs
}

func (b *Block) SetRegisters(r i2cm.Registers) {
	b.mu.Lock()
	b.regs = r
	b.mu.Unlock()
}

// ---- block goroutine ----

func (b *Block) queueLocked(o op) {
	b.ops = append(b.ops, o)
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Block) run() {
	defer close(b.finished)
	for {
		select {
		case <-b.quit:
			return
		case <-b.wake:
		}
		for {
			b.mu.Lock()
			if len(b.ops) == 0 {
				b.mu.Unlock()
				break
			}
			o := b.ops[0]
			b.ops = b.ops[1:]
			d := b.byteTime
			b.mu.Unlock()

			if d > 0 {
				time.Sleep(d)
			}

			b.mu.Lock()
			fire := o()
			var h func()
			if fire {
				if b.intOn && b.enabled && b.handler != nil {
					h = b.handler
				} else {
					b.pending = true
				}
			}
			b.mu.Unlock()
			if h != nil {
				h()
			}
		}
	}
}

// raiseLocked latches bits and reports whether they request an interrupt.
func (b *Block) raiseLocked(bits i2cm.CSR) bool {
	b.csr |= bits
	close(b.changed)
	b.changed = make(chan struct{})
	if bits&(i2cm.CSRByteComplete|i2cm.CSRLostArb) != 0 {
		return true
	}
	return bits&i2cm.CSRStopStatus != 0 && b.stopInt
}

func (b *Block) tracef(format string, args ...any) {
	s := fmt.Sprintf(format, args...)
	b.trace = append(b.trace, s)
	glog.V(3).Infof("i2csim: %s", s)
}

// exec performs a master command on the bus. Caller holds mu.
func (b *Block) exec(c i2cm.Command, data byte) bool {
	if !b.enabled || b.stall {
		b.tracef("drop %s", c)
		return false
	}
	switch c {
	case i2cm.CmdStart, i2cm.CmdRestart:
		return b.addressLocked(c, data)

	case i2cm.CmdTransmit:
		ack := b.cur != nil && b.cur.Write(data)
		b.nak = !ack
		b.tracef("W %02X %s", data, ackString(ack))
		return b.raiseLocked(i2cm.CSRByteComplete)

	case i2cm.CmdReadyToRead, i2cm.CmdAckReceive:
		b.data = 0xFF
		if b.cur != nil {
			b.data = b.cur.Read()
		}
		b.nak = false
		b.tracef("R %02X", b.data)
		return b.raiseLocked(i2cm.CSRByteComplete)

	case i2cm.CmdNakReceive, i2cm.CmdStop:
		return b.stopLocked()

	case i2cm.CmdRelease:
		if b.cur != nil {
			b.cur.Stop()
		}
		b.cur, b.owned = nil, false
		b.tracef("release")
		return false
	}
	b.tracef("ignored %s", c)
	return false
}

func (b *Block) addressLocked(c i2cm.Command, data byte) bool {
	name := "S"
	if c == i2cm.CmdRestart {
		name = "Sr"
	}
	if b.cur != nil {
		b.cur.Stop()
		b.cur = nil
	}
	if c == i2cm.CmdStart && b.startAbort > 0 && b.regs.Cfg&i2cm.CfgEnableSlave != 0 {
		b.startAbort--
		b.startGen, b.owned, b.nak = true, false, true
		b.tracef("start_abort")
		b.queueLocked(func() bool {
			b.tracef("ext P")
			return b.raiseLocked(i2cm.CSRStopStatus)
		})
		return b.raiseLocked(i2cm.CSRByteComplete)
	}
	if b.arbLoss > 0 {
		b.arbLoss--
		b.owned = false
		b.tracef("arb_lost")
		return b.raiseLocked(i2cm.CSRByteComplete | i2cm.CSRLostArb)
	}

	b.owned = true
	addr, read := data>>1, data&1 != 0
	t := b.targets[addr]
	ack := t != nil && t.Start(read)
	if ack {
		b.cur = t
	}
	b.nak = !ack
	dir := 'W'
	if read {
		dir = 'R'
	}
	b.tracef("%s %02X%c %s", name, addr, dir, ackString(ack))
	return b.raiseLocked(i2cm.CSRByteComplete | i2cm.CSRAddress)
}

func (b *Block) stopLocked() bool {
	if b.cur != nil {
		b.cur.Stop()
	}
	b.cur, b.owned = nil, false
	b.tracef("P")
	return b.raiseLocked(i2cm.CSRStopStatus)
}

func ackString(ack bool) string {
	if ack {
		return "ack"
	}
	return "nak"
}
