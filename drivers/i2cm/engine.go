// Package i2cm is an I2C master (and optional slave) protocol engine driving a
// register-level I2C block through the Hardware interface.
//
// Two styles of use are supported. Manual mode (SendStart, WriteByte,
// ReadByte, SendStop ...) blocks on hardware status bits with the interrupt
// disabled. Buffered mode (WriteBuf, ReadBuf) hands the transfer to the
// interrupt handler and reports progress through MasterStatus and Wait.
package i2cm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/physic"

	"wattmeter-go/errcode"
	"wattmeter-go/x/mathx"
)

// Mode selects the roles the block is configured for.
type Mode uint8

const (
	ModeMaster      Mode = 1 << 0
	ModeSlave       Mode = 1 << 1
	ModeMultiMaster Mode = 1 << 2 // check arbitration loss and start-generation abort
)

const (
	DefaultBusClockHz  = 24_000_000
	DefaultDataRateHz  = 100_000
	DefaultSlaveAddr   = 0x08
	DefaultByteTimeout = 10 * time.Millisecond
	DefaultXferTimeout = 100 * time.Millisecond

	fastModeHz = 100_000
	// The block oversamples SCL 16 times.
	oversample = 16
)

// Config describes the block configuration.
type Config struct {
	Mode         Mode
	SlaveAddress uint8
	BusClockHz   uint32
	DataRateHz   uint32
	// ByteTimeout bounds every manual-mode wait.
	ByteTimeout time.Duration
	// XferTimeout bounds a buffered transfer issued through Tx.
	XferTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Mode:         ModeMaster | ModeMultiMaster,
		SlaveAddress: DefaultSlaveAddr,
		BusClockHz:   DefaultBusClockHz,
		DataRateHz:   DefaultDataRateHz,
		ByteTimeout:  DefaultByteTimeout,
		XferTimeout:  DefaultXferTimeout,
	}
}

func (c Config) Validate() error {
	switch {
	case c.Mode&(ModeMaster|ModeSlave) == 0:
		return errcode.Wrap(errcode.InvalidParams, "i2cm.Config", errNoRole)
	case c.SlaveAddress > 0x7F:
		return errcode.Wrap(errcode.InvalidParams, "i2cm.Config", errAddr)
	case c.DataRateHz == 0 || c.BusClockHz < c.DataRateHz*oversample:
		return errcode.Wrap(errcode.InvalidParams, "i2cm.Config", errDataRate)
	}
	return nil
}

// Engine owns the software side of one I2C block.
type Engine struct {
	hw  Hardware
	cfg Config

	// mu is the interrupt lock. The handler and every API call that touches
	// state, status or descriptors hold it.
	mu      sync.Mutex
	intOn   bool // mirrors the interrupt enable so a late handler stays out of manual transfers
	state   State
	mstatus Status
	control XferMode
	rd, wr  buffer

	slStatus   SlaveStatus
	slRd, slWr buffer

	// txMu serialises Tx callers.
	txMu sync.Mutex
	// done receives one token whenever a buffered transfer or slave session ends.
	done chan struct{}

	initDone bool
	backup   backup
}

// New returns an engine for hw. Call Start before use.
func New(hw Hardware, cfg Config) (*Engine, error) {
	if cfg.ByteTimeout <= 0 {
		cfg.ByteTimeout = DefaultByteTimeout
	}
	if cfg.XferTimeout <= 0 {
		cfg.XferTimeout = DefaultXferTimeout
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{hw: hw, cfg: cfg, done: make(chan struct{}, 1)}, nil
}

func (e *Engine) Config() Config { return e.cfg }

// Init programs the default registers and resets the software state.
func (e *Engine) Init() {
	e.hw.DisableInt()
	e.hw.SetRegisters(e.defaultRegisters())
	e.hw.SetHandler(e.isr)

	e.mu.Lock()
	e.intOn = false
	e.setState(Idle)
	e.mstatus = 0
	e.rd.reset(nil)
	e.wr.reset(nil)
	e.slStatus = 0
	e.slRd.reset(e.slRd.b)
	e.slWr.reset(e.slWr.b)
	e.mu.Unlock()
}

func (e *Engine) defaultRegisters() Registers {
	r := Registers{Addr: e.cfg.SlaveAddress, ClkDiv: clockDivider(e.cfg.BusClockHz, e.cfg.DataRateHz)}
	if e.cfg.Mode&ModeMaster != 0 {
		r.Cfg |= CfgEnableMaster
	}
	if e.cfg.Mode&ModeSlave != 0 {
		r.Cfg |= CfgEnableSlave
		r.XCfg |= XCfgHWAddrEnable
	}
	if e.cfg.DataRateHz > fastModeHz {
		r.Cfg |= CfgFastMode
	}
	return r
}

func clockDivider(busHz, rateHz uint32) uint16 {
	d := mathx.CeilDiv(busHz, rateHz*oversample)
	return uint16(mathx.Clamp(d, 1, 0xFFFF))
}

// Enable turns the block on without touching the interrupt.
func (e *Engine) Enable() { e.hw.Enable() }

// Start initialises the engine on first use, enables the block and its interrupt.
func (e *Engine) Start() {
	if !e.initDone {
		e.Init()
		e.initDone = true
	}
	e.Enable()
	e.enableInt()
	glog.V(1).Infof("i2cm: started mode=%#x rate=%dHz", e.cfg.Mode, e.cfg.DataRateHz)
}

// Stop disables the block. The slave address and clock divider survive the
// block reset; every transfer in flight is abandoned.
func (e *Engine) Stop() {
	e.disableInt()

	regs := e.hw.Registers()
	e.hw.Disable()
	reset := e.defaultRegisters()
	reset.Addr, reset.ClkDiv = regs.Addr, regs.ClkDiv
	e.hw.SetRegisters(reset)

	e.hw.EnableStopInt(false)
	e.hw.ClearPendingInt()

	e.mu.Lock()
	e.setState(Idle)
	e.slStatus &^= SlaveRdBusy | SlaveWrBusy
	e.mu.Unlock()
	glog.V(1).Infof("i2cm: stopped")
}

// SetSpeed reprograms the clock divider for f. The block must be stopped or idle.
func (e *Engine) SetSpeed(f physic.Frequency) error {
	hz := uint32(f / physic.Hertz)
	if hz == 0 || e.cfg.BusClockHz < hz*oversample {
		return errcode.Wrap(errcode.InvalidParams, "i2cm.SetSpeed", errDataRate)
	}
	e.mu.Lock()
	st := e.state
	e.mu.Unlock()
	if st != Idle {
		return errcode.Wrap(errcode.NotReady, "i2cm.SetSpeed", nil)
	}
	e.cfg.DataRateHz = hz
	regs := e.hw.Registers()
	regs.ClkDiv = clockDivider(e.cfg.BusClockHz, hz)
	if hz > fastModeHz {
		regs.Cfg |= CfgFastMode
	} else {
		regs.Cfg &^= CfgFastMode
	}
	e.hw.SetRegisters(regs)
	return nil
}

// State returns the current transfer state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// transition moves a master API call to state to, refusing moves the
// table does not allow.
func (e *Engine) transition(op string, to State) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !CanTransition(e.state, to) {
		return errcode.Wrap(errcode.NotReady, op, fmt.Errorf("%w: %s -> %s", errState, e.state, to))
	}
	e.state = to
	return nil
}

// setState applies a transition from the interrupt handler or a recovery
// path, where the hardware has already moved on. Illegal moves are logged
// but applied. Caller holds mu.
func (e *Engine) setState(to State) {
	if !CanTransition(e.state, to) {
		glog.Errorf("i2cm: illegal transition %s -> %s", e.state, to)
	}
	e.state = to
}

func (e *Engine) set(to State) {
	e.mu.Lock()
	e.setState(to)
	e.mu.Unlock()
}

func (e *Engine) enableInt() {
	e.mu.Lock()
	e.intOn = true
	e.mu.Unlock()
	e.hw.EnableInt()
}

func (e *Engine) disableInt() {
	e.mu.Lock()
	e.intOn = false
	e.mu.Unlock()
	e.hw.DisableInt()
}

// notify wakes one waiter without blocking the handler.
func (e *Engine) notify() {
	select {
	case e.done <- struct{}{}:
	default:
	}
}

// Done delivers a token after buffered transfers and slave sessions end.
// Tokens coalesce; re-check MasterStatus or SlaveStatus after each one.
func (e *Engine) Done() <-chan struct{} { return e.done }

// wait blocks on the hardware for any bit in mask, bounded by ByteTimeout.
// On expiry the bus is released and the engine returns to idle.
func (e *Engine) wait(ctx context.Context, op string, mask CSR) (CSR, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ByteTimeout)
	defer cancel()
	csr, err := e.hw.WaitStatus(ctx, mask)
	if err != nil {
		glog.Warningf("i2cm: %s: %v waiting for %#x", op, err, mask)
		e.hw.Command(CmdRelease)
		e.set(Idle)
		return 0, errcode.Wrap(errcode.Timeout, op, err)
	}
	return csr, nil
}
