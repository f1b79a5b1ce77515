package i2cm

import "context"

// CSR is the block's control/status register. Event bits latch until read
// through Status or WaitStatus; NAK and Transmit are levels.
type CSR uint8

const (
	CSRByteComplete CSR = 1 << 0 // a byte (or address) finished on the wire
	CSRNAK          CSR = 1 << 1 // last received acknowledge bit was NAK
	CSRTransmit     CSR = 1 << 2 // block is transmitting
	CSRAddress      CSR = 1 << 3 // the completed byte was an address
	CSRStopStatus   CSR = 1 << 5 // stop condition detected
	CSRLostArb      CSR = 1 << 6 // arbitration lost

	// CSREvents are the read-to-clear bits.
	CSREvents = CSRByteComplete | CSRAddress | CSRStopStatus | CSRLostArb
)

// MCSR is the master control/status register.
type MCSR uint8

const (
	MCSRStartGen   MCSR = 1 << 0 // start generation aborted by another master
	MCSRBusBusy    MCSR = 1 << 3
	MCSRMasterMode MCSR = 1 << 4
)

// Command strobes a bus action. The block uses the data register where the
// action sends a byte.
type Command uint8

const (
	CmdStart       Command = iota + 1 // start + address from data register
	CmdRestart                        // repeated start + address
	CmdStop                           // stop condition
	CmdTransmit                       // send data register
	CmdReadyToRead                    // release SCL after a read address, receive first byte
	CmdAckReceive                     // ACK the last byte, receive the next
	CmdNakReceive                     // NAK the last byte; as master also generate stop
	CmdAckTransmit                    // slave: ACK address, send data register
	CmdNakTransmit                    // slave: end a read after the master's NAK
	CmdRelease                        // give up the bus after arbitration loss
)

var commandNames = [...]string{
	CmdStart:       "start",
	CmdRestart:     "restart",
	CmdStop:        "stop",
	CmdTransmit:    "transmit",
	CmdReadyToRead: "ready_to_read",
	CmdAckReceive:  "ack_receive",
	CmdNakReceive:  "nak_receive",
	CmdAckTransmit: "ack_transmit",
	CmdNakTransmit: "nak_transmit",
	CmdRelease:     "release",
}

func (c Command) String() string {
	if int(c) < len(commandNames) && commandNames[c] != "" {
		return commandNames[c]
	}
	return "cmd?"
}

// Configuration register bits.
const (
	CfgEnableSlave  uint8 = 1 << 0
	CfgEnableMaster uint8 = 1 << 1
	CfgFastMode     uint8 = 1 << 4

	XCfgHWAddrEnable uint8 = 1 << 0
	XCfgForceNAK     uint8 = 1 << 4
)

// Registers are the configuration registers kept across sleep.
type Registers struct {
	Cfg    uint8
	XCfg   uint8
	Addr   uint8
	ClkDiv uint16
}

// Hardware is the register-level view of an I2C block. Implementations must
// not call the interrupt handler while a Hardware method is executing on the
// caller's goroutine: the handler runs from the block's own context.
type Hardware interface {
	WriteData(b byte)
	ReadData() byte
	Command(c Command)

	// Status returns the CSR and clears its event bits.
	Status() CSR
	// WaitStatus blocks until any bit in mask is latched, then behaves like Status.
	WaitStatus(ctx context.Context, mask CSR) (CSR, error)

	Control() MCSR
	ClearStartGen()

	EnableInt()
	DisableInt()
	ClearPendingInt()
	EnableStopInt(on bool)
	SetHandler(isr func())

	Enable()
	Disable()
	Enabled() bool
	Registers() Registers
	SetRegisters(r Registers)
}
