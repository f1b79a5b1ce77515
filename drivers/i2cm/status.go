package i2cm

import "wattmeter-go/x/bitx"

// Status is the master status byte.
type Status uint8

const (
	RdComplete   Status = 1 << 0 // read transfer complete
	WrComplete   Status = 1 << 1 // write transfer complete
	XferInProg   Status = 1 << 2 // transfer in progress (synthesised by MasterStatus)
	XferHalt     Status = 1 << 3 // transfer halted without stop
	ErrShortXfer Status = 1 << 4 // target NAKed before the write buffer was sent
	ErrAddrNAK   Status = 1 << 5 // address not acknowledged
	ErrArbLost   Status = 1 << 6 // arbitration lost
	ErrXfer      Status = 1 << 7 // any error of the last transfer

	statusErrors = ErrShortXfer | ErrAddrNAK | ErrArbLost | ErrXfer
)

var statusTable = []bitx.BitName[Status]{
	{RdComplete, "rd_cmplt"},
	{WrComplete, "wr_cmplt"},
	{XferInProg, "xfer_inp"},
	{XferHalt, "xfer_halt"},
	{ErrShortXfer, "err_short_xfer"},
	{ErrAddrNAK, "err_addr_nak"},
	{ErrArbLost, "err_arb_lost"},
	{ErrXfer, "err_xfer"},
}

func (s Status) String() string { return bitx.Join(s, statusTable, "clear") }

// Err reports whether any error bit is set.
func (s Status) Err() bool { return s&statusErrors != 0 }

// SlaveStatus is the slave status byte.
type SlaveStatus uint8

const (
	SlaveRdComplete SlaveStatus = 1 << 0
	SlaveRdBusy     SlaveStatus = 1 << 1
	SlaveRdOverflow SlaveStatus = 1 << 2 // master read past the buffer, got 0xFF
	SlaveWrComplete SlaveStatus = 1 << 4
	SlaveWrBusy     SlaveStatus = 1 << 5
	SlaveWrOverflow SlaveStatus = 1 << 6 // master wrote past the buffer, byte NAKed

	slaveRdMask = SlaveRdComplete | SlaveRdBusy | SlaveRdOverflow
	slaveWrMask = SlaveWrComplete | SlaveWrBusy | SlaveWrOverflow
)

var slaveStatusTable = []bitx.BitName[SlaveStatus]{
	{SlaveRdComplete, "rd_cmplt"},
	{SlaveRdBusy, "rd_busy"},
	{SlaveRdOverflow, "rd_ovfl"},
	{SlaveWrComplete, "wr_cmplt"},
	{SlaveWrBusy, "wr_busy"},
	{SlaveWrOverflow, "wr_ovfl"},
}

func (s SlaveStatus) String() string { return bitx.Join(s, slaveStatusTable, "clear") }

// XferMode selects how a buffered transfer starts and ends.
type XferMode uint8

const (
	XferComplete    XferMode = 0      // start ... stop
	XferRepeatStart XferMode = 1 << 0 // address phase uses a repeated start
	XferNoStop      XferMode = 1 << 1 // halt at the end, expecting a restart
)

// buffer is a transfer descriptor. Only the interrupt handler advances idx.
type buffer struct {
	b   []byte
	idx int
}

func (b *buffer) reset(p []byte) { b.b, b.idx = p, 0 }
