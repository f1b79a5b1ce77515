package i2cm

// State is the software transfer state shared by the API and the interrupt handler.
type State uint8

const (
	Idle           State = iota
	ExitIdle             // left a master transfer abnormally; next interrupt returns to Idle
	Slave                // lost the bus to another master while being addressed
	SlaveWriteData       // remote master is writing into the slave buffer
	SlaveReadData        // remote master is reading from the slave buffer
	AddrWrite            // address phase of a master write
	AddrRead             // address phase of a master read
	WriteData            // master transmitting data bytes
	ReadData             // master receiving data bytes
	Halt                 // transfer ended without stop, awaiting restart
)

var stateNames = [...]string{
	Idle:           "idle",
	ExitIdle:       "exit_idle",
	Slave:          "slave",
	SlaveWriteData: "slave_write_data",
	SlaveReadData:  "slave_read_data",
	AddrWrite:      "addr_write",
	AddrRead:       "addr_read",
	WriteData:      "write_data",
	ReadData:       "read_data",
	Halt:           "halt",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "state?"
}

// IsMaster reports whether the engine owns a master transfer in s.
func (s State) IsMaster() bool { return s >= AddrWrite && s <= Halt }

// IsSlave reports whether s is handled by the slave branch of the interrupt
// handler. Idle counts: an address match arrives while idle.
func (s State) IsSlave() bool { return s == Idle || (s >= Slave && s <= SlaveReadData) }

// IsRead reports whether the master transfer in s is a read.
func (s State) IsRead() bool { return s == AddrRead || s == ReadData }

// masterExits lists the states any master state may leave to, besides its own
// successors: errors, stop, arbitration and restart.
var masterExits = []State{Idle, ExitIdle, Slave, AddrWrite, AddrRead, Halt}

// transitions is the legal successor table. Every state change goes through setState.
var transitions = map[State][]State{
	Idle:           {Idle, ExitIdle, Slave, AddrWrite, AddrRead, SlaveWriteData, SlaveReadData},
	ExitIdle:       {Idle},
	Slave:          {Idle, Slave, SlaveWriteData, SlaveReadData},
	SlaveWriteData: {Idle, Slave},
	SlaveReadData:  {Idle, Slave},
	AddrWrite:      append([]State{WriteData}, masterExits...),
	AddrRead:       append([]State{ReadData}, masterExits...),
	WriteData:      append([]State{WriteData}, masterExits...),
	ReadData:       append([]State{ReadData}, masterExits...),
	Halt:           append([]State{WriteData, ReadData}, masterExits...),
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Direction is the R/W bit of the address byte.
type Direction uint8

const (
	Write Direction = 0
	Read  Direction = 1
)

const readFlag = 0x01

func addrByte(addr uint8, dir Direction) byte {
	return addr<<1 | byte(dir&readFlag)
}

func addrState(dir Direction) State {
	if dir == Read {
		return AddrRead
	}
	return AddrWrite
}
