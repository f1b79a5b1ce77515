package ina219

import (
	"sync"

	"wattmeter-go/x/mathx"
)

// Simulated is an INA219 register file for the simulated I2C bus. Shunt and
// bus inputs are converted with the datasheet formulas:
//
//	current = shunt × cal / 4096
//	power   = current × bus / 5000
//
// It implements i2csim.Target.
type Simulated struct {
	mu   sync.Mutex
	regs [6]uint16

	shunt_uV int32
	bus_mV   int32

	ptr   byte
	phase int // bytes seen in this write session
	hi    bool
	word  uint16
}

func NewSimulated() *Simulated {
	s := &Simulated{}
	s.reset()
	return s
}

// SetInputs sets the analogue inputs and runs a conversion.
func (s *Simulated) SetInputs(shunt_uV, bus_mV int32) {
	s.mu.Lock()
	s.shunt_uV, s.bus_mV = shunt_uV, bus_mV
	s.convert()
	s.mu.Unlock()
}

// Register returns a register as the device holds it.
func (s *Simulated) Register(reg byte) uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(reg) >= len(s.regs) {
		return 0
	}
	return s.regs[reg]
}

func (s *Simulated) reset() {
	s.regs = [6]uint16{RegConfig: ConfigDefault}
	s.convert()
}

func (s *Simulated) convert() {
	cfg := s.regs[RegConfig]
	if !Mode(cfg & 7).Converting() {
		return
	}
	fs := Gain(cfg>>11&3).FullScale_uV()
	busFS := int32(16_000)
	if BusRange(cfg>>13&1) == Range32V {
		busFS = 32_000
	}

	ovf := s.shunt_uV > fs || s.shunt_uV < -fs
	shunt := mathx.Clamp(s.shunt_uV, -fs, fs) / shuntLSB_uV
	bus := mathx.Clamp(s.bus_mV, 0, busFS) / busLSB_mV

	cal := int64(s.regs[RegCalibration])
	cur := int64(shunt) * cal / 4096
	pwr := mathx.Abs(cur) * int64(bus) / 5000
	if cur > 32767 || cur < -32768 || pwr > 0xFFFF {
		ovf = true
		cur = mathx.Clamp(cur, -32768, 32767)
		pwr = mathx.Clamp(pwr, 0, 0xFFFF)
	}

	s.regs[RegShunt] = uint16(int16(shunt))
	s.regs[RegCurrent] = uint16(int16(cur))
	s.regs[RegPower] = uint16(pwr)
	s.regs[RegBus] = uint16(bus)<<3 | busCNVR
	if ovf {
		s.regs[RegBus] |= busOVF
	}
}

func (s *Simulated) Start(read bool) bool {
	s.mu.Lock()
	s.phase = 0
	s.hi = true
	s.mu.Unlock()
	return true
}

func (s *Simulated) Write(b byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.phase {
	case 0:
		if int(b) >= len(s.regs) {
			return false
		}
		s.ptr = b
	case 1:
		s.word = uint16(b) << 8
	case 2:
		s.word |= uint16(b)
		s.store(s.ptr, s.word)
	default:
		return false
	}
	s.phase++
	return true
}

func (s *Simulated) store(reg byte, v uint16) {
	switch reg {
	case RegConfig:
		if v&ConfigReset != 0 {
			s.reset()
			return
		}
		s.regs[RegConfig] = v
	case RegCalibration:
		s.regs[RegCalibration] = v &^ 1
	default:
		return
	}
	s.convert()
}

// Read returns the pointed register high byte first. The pointer does not
// advance; reading power clears CNVR.
func (s *Simulated) Read() byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.regs[s.ptr]
	if s.hi {
		s.hi = false
		return byte(v >> 8)
	}
	s.hi = true
	if s.ptr == RegPower {
		s.regs[RegBus] &^= busCNVR
	}
	return byte(v)
}

func (s *Simulated) Stop() {}
