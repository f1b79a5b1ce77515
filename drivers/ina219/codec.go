package ina219

import "periph.io/x/conn/v3/physic"

// Raw is the register snapshot behind a Sample.
type Raw struct {
	Shunt   uint16
	Bus     uint16
	Current uint16
	Power   uint16
}

// Sample is one decoded reading.
type Sample struct {
	Shunt_uV   int32
	Bus_mV     int32
	Current_uA int64
	Power_uW   int64

	Ready    bool // CNVR: a conversion finished since the last power read
	Overflow bool // OVF: power or current calculation out of range

	Raw Raw
}

// Decode scales raw registers. lsb_nA is the current LSB the device was
// calibrated with.
func Decode(raw Raw, lsb_nA uint32) Sample {
	return Sample{
		Shunt_uV:   int32(int16(raw.Shunt)) * shuntLSB_uV,
		Bus_mV:     int32(raw.Bus>>3) * busLSB_mV,
		Current_uA: int64(int16(raw.Current)) * int64(lsb_nA) / 1000,
		Power_uW:   int64(raw.Power) * powerLSBMul * int64(lsb_nA) / 1000,
		Ready:      raw.Bus&busCNVR != 0,
		Overflow:   raw.Bus&busOVF != 0,
		Raw:        raw,
	}
}

func (s Sample) Shunt() physic.ElectricPotential {
	return physic.ElectricPotential(s.Shunt_uV) * physic.MicroVolt
}

func (s Sample) Bus() physic.ElectricPotential {
	return physic.ElectricPotential(s.Bus_mV) * physic.MilliVolt
}

func (s Sample) Current() physic.ElectricCurrent {
	return physic.ElectricCurrent(s.Current_uA) * physic.MicroAmpere
}

func (s Sample) Power() physic.Power {
	return physic.Power(s.Power_uW) * physic.MicroWatt
}
