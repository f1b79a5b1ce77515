// Package ina219 drives the TI INA219 bidirectional current/power monitor.
package ina219

const (
	// 7-bit I2C address with A0 = A1 = GND.
	AddressDefault = 0x40

	RegConfig      = 0x00 // R/W
	RegShunt       = 0x01 // R, 10 µV/bit, two's complement
	RegBus         = 0x02 // R, bits 15..3 at 4 mV/bit, CNVR bit 1, OVF bit 0
	RegPower       = 0x03 // R, 20 × current LSB per bit
	RegCurrent     = 0x04 // R, current LSB per bit, two's complement
	RegCalibration = 0x05 // R/W, bit 0 reads as zero

	// ConfigReset set in the config register resets every register.
	ConfigReset uint16 = 1 << 15
	// ConfigDefault is the power-on configuration: 32 V, ±320 mV, 12-bit, continuous.
	ConfigDefault uint16 = 0x399F

	busCNVR = 1 << 1
	busOVF  = 1 << 0

	shuntLSB_uV = 10
	busLSB_mV   = 4
	powerLSBMul = 20

	// calNum is 0.04096 expressed for a current LSB in nA and a shunt in µΩ.
	calNum = 40_960_000_000_000
)

// BusRange is the bus voltage full scale (config bit 13).
type BusRange uint16

const (
	Range16V BusRange = 0
	Range32V BusRange = 1
)

// Gain is the shunt PGA setting (config bits 12..11).
type Gain uint16

const (
	Gain40mV  Gain = 0
	Gain80mV  Gain = 1
	Gain160mV Gain = 2
	Gain320mV Gain = 3
)

// FullScale_uV is the shunt range selected by g.
func (g Gain) FullScale_uV() int32 { return 40_000 << (g & 3) }

// ADC selects resolution or averaging for one converter (4 bits).
type ADC uint16

const (
	ADC9Bit     ADC = 0x0
	ADC10Bit    ADC = 0x1
	ADC11Bit    ADC = 0x2
	ADC12Bit    ADC = 0x3
	ADC12Bit2   ADC = 0x9
	ADC12Bit4   ADC = 0xA
	ADC12Bit8   ADC = 0xB
	ADC12Bit16  ADC = 0xC
	ADC12Bit32  ADC = 0xD
	ADC12Bit64  ADC = 0xE
	ADC12Bit128 ADC = 0xF
)

// Mode is the operating mode (config bits 2..0).
type Mode uint16

const (
	ModePowerDown          Mode = 0
	ModeShuntTriggered     Mode = 1
	ModeBusTriggered       Mode = 2
	ModeShuntBusTriggered  Mode = 3
	ModeADCOff             Mode = 4
	ModeShuntContinuous    Mode = 5
	ModeBusContinuous      Mode = 6
	ModeShuntBusContinuous Mode = 7
)

// Converting reports whether m runs the ADC at all.
func (m Mode) Converting() bool { return m&3 != 0 }
