package types

// ------------------------
// Power monitor (ina219)
// ------------------------

// Retained info: power/ina219/<name>/info
type PowerInfo struct {
	Addr          uint16 `json:"addr"`
	Shunt_uOhm    uint32 `json:"shunt_uohm"`
	MaxCurrent_uA uint32 `json:"max_current_uA"`
	CurrentLSB_nA uint32 `json:"current_lsb_nA"`
	Calibration   uint16 `json:"calibration"`
	Config        uint16 `json:"config"`
	Reader        string `json:"reader"` // "manual" | "buffered"
}

// Retained value: power/ina219/<name>/value
type PowerValue struct {
	Seq        uint64 `json:"seq"`
	Shunt_uV   int32  `json:"shunt_uV"`
	Bus_mV     int32  `json:"bus_mV"`
	Current_uA int64  `json:"current_uA"`
	Power_uW   int64  `json:"power_uW"`
	Ready      bool   `json:"ready"`
	Overflow   bool   `json:"overflow,omitempty"`
	TS         int64  `json:"ts_ms"`

	Raw PowerRaw `json:"raw"`
}

// PowerRaw mirrors the four measurement registers.
type PowerRaw struct {
	Shunt   uint16 `json:"shunt"`
	Bus     uint16 `json:"bus"`
	Current uint16 `json:"current"`
	Power   uint16 `json:"power"`
}

// Retained stats over the rolling window: power/ina219/<name>/stats
type PowerStats struct {
	N int `json:"n"`

	BusMean_mV   float64 `json:"bus_mean_mV"`
	BusStd_mV    float64 `json:"bus_std_mV"`
	CurMean_uA   float64 `json:"current_mean_uA"`
	CurStd_uA    float64 `json:"current_std_uA"`
	CurMin_uA    float64 `json:"current_min_uA"`
	CurMax_uA    float64 `json:"current_max_uA"`
	PowerMean_uW float64 `json:"power_mean_uW"`
	PowerMax_uW  float64 `json:"power_max_uW"`
	Errors       uint64  `json:"errors"`
}

// Error event: power/ina219/<name>/error (not retained)
type PowerError struct {
	Code string `json:"code"`
	Err  string `json:"error"`
	TS   int64  `json:"ts_ms"`
}
