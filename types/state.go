package types

// Link is the link/state reported for a service or device.
type Link string

const (
	LinkUp       Link = "up"
	LinkDown     Link = "down"
	LinkDegraded Link = "degraded"
	LinkIdle     Link = "idle"
	LinkError    Link = "error"
)

// State is the retained service state published on <service>/state.
type State struct {
	Level  Link   `json:"level"`
	Status string `json:"status"` // short machine string
	TS     int64  `json:"ts_ms"`
	Error  string `json:"error,omitempty"`
}

// Heartbeat is published on system/heartbeat.
type Heartbeat struct {
	Seq      uint64 `json:"seq"`
	Uptime_s int64  `json:"uptime_s"`
	TS       int64  `json:"ts_ms"`

	// I2C engine snapshot; empty when no engine is attached.
	I2CState  string `json:"i2c_state,omitempty"`
	I2CStatus string `json:"i2c_status,omitempty"`
}
